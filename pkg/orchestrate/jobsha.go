package orchestrate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cuemby/directord/pkg/types"
)

// JobSHA computes the content fingerprint spec.md §4.2 step 2
// describes: a deterministic hash over (verb, sorted(definition
// fields except the volatile ones JobDefinition.Canonical already
// strips)).
func JobSHA(verb string, def *types.JobDefinition) (string, error) {
	canonical := def.Canonical()
	keys := make([]string, 0, len(canonical))
	for k := range canonical {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]canonicalField, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(canonical[k])
		if err != nil {
			return "", fmt.Errorf("job_sha: marshal field %q: %w", k, err)
		}
		ordered = append(ordered, canonicalField{Name: k, Value: raw})
	}

	payload, err := json.Marshal(canonicalForm{Verb: verb, Fields: ordered})
	if err != nil {
		return "", fmt.Errorf("job_sha: marshal canonical form: %w", err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalForm and canonicalField give the fingerprinted payload a
// stable field order independent of Go's randomized map iteration.
type canonicalForm struct {
	Verb   string           `json:"verb"`
	Fields []canonicalField `json:"fields"`
}

type canonicalField struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}
