package worker

import (
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cuemby/directord/pkg/driver"
)

// dedupSize bounds the (job_id, identity) dedup cache; the ordering
// gate means a client only ever needs to recognize recent duplicates,
// not its entire lifetime history.
const dedupSize = 4096

// restrictProbe extracts just the restrict field from a job frame's
// definition payload, without decoding the verb-specific fields.
type restrictProbe struct {
	Restrict []string `json:"Restrict"`
}

// ingestQueue is the ordered per-worker FIFO the single ingest
// consumer feeds and the executor loop drains, deduplicating by
// (job_id, identity) and silently dropping frames this identity's
// restrict list excludes.
type ingestQueue struct {
	mu    sync.Mutex
	seen  *lru.Cache
	queue chan *driver.Frame
}

func newIngestQueue() *ingestQueue {
	seen, err := lru.New(dedupSize)
	if err != nil {
		// lru.New only errors on a non-positive size, which dedupSize never is.
		panic("worker: lru.New: " + err.Error())
	}
	return &ingestQueue{
		seen:  seen,
		queue: make(chan *driver.Frame, 256),
	}
}

// admit reports whether f should be enqueued: false for a frame
// already seen under the same (job_id, identity) key, or whose
// restrict list excludes identity.
func (q *ingestQueue) admit(identity string, f *driver.Frame) bool {
	key := f.MessageID + "/" + f.Identity
	q.mu.Lock()
	duplicate := q.seen.Contains(key)
	if !duplicate {
		q.seen.Add(key, struct{}{})
	}
	q.mu.Unlock()
	if duplicate {
		return false
	}

	var probe restrictProbe
	if err := json.Unmarshal(f.Data, &probe); err == nil && restrictExcludes(identity, probe.Restrict) {
		return false
	}
	return true
}

func restrictExcludes(identity string, restrict []string) bool {
	if len(restrict) == 0 {
		return false
	}
	for _, r := range restrict {
		if r == identity {
			return false
		}
	}
	return true
}

func (q *ingestQueue) push(f *driver.Frame) {
	q.queue <- f
}
