package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/directord/pkg/component"
	"github.com/cuemby/directord/pkg/types"
)

func argSpecFor(t *testing.T, verb string) component.ArgsSpec {
	t.Helper()
	c, err := component.Lookup(verb)
	require.NoError(t, err)
	return c.Args()
}

func TestCompileSingleEchoInlineForm(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN: "echo hello world"
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "RUN", job.Verb)
	assert.Equal(t, "echo hello world", job.Definition.Fields["command"])
	assert.Equal(t, defaultTimeoutSeconds, job.Definition.TimeoutSeconds)
	assert.NotEmpty(t, job.JobSHA)
}

func TestCompileDictFormBindsVarsAndCommonFields(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN:
        vars:
          command: "sleep 1"
        timeout_seconds: 5
        run_once: true
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "sleep 1", job.Definition.Fields["command"])
	assert.Equal(t, 5, job.Definition.TimeoutSeconds)
	assert.True(t, job.Definition.RunOnce)
}

func TestCompileSharesParentIDWithinOrchestration(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN: "echo a"
    - RUN: "echo b"
- jobs:
    - RUN: "echo c"
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, jobs[0].ParentID, jobs[1].ParentID)
	assert.NotEqual(t, jobs[0].ParentID, jobs[2].ParentID)
}

func TestCompileAsyncFlagPropagatesToEachJob(t *testing.T) {
	raw := []byte(`
- async: true
  jobs:
    - RUN: "sleep 1"
    - RUN: "sleep 1"
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.True(t, j.Async)
	}
}

func TestCompileAppliesSubmitTimeOverrides(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN: "echo {{greeting}}"
`)
	jobs, err := Compile(raw, map[string]string{"greeting": "hi"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "echo hi", jobs[0].Definition.Fields["command"])
}

// TestCompileOrchestrationTargetsAppliedPerStanza covers Scenario C:
// a two-stanza orchestration where only the second stanza names
// explicit targets — each job carries its own stanza's target set.
func TestCompileOrchestrationTargetsAppliedPerStanza(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN: "echo a"
- targets: ["n1", "n2", "n3"]
  jobs:
    - RUN: "echo b"
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Empty(t, jobs[0].Definition.Targets)
	assert.Equal(t, []string{"n1", "n2", "n3"}, jobs[1].Definition.Targets)
}

func TestCompileJobLevelRestrictSurvivesBinding(t *testing.T) {
	raw := []byte(`
- jobs:
    - RUN:
        vars:
          command: "echo a"
        restrict: ["n1", "n2"]
`)
	jobs, err := Compile(raw, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"n1", "n2"}, jobs[0].Definition.Restrict)
}

func TestCompileRejectsUnknownVerb(t *testing.T) {
	raw := []byte(`
- jobs:
    - NOPE: "x"
`)
	_, err := Compile(raw, nil)
	assert.Error(t, err)
}

func TestJobSHADeterministicForIdenticalCanonicalForm(t *testing.T) {
	defA := &types.JobDefinition{Fields: map[string]any{"command": "echo hi"}, TimeoutSeconds: 10}
	defB := &types.JobDefinition{Fields: map[string]any{"command": "echo hi"}, TimeoutSeconds: 999}

	shaA, err := JobSHA("RUN", defA)
	require.NoError(t, err)
	shaB, err := JobSHA("RUN", defB)
	require.NoError(t, err)

	// timeout_seconds is volatile: differing only there must not change job_sha.
	assert.Equal(t, shaA, shaB)
}

func TestJobSHADiffersOnVerbOrFields(t *testing.T) {
	def := &types.JobDefinition{Fields: map[string]any{"command": "echo hi"}}
	shaRun, err := JobSHA("RUN", def)
	require.NoError(t, err)

	shaOther, err := JobSHA("OTHER", def)
	require.NoError(t, err)
	assert.NotEqual(t, shaRun, shaOther)

	def2 := &types.JobDefinition{Fields: map[string]any{"command": "echo bye"}}
	shaRun2, err := JobSHA("RUN", def2)
	require.NoError(t, err)
	assert.NotEqual(t, shaRun, shaRun2)
}

func TestBindInlineParsesFlagsForMultiFieldVerb(t *testing.T) {
	def := &types.JobDefinition{Fields: map[string]any{}}
	spec := argSpecFor(t, "ADD")
	require.NoError(t, bindInline(def, spec, `/etc/motd /tmp/motd --blueprint=true`))

	assert.Equal(t, "/etc/motd", def.Fields["src"])
	assert.Equal(t, "/tmp/motd", def.Fields["dest"])
	assert.Equal(t, "true", def.Fields["blueprint"])
}

func TestBindInlinePreservesQuotedTokens(t *testing.T) {
	def := &types.JobDefinition{Fields: map[string]any{}}
	spec := argSpecFor(t, "ARG")
	require.NoError(t, bindInline(def, spec, `greeting "hello world"`))

	assert.Equal(t, "greeting", def.Fields["name"])
	assert.Equal(t, "hello world", def.Fields["value"])
}
