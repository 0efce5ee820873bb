package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingJob() *JobResult {
	job := NewJobResult("lint")
	job.Add(RunResult{StepName: "fmt", Command: "cargo fmt --all -- --check"})
	job.Add(RunResult{StepName: "clippy", ExitCode: 1, Stderr: []byte("warning: unused variable\nerror: aborting\n")})
	job.Add(Skip("doctest", "cargo test --doc", SkipPreviousFailure))
	job.Finish()
	return job
}

func TestSuccessRequiresZeroExitOrSkip(t *testing.T) {
	job := NewJobResult("lint")
	assert.True(t, job.Success(), "empty job succeeds")

	job.Add(RunResult{StepName: "fmt"})
	job.Add(Skip("clippy", "", SkipCondition))
	assert.True(t, job.Success())

	job.Add(RunResult{StepName: "doctest", ExitCode: 101})
	assert.False(t, job.Success())

	failed, ok := job.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, "doctest", failed.StepName)
}

func TestStatusAndCounts(t *testing.T) {
	job := failingJob()

	fmtRes, _ := job.Find("fmt")
	clippy, _ := job.Find("clippy")
	doctest, _ := job.Find("doctest")
	assert.Equal(t, StatusPassed, fmtRes.Status())
	assert.Equal(t, StatusFailed, clippy.Status())
	assert.Equal(t, StatusSkipped, doctest.Status())

	passed, failed, skipped := job.Counts()
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{passed, failed, skipped})

	_, ok := job.Find("missing")
	assert.False(t, ok)
}

func TestTextReportShowsFailedOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatText).Emit(failingJob()))

	out := buf.String()
	assert.Contains(t, out, "clippy")
	assert.Contains(t, out, "previous-failure")
	assert.Contains(t, out, "--- output of clippy ---")
	assert.Contains(t, out, "error: aborting")
	assert.Contains(t, out, "job lint FAILED")
}

func TestJSONReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatJSON).Emit(failingJob()))

	var v JobView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	assert.False(t, v.Success)
	require.Len(t, v.Steps, 3)
	assert.Equal(t, StatusFailed, v.Steps[1].Status)
	assert.Equal(t, "previous-failure", v.Steps[2].SkipReason)
	assert.True(t, strings.HasPrefix(v.Steps[1].Stderr, "warning"))
}

func TestUnknownFormat(t *testing.T) {
	assert.Error(t, NewReporter(&bytes.Buffer{}, "yaml").Emit(failingJob()))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "", tail(nil, 3))
	assert.Equal(t, "a\nb\n", tail([]byte("a\nb\n"), 3))
	assert.Equal(t, "... (2 lines omitted)\nc\nd\n", tail([]byte("a\nb\nc\nd"), 2))
}
