package report

import "time"

// Status is the outcome of one entry in a job report
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// SkipReason explains why a step never ran
type SkipReason string

const (
	SkipCondition       SkipReason = "condition"
	SkipPreviousFailure SkipReason = "previous-failure"
	SkipAborted         SkipReason = "aborted"
)

// RunResult is the outcome of a single step (or of provisioning/toolchain setup)
type RunResult struct {
	StepName   string
	Command    string
	ExitCode   int
	Stdout     []byte
	Stderr     []byte
	Skipped    bool
	SkipReason SkipReason
	Duration   time.Duration

	// Error holds failures that are not a process exit, e.g. a broken condition
	// or a timeout. ExitCode is non-zero whenever Error is set.
	Error   string
	LogPath string
}

// Skip returns a result for a step that was not executed
func Skip(name, command string, reason SkipReason) RunResult {
	return RunResult{StepName: name, Command: command, Skipped: true, SkipReason: reason}
}

func (r RunResult) Status() Status {
	switch {
	case r.Skipped:
		return StatusSkipped
	case r.ExitCode != 0:
		return StatusFailed
	default:
		return StatusPassed
	}
}

func (r RunResult) Failed() bool {
	return r.Status() == StatusFailed
}

// Output returns stdout followed by stderr
func (r RunResult) Output() []byte {
	out := make([]byte, 0, len(r.Stdout)+len(r.Stderr))
	out = append(out, r.Stdout...)
	return append(out, r.Stderr...)
}

// JobResult is the ordered record of one job run
type JobResult struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Results  []RunResult
}

func NewJobResult(job string) *JobResult {
	return &JobResult{Job: job, Started: time.Now()}
}

// Add appends a result, preserving execution order
func (j *JobResult) Add(r RunResult) {
	j.Results = append(j.Results, r)
}

// Finish stamps the total duration
func (j *JobResult) Finish() {
	j.Duration = time.Since(j.Started)
}

// Success is true iff every result exited 0 or was skipped
func (j *JobResult) Success() bool {
	for _, r := range j.Results {
		if r.Failed() {
			return false
		}
	}
	return true
}

// Find returns the result recorded under name
func (j *JobResult) Find(name string) (RunResult, bool) {
	for _, r := range j.Results {
		if r.StepName == name {
			return r, true
		}
	}
	return RunResult{}, false
}

// FirstFailure returns the terminal failed result, if any
func (j *JobResult) FirstFailure() (RunResult, bool) {
	for _, r := range j.Results {
		if r.Failed() {
			return r, true
		}
	}
	return RunResult{}, false
}

// Counts returns passed, failed and skipped totals
func (j *JobResult) Counts() (passed, failed, skipped int) {
	for _, r := range j.Results {
		switch r.Status() {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}
