package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter renders a JobResult for humans or machines
type Reporter struct {
	Out    io.Writer
	Format string

	// TailLines bounds how much output of a failed step the text format prints.
	TailLines int
}

func NewReporter(out io.Writer, format string) *Reporter {
	return &Reporter{Out: out, Format: format, TailLines: 40}
}

// Emit writes the final status of the job
func (r *Reporter) Emit(job *JobResult) error {
	switch r.Format {
	case "", FormatText:
		return r.text(job)
	case FormatJSON:
		enc := json.NewEncoder(r.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(View(job))
	default:
		return errors.Errorf("unknown report format %q", r.Format)
	}
}

func (r *Reporter) text(job *JobResult) error {
	tw := tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "STEP\tSTATUS\tEXIT\tDURATION\tNOTE\n")
	for _, res := range job.Results {
		exit := fmt.Sprintf("%d", res.ExitCode)
		if res.Skipped {
			exit = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			res.StepName, res.Status(), exit, res.Duration.Round(time.Millisecond), note(res))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed, ok := job.FirstFailure(); ok {
		fmt.Fprintf(r.Out, "\n--- output of %s ---\n", failed.StepName)
		fmt.Fprint(r.Out, tail(failed.Output(), r.TailLines))
		if failed.Error != "" {
			fmt.Fprintf(r.Out, "error: %s\n", failed.Error)
		}
	}

	passed, failed, skipped := job.Counts()
	verdict := "PASSED"
	if !job.Success() {
		verdict = "FAILED"
	}
	_, err := fmt.Fprintf(r.Out, "\njob %s %s in %s (%d passed, %d failed, %d skipped)\n",
		job.Job, verdict, job.Duration.Round(time.Millisecond), passed, failed, skipped)
	return err
}

func note(res RunResult) string {
	if res.Skipped {
		return string(res.SkipReason)
	}
	if res.Error != "" {
		return res.Error
	}
	return ""
}

// tail keeps the last n lines of out, n <= 0 keeps everything
func tail(out []byte, n int) string {
	s := string(bytes.TrimRight(out, "\n"))
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if n > 0 && len(lines) > n {
		lines = append([]string{fmt.Sprintf("... (%d lines omitted)", len(lines)-n)}, lines[len(lines)-n:]...)
	}
	return strings.Join(lines, "\n") + "\n"
}

// StepView is the JSON shape of a RunResult
type StepView struct {
	Name       string `json:"name"`
	Command    string `json:"command,omitempty"`
	Status     Status `json:"status"`
	ExitCode   int    `json:"exitCode"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skipReason,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	LogPath    string `json:"logPath,omitempty"`
}

// JobView is the JSON shape of a JobResult
type JobView struct {
	Job        string     `json:"job"`
	Success    bool       `json:"success"`
	Started    time.Time  `json:"started"`
	DurationMs int64      `json:"durationMs"`
	Steps      []StepView `json:"steps"`
}

func View(job *JobResult) JobView {
	v := JobView{
		Job:        job.Job,
		Success:    job.Success(),
		Started:    job.Started.UTC(),
		DurationMs: job.Duration.Milliseconds(),
		Steps:      make([]StepView, 0, len(job.Results)),
	}
	for _, r := range job.Results {
		v.Steps = append(v.Steps, StepView{
			Name:       r.StepName,
			Command:    r.Command,
			Status:     r.Status(),
			ExitCode:   r.ExitCode,
			Skipped:    r.Skipped,
			SkipReason: string(r.SkipReason),
			DurationMs: r.Duration.Milliseconds(),
			Stdout:     string(r.Stdout),
			Stderr:     string(r.Stderr),
			Error:      r.Error,
			LogPath:    r.LogPath,
		})
	}
	return v
}
