package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"stepci/internal/api"
	"stepci/internal/config"
	"stepci/internal/core"
	"stepci/internal/report"
)

func cmdSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default ./stepci.yaml if present)")
	server := fs.String("server", "", "server URL (default from config)")
	packages := fs.String("packages", "", "whitespace-separated OS packages, overrides the job file")
	only := fs.String("only", "", "comma-separated step names to run")
	format := fs.String("format", "", "report format: text or json")
	timeout := fs.Duration("timeout", time.Hour, "how long to wait for the server")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: stepci submit [flags] <job.yaml>")
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}
	base := cfg.ServerURL
	if *server != "" {
		base = *server
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci: read job file:", err)
		return exitUsage
	}

	q := url.Values{}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "packages" {
			q.Set("packages", *packages)
		}
	})
	if *only != "" {
		q.Set("only", *only)
	}
	target := strings.TrimRight(base, "/") + "/jobs"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Post(target, "application/x-yaml", strings.NewReader(string(data)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci: submit:", err)
		return exitUsage
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e map[string]string
		json.NewDecoder(resp.Body).Decode(&e)
		fmt.Fprintf(os.Stderr, "stepci: server returned %s: %s\n", resp.Status, e["error"])
		return exitUsage
	}

	var out api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(os.Stderr, "stepci: decode response:", err)
		return exitUsage
	}

	f := cfg.ReportFormat
	if *format != "" {
		f = *format
	}
	if f == report.FormatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
	} else {
		report.NewReporter(os.Stdout, report.FormatText).Emit(fromView(out.JobView))
		if out.Error != "" {
			fmt.Fprintf(os.Stdout, "%s error: %s\n", out.ErrorKind, out.Error)
		}
	}
	return exitCodeForKind(out.ErrorKind)
}

// fromView rebuilds a JobResult from its JSON form for text rendering
func fromView(v report.JobView) *report.JobResult {
	rec := &report.JobResult{
		Job:      v.Job,
		Started:  v.Started,
		Duration: time.Duration(v.DurationMs) * time.Millisecond,
	}
	for _, s := range v.Steps {
		rec.Add(report.RunResult{
			StepName:   s.Name,
			Command:    s.Command,
			ExitCode:   s.ExitCode,
			Stdout:     []byte(s.Stdout),
			Stderr:     []byte(s.Stderr),
			Skipped:    s.Skipped,
			SkipReason: report.SkipReason(s.SkipReason),
			Duration:   time.Duration(s.DurationMs) * time.Millisecond,
			Error:      s.Error,
			LogPath:    s.LogPath,
		})
	}
	return rec
}

// exitCodeForKind mirrors core.Classify for errors that crossed the wire
func exitCodeForKind(kind string) int {
	switch kind {
	case "":
		return core.ExitOK
	case "step":
		return core.ExitStep
	case "provision":
		return core.ExitProvision
	case "toolchain":
		return core.ExitToolchain
	case "timeout":
		return core.ExitTimeout
	default:
		return core.ExitInternal
	}
}
