package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"stepci/internal/app"
	"stepci/internal/config"
	"stepci/internal/core"
	"stepci/internal/logging"
	"stepci/internal/report"
)

const exitUsage = core.ExitInternal

// kvFlag collects repeated key=value flags
type kvFlag map[string]string

func (f kvFlag) String() string { return fmt.Sprint(map[string]string(f)) }

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[k] = v
	return nil
}

// runFlags are shared by run and watch
type runFlags struct {
	configPath string
	packages   string
	setPkgs    bool
	workDir    string
	format     string
	only       string
	quiet      bool
	inputs     kvFlag
}

func (rf *runFlags) register(fs *flag.FlagSet) {
	rf.inputs = kvFlag{}
	fs.StringVar(&rf.configPath, "config", "", "config file (default ./stepci.yaml if present)")
	fs.StringVar(&rf.packages, "packages", "", "whitespace-separated OS packages, overrides the job file")
	fs.StringVar(&rf.workDir, "workdir", "", "directory the job runs in (default from config)")
	fs.StringVar(&rf.format, "format", "", "report format: text or json")
	fs.StringVar(&rf.only, "only", "", "comma-separated step names to run")
	fs.BoolVar(&rf.quiet, "quiet", false, "do not stream step output")
	fs.Var(rf.inputs, "input", "job input as key=value (repeatable)")
}

func (rf *runFlags) options(fs *flag.FlagSet) core.RunOptions {
	opts := core.RunOptions{Inputs: rf.inputs}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "packages" {
			pkgs := rf.packages
			opts.Packages = &pkgs
		}
	})
	if rf.only != "" {
		opts.Only = strings.Split(rf.only, ",")
	}
	return opts
}

// setup loads config and builds the logger and runner factory
func setup(configPath string) (*config.Config, *logrus.Logger, *app.Factory, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	factory, err := app.NewFactory(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, factory, nil
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var rf runFlags
	rf.register(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: stepci run [flags] <job.yaml>")
		return exitUsage
	}

	cfg, log, factory, err := setup(rf.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runOnce(ctx, cfg, log, factory, fs.Arg(0), &rf, rf.options(fs))
}

// runOnce loads the job file fresh, runs it and prints the report
func runOnce(ctx context.Context, cfg *config.Config, log *logrus.Logger, factory *app.Factory, path string, rf *runFlags, opts core.RunOptions) int {
	job, err := core.LoadJob(path)
	if err != nil {
		log.WithError(err).Error("invalid job")
		return exitUsage
	}

	var out io.Writer = os.Stderr
	if rf.quiet {
		out = nil
	}
	runner, err := factory.Runner(rf.workDir, out)
	if err != nil {
		log.WithError(err).Error("cannot create runner")
		return exitUsage
	}

	rec, runErr := runner.Run(ctx, job, opts)

	format := cfg.ReportFormat
	if rf.format != "" {
		format = rf.format
	}
	if err := report.NewReporter(os.Stdout, format).Emit(rec); err != nil {
		log.WithError(err).Error("cannot write report")
	}

	kind, code := core.Classify(runErr)
	if runErr != nil {
		log.WithError(runErr).WithField("kind", kind).Error("job failed")
	}
	return code
}

func cmdSchema(args []string) int {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	fs.Parse(args)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(core.Schema()); err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}
	return 0
}
