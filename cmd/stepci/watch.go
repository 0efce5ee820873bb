package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounce collapses editor save bursts into one rerun
const debounce = 300 * time.Millisecond

func cmdWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var rf runFlags
	rf.register(fs)
	paths := fs.String("paths", "", "comma-separated extra files or directories to watch (default: the working directory)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: stepci watch [flags] <job.yaml>")
		return exitUsage
	}
	jobPath := fs.Arg(0)

	cfg, log, factory, err := setup(rf.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stepci:", err)
		return exitUsage
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("cannot start file watcher")
		return exitUsage
	}
	defer watcher.Close()

	targets := []string{jobPath}
	if *paths != "" {
		targets = append(targets, strings.Split(*paths, ",")...)
	} else if rf.workDir != "" {
		targets = append(targets, rf.workDir)
	} else {
		targets = append(targets, cfg.WorkDir)
	}
	for _, p := range targets {
		if err := watcher.Add(p); err != nil {
			log.WithError(err).WithField("path", p).Error("cannot watch path")
			return exitUsage
		}
	}
	ignored := []string{cfg.LogsDir, cfg.CacheDir, cfg.LedgerPath}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := rf.options(fs)
	code := runOnce(ctx, cfg, log, factory, jobPath, &rf, opts)
	log.WithField("paths", targets).Info("watching for changes")

	return watchLoop(ctx, watcher.Events, watcher.Errors, ignored, debounce, log, code, func() int {
		code := runOnce(ctx, cfg, log, factory, jobPath, &rf, opts)
		// Editors replace files on save, which drops the watch on the old inode.
		watcher.Add(jobPath)
		return code
	})
}

// watchLoop calls rerun once per burst of relevant changes, delay after the
// last one, until ctx ends or the watcher closes. It returns the last exit code.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, ignored []string, delay time.Duration, log logrus.FieldLogger, code int, rerun func() int) int {
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return code
		case ev, ok := <-events:
			if !ok {
				return code
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || isIgnored(ev.Name, ignored) {
				continue
			}
			log.WithFields(logrus.Fields{"file": ev.Name, "op": ev.Op.String()}).Debug("change detected")
			timer = time.After(delay)
		case err, ok := <-errs:
			if !ok {
				return code
			}
			log.WithError(err).Warn("watcher error")
		case <-timer:
			timer = nil
			code = rerun()
		}
	}
}

// isIgnored reports whether name lives under one of the runner's own output paths
func isIgnored(name string, dirs []string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		dabs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if abs == dabs || strings.HasPrefix(abs, dabs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
