package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"

	"stepci/internal/core"
	"stepci/internal/logging"
)

func TestWatchLoopRerunsOncePerBurst(t *testing.T) {
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	src := filepath.Join(dir, "src", "lib.rs")

	events := make(chan fsnotify.Event, 8)
	errs := make(chan error)
	ran := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- watchLoop(ctx, events, errs, []string{logs}, 50*time.Millisecond, logging.Discard(), core.ExitOK, func() int {
			ran <- struct{}{}
			return core.ExitStep
		})
	}()

	events <- fsnotify.Event{Name: filepath.Join(logs, "lint_fmt.log"), Op: fsnotify.Create}
	events <- fsnotify.Event{Name: src, Op: fsnotify.Chmod}
	select {
	case <-ran:
		t.Fatal("rerun for an ignored change")
	case <-time.After(200 * time.Millisecond):
	}

	for i := 0; i < 3; i++ {
		events <- fsnotify.Event{Name: src, Op: fsnotify.Write}
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("no rerun after a change")
	}
	select {
	case <-ran:
		t.Fatal("one burst caused two reruns")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.Equal(t, core.ExitStep, <-done)
}

func TestWatchLoopStopsWhenWatcherCloses(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)

	code := watchLoop(context.Background(), events, make(chan error), nil, time.Millisecond, logging.Discard(), core.ExitToolchain, func() int {
		t.Fatal("rerun after close")
		return 0
	})
	assert.Equal(t, core.ExitToolchain, code)
}
