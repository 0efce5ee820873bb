package environment

import (
	"context"
	"sync"
)

// Fake is an in-memory Environment for tests. Scripts not listed in Results
// exit 0 with no output.
type Fake struct {
	Results map[string]Result

	// Handler, when set, takes precedence over Results.
	Handler func(ctx context.Context, c Command) (*Result, error)

	SetupErr error

	mu       sync.Mutex
	executed []Command
	torndown bool
}

func NewFake() *Fake {
	return &Fake{Results: map[string]Result{}}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Setup(ctx context.Context) error { return f.SetupErr }

func (f *Fake) Exec(ctx context.Context, c Command) (*Result, error) {
	f.mu.Lock()
	f.executed = append(f.executed, c)
	f.mu.Unlock()

	if f.Handler != nil {
		return f.Handler(ctx, c)
	}
	res := f.Results[c.Script]
	if c.Output != nil {
		c.Output.Write(res.Stdout)
		c.Output.Write(res.Stderr)
	}
	return &res, nil
}

func (f *Fake) Teardown(ctx context.Context) error {
	f.mu.Lock()
	f.torndown = true
	f.mu.Unlock()
	return nil
}

// Executed lists the scripts run so far, in order
func (f *Fake) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.executed))
	for _, c := range f.executed {
		out = append(out, c.Script)
	}
	return out
}

// Commands returns the full commands run so far
func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.executed...)
}

func (f *Fake) TornDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.torndown
}
