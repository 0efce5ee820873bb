package core

import (
	"github.com/pkg/errors"

	"stepci/internal/cache"
	"stepci/internal/toolchain"
)

// Preset fills in what a well-known job leaves out
type Preset struct {
	Toolchain toolchain.Spec
	Cache     cache.Spec
	Env       map[string]string
	Steps     []Step
}

// Presets maps preset names to their defaults. rust-lint is the format,
// lint and documentation-test job.
var Presets = map[string]Preset{
	"rust-lint": {
		Toolchain: toolchain.Spec{
			Kind:       toolchain.KindRustup,
			Channel:    "stable",
			Components: []string{"rustfmt", "clippy"},
		},
		Cache: cache.Spec{
			KeyPrefix: "cargo",
			KeyFiles:  []string{"Cargo.lock", "rust-toolchain.toml"},
			Paths:     []string{"target"},
		},
		Env: map[string]string{"CARGO_TERM_COLOR": "always"},
		Steps: []Step{
			{Name: "fmt", Run: "cargo fmt --all -- --check"},
			{Name: "clippy", Run: "cargo clippy --all-targets --all-features -- -D warnings"},
			{Name: "doctest", Run: "cargo test --doc"},
		},
	},
}

// applyPreset fills unset fields from the job's preset. Anything the job
// declares itself wins.
func applyPreset(job *Job) error {
	if job.Preset == "" {
		return nil
	}
	p, ok := Presets[job.Preset]
	if !ok {
		return errors.Errorf("unknown preset %q", job.Preset)
	}
	if job.Toolchain == nil {
		tc := p.Toolchain
		job.Toolchain = &tc
	}
	if job.Cache == nil {
		c := p.Cache
		job.Cache = &c
	}
	if len(job.Steps) == 0 {
		job.Steps = append([]Step(nil), p.Steps...)
	}
	for k, v := range p.Env {
		if _, set := job.Env[k]; !set {
			if job.Env == nil {
				job.Env = make(map[string]string)
			}
			job.Env[k] = v
		}
	}
	return nil
}

// Scheduler decides the order steps run in. Steps run strictly in declared
// order; the only ordering decision left is which steps a run includes.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Plan returns the steps of job to run, optionally narrowed to only.
// Unknown names in only are an error.
func (s *Scheduler) Plan(job *Job, only []string) ([]Step, error) {
	if len(only) == 0 {
		return append([]Step(nil), job.Steps...), nil
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}
	var steps []Step
	for _, st := range job.Steps {
		if want[st.Name] {
			steps = append(steps, st)
			delete(want, st.Name)
		}
	}
	for name := range want {
		return nil, errors.Errorf("job %s has no step %q", job.Name, name)
	}
	return steps, nil
}
