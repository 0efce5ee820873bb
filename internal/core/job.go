package core

import (
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"stepci/internal/cache"
	"stepci/internal/toolchain"
)

// Job is one complete, ordered run of steps (e.g. fmt -> clippy -> doctest)
type Job struct {
	Name   string `yaml:"name" json:"name"`
	Preset string `yaml:"preset,omitempty" json:"preset,omitempty" jsonschema:"enum=rust-lint"`

	// Packages is a whitespace-separated list of OS packages to provision.
	Packages string            `yaml:"packages,omitempty" json:"packages,omitempty"`
	Inputs   map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Toolchain *toolchain.Spec `yaml:"toolchain,omitempty" json:"toolchain,omitempty"`
	Cache     *cache.Spec     `yaml:"cache,omitempty" json:"cache,omitempty"`
	Steps     []Step          `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Step is a single shell command inside a job
type Step struct {
	Name string `yaml:"name" json:"name"`
	Run  string `yaml:"run" json:"run"`

	// If is an expression evaluated right before the step; false skips it.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	Env              map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	Timeout          Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Duration is a time.Duration written as "90s" or "30m" in job files
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration, e.g. 90s or 30m",
	}
}
