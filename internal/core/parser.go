package core

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stepci/internal/provision"
	"stepci/internal/toolchain"
)

// reserved names are used by the runner for its own report entries
var reserved = map[string]bool{
	provision.StepName: true,
	toolchain.StepName: true,
	SetupStepName:      true,
}

// ParseJob parses YAML content into a validated Job
func ParseJob(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, errors.Wrap(err, "parse job")
	}
	if err := applyPreset(&job); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadJob reads and parses a job file
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return job, nil
}

// Validate checks everything that can be checked before a run
func (j *Job) Validate() error {
	if j.Name == "" {
		return errors.New("job name is required")
	}
	if len(j.Steps) == 0 {
		return errors.Errorf("job %s has no steps", j.Name)
	}
	if j.Timeout < 0 {
		return errors.New("job timeout must not be negative")
	}
	if j.Toolchain != nil {
		if err := j.Toolchain.Validate(); err != nil {
			return err
		}
	}
	if j.Cache != nil {
		if err := j.Cache.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(j.Steps))
	for i, s := range j.Steps {
		label := fmt.Sprintf("step %d", i+1)
		if s.Name == "" {
			return errors.Errorf("%s: name is required", label)
		}
		if reserved[s.Name] {
			return errors.Errorf("%s: name %q is reserved", label, s.Name)
		}
		if seen[s.Name] {
			return errors.Errorf("%s: duplicate name %q", label, s.Name)
		}
		seen[s.Name] = true
		if s.Run == "" {
			return errors.Errorf("step %s: run is required", s.Name)
		}
		if s.Timeout < 0 {
			return errors.Errorf("step %s: timeout must not be negative", s.Name)
		}
		if err := CompileCondition(s.If); err != nil {
			return errors.Wrapf(err, "step %s", s.Name)
		}
	}
	return nil
}
