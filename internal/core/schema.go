package core

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of a job file, for editor completion and
// validation outside the runner
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	s := r.Reflect(&Job{})
	s.Title = "stepci job"
	s.Description = "An ordered list of shell steps run in one ephemeral environment, stopping at the first failure."
	return s
}
