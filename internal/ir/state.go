package ir

// State represents the persisted record of everything previously applied
// in one workspace.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Workspace string           `json:"workspace"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`

	// SensitiveOutputs names the outputs declared sensitive at the time
	// they were recorded, so masking works even when the configuration
	// is not loadable.
	SensitiveOutputs []string `json:"sensitiveOutputs,omitempty"`
}

// ResourceState is the last-applied record for a single resource.
type ResourceState struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Provider string `json:"provider"`

	// ID is the provider-assigned identity (e.g. an ARM resource ID).
	ID string `json:"id"`

	// Inputs are the attribute values the resource was last applied with,
	// after reference resolution.
	Inputs map[string]any `json:"inputs"`

	// Outputs are the values the provider returned on the last apply.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Dependencies records the addresses this resource referenced at apply
	// time, so deletes can be ordered even after the declaration is gone.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Addr returns the state record's resource address (type.name).
func (r *ResourceState) Addr() string {
	return r.Type + "." + r.Name
}
