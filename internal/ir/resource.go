package ir

// Resource represents a single declared resource.
type Resource struct {
	Type       string         `pkl:"type"` // e.g. "azure:Compute.VirtualMachine"
	Name       string         `pkl:"name"`
	Provider   string         `pkl:"provider"`
	Count      int            `pkl:"count"`    // 0 means a single instance
	CountVar   string         `pkl:"countVar"` // name of a number variable driving Count
	DependsOn  []string       `pkl:"dependsOn"`
	Attributes map[string]any `pkl:"attributes"`

	// DeclIndex is the position of the resource in the declaration order.
	// Assigned by the loader; used to break scheduling ties deterministically.
	DeclIndex int `pkl:"-"`
}
