package ir

// OpKind classifies an operation in a plan.
type OpKind string

const (
	OpCreate OpKind = "CREATE"
	OpUpdate OpKind = "UPDATE"
	OpDelete OpKind = "DELETE"
	OpNoOp   OpKind = "NOOP"
)

// Plan is an ordered set of operations that reconciles the declared
// configuration with recorded state. It is immutable once computed and
// consumed exactly once by the executor.
type Plan struct {
	Metadata   *PlanMetadata      `json:"metadata"`
	Operations []*Operation       `json:"operations"` // dependency order; no-ops are summarized, not listed
	Summary    *PlanSummary       `json:"summary"`
	Outputs    map[string]*Output `json:"outputs,omitempty"`
}

type PlanMetadata struct {
	Timestamp   string `json:"timestamp"`
	Workspace   string `json:"workspace"`
	StateSerial int    `json:"stateSerial"`
}

// Operation describes a single create, update or delete against one resource.
type Operation struct {
	Kind     OpKind                    `json:"kind"`
	Address  string                    `json:"address"`
	Provider string                    `json:"provider"`
	Desired  *Resource                 `json:"desired,omitempty"` // nil for deletes
	Old      map[string]any            `json:"old,omitempty"`     // recorded inputs, nil for creates
	New      map[string]any            `json:"new,omitempty"`     // desired attributes with references resolved where possible
	Diff     map[string]*AttributeDiff `json:"diff,omitempty"`

	// DependsOn lists the addresses this operation must wait for,
	// restricted to addresses that also have an operation in the plan.
	DependsOn []string `json:"dependsOn,omitempty"`

	// DeclIndex carries the declaration position for deterministic tie-breaks.
	DeclIndex int `json:"declIndex"`
}

type AttributeDiff struct {
	Before any    `json:"before"`
	After  any    `json:"after"`
	Action string `json:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	NoOp   int `json:"noop"`
}

// Empty reports whether the plan contains no actionable operations.
func (p *Plan) Empty() bool {
	return len(p.Operations) == 0
}
