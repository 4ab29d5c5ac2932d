package ir

// Config represents the top-level configuration.
type Config struct {
	Environment string                       `pkl:"environment"`
	Project     string                       `pkl:"project"`
	Variables   []*Variable                  `pkl:"variables"`
	Providers   map[string]map[string]string `pkl:"providers"`
	Resources   []*Resource                  `pkl:"resources"`
	Outputs     map[string]*Output           `pkl:"outputs"`
	Backend     *Backend                     `pkl:"backend"`
}

// Variable declares a typed input with an optional default and an optional
// validation constraint (a go-playground/validator tag, e.g. "oneof=dev staging production").
type Variable struct {
	Name        string `pkl:"name"`
	Type        string `pkl:"type"` // "string", "number", "bool", "list", "map"
	Default     any    `pkl:"default"`
	Validation  string `pkl:"validation"`
	Description string `pkl:"description"`
	Sensitive   bool   `pkl:"sensitive"`
}

// Output declares a named value derived from resource attributes.
// Sensitive outputs are never rendered in plaintext summaries.
type Output struct {
	Value       any    `pkl:"value"`
	Sensitive   bool   `pkl:"sensitive"`
	Description string `pkl:"description"`
}

// Backend selects and configures the state storage backend.
type Backend struct {
	Type   string            `pkl:"type"` // "local", "s3"
	Config map[string]string `pkl:"config"`
}
