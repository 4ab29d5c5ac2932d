package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request carries one operation's input across the provider boundary.
type Request struct {
	// Kind is the resource kind, e.g. "azure:Network.Subnet".
	Kind string

	// Name is the declared resource name.
	Name string

	// ID is the provider-assigned identity of an existing resource.
	// Empty for creates.
	ID string

	// Attributes are the desired attribute values, references resolved.
	Attributes map[string]any

	// Prior holds the outputs recorded on the last successful apply.
	Prior map[string]any
}

// Response is the result of a successful create, read or update.
type Response struct {
	// ID is the provider-assigned identity.
	ID string

	// Outputs are the provider-returned attribute values to record.
	Outputs map[string]any
}

// Interface is the contract every resource provider implements.
// Adapters are stateless; all state transitions are recorded by the caller.
type Interface interface {
	// Name returns the provider's registry name.
	Name() string

	// Configure prepares the provider with backend settings
	// (credentials source, subscription, default location).
	Configure(ctx context.Context, settings map[string]string) error

	// Create provisions a new resource and returns its identity and outputs.
	Create(ctx context.Context, req *Request) (*Response, error)

	// Read fetches the current remote values of an existing resource.
	// A nil response with nil error means the resource no longer exists.
	Read(ctx context.Context, req *Request) (*Response, error)

	// Update reconciles an existing resource to the desired attributes.
	Update(ctx context.Context, req *Request) (*Response, error)

	// Delete removes an existing resource.
	Delete(ctx context.Context, req *Request) error
}

// DecodeAttributes maps a request's loosely typed attributes onto a typed
// config struct via a JSON round trip.
func DecodeAttributes(attrs map[string]any, out any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}
	return nil
}
