package null

import (
	"context"
	"fmt"

	"github.com/vmforge/vmforge/internal/provider"
)

// Provider manages trigger-only resources with no backing infrastructure.
// Useful for wiring ordering and for exercising the engine in tests.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "null"
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *Provider) Create(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	id := fmt.Sprintf("null-%s", req.Name)
	outputs := map[string]any{"id": id}
	for k, v := range req.Attributes {
		outputs[k] = v
	}
	return &provider.Response{ID: id, Outputs: outputs}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	// Null resources exist exactly as recorded.
	return &provider.Response{ID: req.ID, Outputs: req.Prior}, nil
}

func (p *Provider) Update(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	outputs := map[string]any{"id": req.ID}
	for k, v := range req.Attributes {
		outputs[k] = v
	}
	return &provider.Response{ID: req.ID, Outputs: outputs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.Request) error {
	return nil
}
