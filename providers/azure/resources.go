package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/vmforge/vmforge/internal/provider"
)

type GroupConfig struct {
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Tags     map[string]string `json:"tags"`
}

func (p *Provider) createGroup(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg GroupConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}

	params := armresources.ResourceGroup{
		Location: to.Ptr(cfg.Location),
	}
	if len(cfg.Tags) > 0 {
		params.Tags = make(map[string]*string, len(cfg.Tags))
		for k, v := range cfg.Tags {
			params.Tags[k] = to.Ptr(v)
		}
	}

	resp, err := p.groups.CreateOrUpdate(ctx, cfg.Name, params, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(resp.ID),
		Outputs: map[string]any{
			"id":       toValue(resp.ID),
			"name":     cfg.Name,
			"location": cfg.Location,
		},
	}, nil
}

func (p *Provider) readGroup(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg GroupConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.groups.Get(ctx, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(resp.ID),
		Outputs: map[string]any{
			"id":       toValue(resp.ID),
			"name":     cfg.Name,
			"location": toValue(resp.Location),
		},
	}, nil
}

func (p *Provider) deleteGroup(ctx context.Context, req *provider.Request) error {
	var cfg GroupConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%v", req.Prior["name"])
	}

	poller, err := p.groups.BeginDelete(ctx, name, nil)
	if err != nil {
		if notFound(err) {
			return nil
		}
		return wrapError("delete", req.Kind, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return wrapError("delete", req.Kind, err)
	}
	return nil
}
