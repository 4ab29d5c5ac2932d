package azure

import (
	"context"
	"encoding/base64"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"

	"github.com/vmforge/vmforge/internal/provider"
)

type VirtualMachineConfig struct {
	Name               string            `json:"name"`
	ResourceGroup      string            `json:"resourceGroup"`
	Location           string            `json:"location"`
	Size               string            `json:"size"`
	AdminUsername      string            `json:"adminUsername"`
	AdminPassword      string            `json:"adminPassword"`
	NetworkInterfaceID string            `json:"networkInterfaceId"`
	Image              ImageReference    `json:"image"`
	OSDiskType         string            `json:"osDiskType"`
	CustomData         string            `json:"customData"`
	Tags               map[string]string `json:"tags"`
}

type ImageReference struct {
	Publisher string `json:"publisher"`
	Offer     string `json:"offer"`
	SKU       string `json:"sku"`
	Version   string `json:"version"`
}

func (p *Provider) upsertVirtualMachine(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg VirtualMachineConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}
	if cfg.Size == "" {
		cfg.Size = "Standard_DS1_v2"
	}
	if cfg.OSDiskType == "" {
		cfg.OSDiskType = string(armcompute.StorageAccountTypesStandardLRS)
	}
	if cfg.Image.Publisher == "" {
		cfg.Image = ImageReference{
			Publisher: "Canonical",
			Offer:     "0001-com-ubuntu-server-jammy",
			SKU:       "22_04-lts-gen2",
			Version:   "latest",
		}
	}

	osProfile := &armcompute.OSProfile{
		ComputerName:  to.Ptr(cfg.Name),
		AdminUsername: to.Ptr(cfg.AdminUsername),
		AdminPassword: to.Ptr(cfg.AdminPassword),
		LinuxConfiguration: &armcompute.LinuxConfiguration{
			DisablePasswordAuthentication: to.Ptr(false),
		},
	}
	if cfg.CustomData != "" {
		osProfile.CustomData = to.Ptr(base64.StdEncoding.EncodeToString([]byte(cfg.CustomData)))
	}

	params := armcompute.VirtualMachine{
		Location: to.Ptr(cfg.Location),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(cfg.Size)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{
					Publisher: to.Ptr(cfg.Image.Publisher),
					Offer:     to.Ptr(cfg.Image.Offer),
					SKU:       to.Ptr(cfg.Image.SKU),
					Version:   to.Ptr(cfg.Image.Version),
				},
				OSDisk: &armcompute.OSDisk{
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypes(cfg.OSDiskType)),
					},
				},
			},
			OSProfile: osProfile,
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: to.Ptr(cfg.NetworkInterfaceID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{
						Primary: to.Ptr(true),
					},
				}},
			},
		},
	}
	if len(cfg.Tags) > 0 {
		params.Tags = make(map[string]*string, len(cfg.Tags))
		for k, v := range cfg.Tags {
			params.Tags[k] = to.Ptr(v)
		}
	}

	poller, err := p.vms.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.Name, params, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	outputs := map[string]any{
		"id":   toValue(result.ID),
		"name": cfg.Name,
		"size": cfg.Size,
	}
	if result.Properties != nil {
		outputs["provisioningState"] = toValue(result.Properties.ProvisioningState)
	}
	return &provider.Response{ID: toValue(result.ID), Outputs: outputs}, nil
}

func (p *Provider) readVirtualMachine(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg VirtualMachineConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.vms.Get(ctx, cfg.ResourceGroup, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	outputs := map[string]any{
		"id":   toValue(resp.ID),
		"name": cfg.Name,
		"size": cfg.Size,
	}
	if resp.Properties != nil {
		outputs["provisioningState"] = toValue(resp.Properties.ProvisioningState)
	}
	return &provider.Response{ID: toValue(resp.ID), Outputs: outputs}, nil
}

func (p *Provider) deleteVirtualMachine(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}

	poller, err := p.vms.BeginDelete(ctx, rid.ResourceGroupName, rid.Name, nil)
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
