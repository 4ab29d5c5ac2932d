package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	armnetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/vmforge/vmforge/internal/provider"
)

// Provider provisions Azure resources through the ARM SDK. All calls are
// stateless: every request carries the full desired attributes and, for
// updates and deletes, the recorded prior outputs.
type Provider struct {
	subscriptionID string
	location       string

	groups    *armresources.ResourceGroupsClient
	vnets     *armnetwork.VirtualNetworksClient
	subnets   *armnetwork.SubnetsClient
	nsgs      *armnetwork.SecurityGroupsClient
	publicIPs *armnetwork.PublicIPAddressesClient
	nics      *armnetwork.InterfacesClient
	vms       *armcompute.VirtualMachinesClient
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return "azure"
}

// Configure authenticates against ARM and builds the management clients.
// Credentials come from the default chain (environment, workload identity,
// managed identity, CLI).
func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	subscriptionID := settings["subscription_id"]
	if subscriptionID == "" {
		return fmt.Errorf("azure provider requires subscription_id")
	}
	p.subscriptionID = subscriptionID
	p.location = settings["location"]
	if p.location == "" {
		p.location = "eastus"
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("failed to obtain Azure credential: %w", err)
	}

	if p.groups, err = armresources.NewResourceGroupsClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create resource groups client: %w", err)
	}
	if p.vnets, err = armnetwork.NewVirtualNetworksClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create virtual networks client: %w", err)
	}
	if p.subnets, err = armnetwork.NewSubnetsClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create subnets client: %w", err)
	}
	if p.nsgs, err = armnetwork.NewSecurityGroupsClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create security groups client: %w", err)
	}
	if p.publicIPs, err = armnetwork.NewPublicIPAddressesClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create public IP client: %w", err)
	}
	if p.nics, err = armnetwork.NewInterfacesClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create interfaces client: %w", err)
	}
	if p.vms, err = armcompute.NewVirtualMachinesClient(subscriptionID, cred, nil); err != nil {
		return fmt.Errorf("failed to create virtual machines client: %w", err)
	}

	return nil
}

func (p *Provider) Create(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	switch req.Kind {
	case "azure:Resources.Group":
		return p.createGroup(ctx, req)
	case "azure:Network.VirtualNetwork":
		return p.upsertVirtualNetwork(ctx, req)
	case "azure:Network.Subnet":
		return p.upsertSubnet(ctx, req)
	case "azure:Network.SecurityGroup":
		return p.upsertSecurityGroup(ctx, req)
	case "azure:Network.PublicIP":
		return p.upsertPublicIP(ctx, req)
	case "azure:Network.Interface":
		return p.upsertInterface(ctx, req)
	case "azure:Network.InterfaceSecurityGroupAssociation":
		return p.attachSecurityGroup(ctx, req)
	case "azure:Compute.VirtualMachine":
		return p.upsertVirtualMachine(ctx, req)
	default:
		return nil, provider.NewPermanent("create", req.Kind, fmt.Errorf("unsupported resource kind"))
	}
}

func (p *Provider) Read(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	switch req.Kind {
	case "azure:Resources.Group":
		return p.readGroup(ctx, req)
	case "azure:Network.VirtualNetwork":
		return p.readVirtualNetwork(ctx, req)
	case "azure:Network.Subnet":
		return p.readSubnet(ctx, req)
	case "azure:Network.SecurityGroup":
		return p.readSecurityGroup(ctx, req)
	case "azure:Network.PublicIP":
		return p.readPublicIP(ctx, req)
	case "azure:Network.Interface":
		return p.readInterface(ctx, req)
	case "azure:Network.InterfaceSecurityGroupAssociation":
		return p.readSecurityGroupAttachment(ctx, req)
	case "azure:Compute.VirtualMachine":
		return p.readVirtualMachine(ctx, req)
	default:
		return nil, provider.NewPermanent("read", req.Kind, fmt.Errorf("unsupported resource kind"))
	}
}

func (p *Provider) Update(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	// ARM create and update are both PUT, so updates reuse the upsert
	// paths. Resource groups are the exception: only tags may change.
	switch req.Kind {
	case "azure:Resources.Group":
		return p.createGroup(ctx, req)
	case "azure:Network.InterfaceSecurityGroupAssociation":
		return p.attachSecurityGroup(ctx, req)
	default:
		return p.Create(ctx, req)
	}
}

func (p *Provider) Delete(ctx context.Context, req *provider.Request) error {
	switch req.Kind {
	case "azure:Resources.Group":
		return p.deleteGroup(ctx, req)
	case "azure:Network.VirtualNetwork":
		return p.deleteVirtualNetwork(ctx, req)
	case "azure:Network.Subnet":
		return p.deleteSubnet(ctx, req)
	case "azure:Network.SecurityGroup":
		return p.deleteSecurityGroup(ctx, req)
	case "azure:Network.PublicIP":
		return p.deletePublicIP(ctx, req)
	case "azure:Network.Interface":
		return p.deleteInterface(ctx, req)
	case "azure:Network.InterfaceSecurityGroupAssociation":
		return p.detachSecurityGroup(ctx, req)
	case "azure:Compute.VirtualMachine":
		return p.deleteVirtualMachine(ctx, req)
	default:
		return provider.NewPermanent("delete", req.Kind, fmt.Errorf("unsupported resource kind"))
	}
}
