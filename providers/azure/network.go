package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	armnetwork "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/vmforge/vmforge/internal/provider"
)

type VirtualNetworkConfig struct {
	Name          string            `json:"name"`
	ResourceGroup string            `json:"resourceGroup"`
	Location      string            `json:"location"`
	AddressSpace  []string          `json:"addressSpace"`
	Tags          map[string]string `json:"tags"`
}

type SubnetConfig struct {
	Name           string `json:"name"`
	ResourceGroup  string `json:"resourceGroup"`
	VirtualNetwork string `json:"virtualNetwork"`
	AddressPrefix  string `json:"addressPrefix"`
}

type SecurityGroupConfig struct {
	Name          string         `json:"name"`
	ResourceGroup string         `json:"resourceGroup"`
	Location      string         `json:"location"`
	Rules         []SecurityRule `json:"rules"`
}

type SecurityRule struct {
	Name                     string `json:"name"`
	Priority                 int32  `json:"priority"`
	Direction                string `json:"direction"`
	Access                   string `json:"access"`
	Protocol                 string `json:"protocol"`
	SourcePortRange          string `json:"sourcePortRange"`
	DestinationPortRange     string `json:"destinationPortRange"`
	SourceAddressPrefix      string `json:"sourceAddressPrefix"`
	DestinationAddressPrefix string `json:"destinationAddressPrefix"`
}

type PublicIPConfig struct {
	Name             string `json:"name"`
	ResourceGroup    string `json:"resourceGroup"`
	Location         string `json:"location"`
	AllocationMethod string `json:"allocationMethod"`
	SKU              string `json:"sku"`
}

type InterfaceConfig struct {
	Name                string `json:"name"`
	ResourceGroup       string `json:"resourceGroup"`
	Location            string `json:"location"`
	SubnetID            string `json:"subnetId"`
	PublicIPID          string `json:"publicIpId"`
	PrivateIPAllocation string `json:"privateIpAllocation"`
}

type AssociationConfig struct {
	NetworkInterfaceID     string `json:"networkInterfaceId"`
	NetworkSecurityGroupID string `json:"networkSecurityGroupId"`
}

func (p *Provider) upsertVirtualNetwork(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg VirtualNetworkConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}

	prefixes := make([]*string, len(cfg.AddressSpace))
	for i, prefix := range cfg.AddressSpace {
		prefixes[i] = to.Ptr(prefix)
	}

	params := armnetwork.VirtualNetwork{
		Location: to.Ptr(cfg.Location),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{
				AddressPrefixes: prefixes,
			},
		},
	}
	if len(cfg.Tags) > 0 {
		params.Tags = make(map[string]*string, len(cfg.Tags))
		for k, v := range cfg.Tags {
			params.Tags[k] = to.Ptr(v)
		}
	}

	poller, err := p.vnets.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.Name, params, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(result.ID),
		Outputs: map[string]any{
			"id":            toValue(result.ID),
			"name":          cfg.Name,
			"resourceGroup": cfg.ResourceGroup,
		},
	}, nil
}

func (p *Provider) readVirtualNetwork(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg VirtualNetworkConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.vnets.Get(ctx, cfg.ResourceGroup, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(resp.ID),
		Outputs: map[string]any{
			"id":            toValue(resp.ID),
			"name":          cfg.Name,
			"resourceGroup": cfg.ResourceGroup,
		},
	}, nil
}

func (p *Provider) deleteVirtualNetwork(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}

	poller, err := p.vnets.BeginDelete(ctx, rid.ResourceGroupName, rid.Name, nil)
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

func (p *Provider) upsertSubnet(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg SubnetConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}

	params := armnetwork.Subnet{
		Properties: &armnetwork.SubnetPropertiesFormat{
			AddressPrefix: to.Ptr(cfg.AddressPrefix),
		},
	}

	poller, err := p.subnets.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.VirtualNetwork, cfg.Name, params, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(result.ID),
		Outputs: map[string]any{
			"id":            toValue(result.ID),
			"name":          cfg.Name,
			"addressPrefix": cfg.AddressPrefix,
		},
	}, nil
}

func (p *Provider) readSubnet(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg SubnetConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.subnets.Get(ctx, cfg.ResourceGroup, cfg.VirtualNetwork, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	outputs := map[string]any{
		"id":   toValue(resp.ID),
		"name": cfg.Name,
	}
	if resp.Properties != nil {
		outputs["addressPrefix"] = toValue(resp.Properties.AddressPrefix)
	}
	return &provider.Response{ID: toValue(resp.ID), Outputs: outputs}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}
	if rid.Parent == nil {
		return provider.NewPermanent("delete", req.Kind, fmt.Errorf("subnet id %q has no parent network", req.ID))
	}

	poller, err := p.subnets.BeginDelete(ctx, rid.ResourceGroupName, rid.Parent.Name, rid.Name, nil)
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

func (p *Provider) upsertSecurityGroup(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg SecurityGroupConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}

	rules := make([]*armnetwork.SecurityRule, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rules[i] = &armnetwork.SecurityRule{
			Name: to.Ptr(rule.Name),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Priority:                 to.Ptr(rule.Priority),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirection(rule.Direction)),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccess(rule.Access)),
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocol(rule.Protocol)),
				SourcePortRange:          to.Ptr(rule.SourcePortRange),
				DestinationPortRange:     to.Ptr(rule.DestinationPortRange),
				SourceAddressPrefix:      to.Ptr(rule.SourceAddressPrefix),
				DestinationAddressPrefix: to.Ptr(rule.DestinationAddressPrefix),
			},
		}
	}

	params := armnetwork.SecurityGroup{
		Location: to.Ptr(cfg.Location),
		Properties: &armnetwork.SecurityGroupPropertiesFormat{
			SecurityRules: rules,
		},
	}

	poller, err := p.nsgs.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.Name, params, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	result, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(result.ID),
		Outputs: map[string]any{
			"id":   toValue(result.ID),
			"name": cfg.Name,
		},
	}, nil
}

func (p *Provider) readSecurityGroup(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg SecurityGroupConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.nsgs.Get(ctx, cfg.ResourceGroup, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	return &provider.Response{
		ID: toValue(resp.ID),
		Outputs: map[string]any{
			"id":   toValue(resp.ID),
			"name": cfg.Name,
		},
	}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}

	poller, err := p.nsgs.BeginDelete(ctx, rid.ResourceGroupName, rid.Name, nil)
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

func (p *Provider) upsertPublicIP(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg PublicIPConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}
	if cfg.AllocationMethod == "" {
		cfg.AllocationMethod = string(armnetwork.IPAllocationMethodStatic)
	}

	params := armnetwork.PublicIPAddress{
		Location: to.Ptr(cfg.Location),
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{
			PublicIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethod(cfg.AllocationMethod)),
		},
	}
	if cfg.SKU != "" {
		params.SKU = &armnetwork.PublicIPAddressSKU{
			Name: to.Ptr(armnetwork.PublicIPAddressSKUName(cfg.SKU)),
		}
	}

	poller, err := p.publicIPs.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.Name, params, nil)
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
	}
	if result.Properties != nil {
		outputs["ipAddress"] = toValue(result.Properties.IPAddress)
	}
	return &provider.Response{ID: toValue(result.ID), Outputs: outputs}, nil
}

func (p *Provider) readPublicIP(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg PublicIPConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.publicIPs.Get(ctx, cfg.ResourceGroup, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	outputs := map[string]any{
		"id":   toValue(resp.ID),
		"name": cfg.Name,
	}
	if resp.Properties != nil {
		outputs["ipAddress"] = toValue(resp.Properties.IPAddress)
	}
	return &provider.Response{ID: toValue(resp.ID), Outputs: outputs}, nil
}

func (p *Provider) deletePublicIP(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}

	poller, err := p.publicIPs.BeginDelete(ctx, rid.ResourceGroupName, rid.Name, nil)
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

func (p *Provider) upsertInterface(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg InterfaceConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}
	if cfg.Location == "" {
		cfg.Location = p.location
	}
	if cfg.PrivateIPAllocation == "" {
		cfg.PrivateIPAllocation = string(armnetwork.IPAllocationMethodDynamic)
	}

	ipConfig := &armnetwork.InterfaceIPConfiguration{
		Name: to.Ptr("primary"),
		Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
			Subnet:                    &armnetwork.Subnet{ID: to.Ptr(cfg.SubnetID)},
			PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethod(cfg.PrivateIPAllocation)),
		},
	}
	if cfg.PublicIPID != "" {
		ipConfig.Properties.PublicIPAddress = &armnetwork.PublicIPAddress{ID: to.Ptr(cfg.PublicIPID)}
	}

	params := armnetwork.Interface{
		Location: to.Ptr(cfg.Location),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{ipConfig},
		},
	}

	poller, err := p.nics.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, cfg.Name, params, nil)
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
	}
	if result.Properties != nil && len(result.Properties.IPConfigurations) > 0 {
		if props := result.Properties.IPConfigurations[0].Properties; props != nil {
			outputs["privateIpAddress"] = toValue(props.PrivateIPAddress)
		}
	}
	return &provider.Response{ID: toValue(result.ID), Outputs: outputs}, nil
}

func (p *Provider) readInterface(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg InterfaceConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	resp, err := p.nics.Get(ctx, cfg.ResourceGroup, cfg.Name, nil)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}

	outputs := map[string]any{
		"id":   toValue(resp.ID),
		"name": cfg.Name,
	}
	if resp.Properties != nil && len(resp.Properties.IPConfigurations) > 0 {
		if props := resp.Properties.IPConfigurations[0].Properties; props != nil {
			outputs["privateIpAddress"] = toValue(props.PrivateIPAddress)
		}
	}
	return &provider.Response{ID: toValue(resp.ID), Outputs: outputs}, nil
}

func (p *Provider) deleteInterface(ctx context.Context, req *provider.Request) error {
	rid, err := arm.ParseResourceID(req.ID)
	if err != nil {
		return provider.NewPermanent("delete", req.Kind, err)
	}

	poller, err := p.nics.BeginDelete(ctx, rid.ResourceGroupName, rid.Name, nil)
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

// attachSecurityGroup binds a security group to an interface. The
// association has no ARM identity of its own; it is modelled as a PUT of
// the interface with the security group reference set, and its ID is the
// pair of the two resource IDs.
func (p *Provider) attachSecurityGroup(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg AssociationConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("create", req.Kind, err)
	}

	nic, rid, err := p.getInterfaceByID(ctx, cfg.NetworkInterfaceID)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	if nic.Properties == nil {
		nic.Properties = &armnetwork.InterfacePropertiesFormat{}
	}
	nic.Properties.NetworkSecurityGroup = &armnetwork.SecurityGroup{ID: to.Ptr(cfg.NetworkSecurityGroupID)}

	poller, err := p.nics.BeginCreateOrUpdate(ctx, rid.ResourceGroupName, rid.Name, *nic, nil)
	if err != nil {
		return nil, wrapError("create", req.Kind, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return nil, wrapError("create", req.Kind, err)
	}

	id := cfg.NetworkInterfaceID + "|" + cfg.NetworkSecurityGroupID
	return &provider.Response{
		ID: id,
		Outputs: map[string]any{
			"id":                     id,
			"networkInterfaceId":     cfg.NetworkInterfaceID,
			"networkSecurityGroupId": cfg.NetworkSecurityGroupID,
		},
	}, nil
}

func (p *Provider) readSecurityGroupAttachment(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	var cfg AssociationConfig
	if err := provider.DecodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, provider.NewPermanent("read", req.Kind, err)
	}

	nic, _, err := p.getInterfaceByID(ctx, cfg.NetworkInterfaceID)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, wrapError("read", req.Kind, err)
	}
	if nic.Properties == nil || nic.Properties.NetworkSecurityGroup == nil {
		return nil, nil
	}
	if toValue(nic.Properties.NetworkSecurityGroup.ID) != cfg.NetworkSecurityGroupID {
		return nil, nil
	}

	id := cfg.NetworkInterfaceID + "|" + cfg.NetworkSecurityGroupID
	return &provider.Response{
		ID: id,
		Outputs: map[string]any{
			"id":                     id,
			"networkInterfaceId":     cfg.NetworkInterfaceID,
			"networkSecurityGroupId": cfg.NetworkSecurityGroupID,
		},
	}, nil
}

func (p *Provider) detachSecurityGroup(ctx context.Context, req *provider.Request) error {
	nicID := fmt.Sprintf("%v", req.Prior["networkInterfaceId"])
	nic, rid, err := p.getInterfaceByID(ctx, nicID)
	if err != nil {
		if notFound(err) {
			return nil
		}
		return wrapError("delete", req.Kind, err)
	}
	if nic.Properties == nil || nic.Properties.NetworkSecurityGroup == nil {
		return nil
	}
	nic.Properties.NetworkSecurityGroup = nil

	poller, err := p.nics.BeginCreateOrUpdate(ctx, rid.ResourceGroupName, rid.Name, *nic, nil)
	if err != nil {
		return wrapError("delete", req.Kind, err)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return wrapError("delete", req.Kind, err)
	}
	return nil
}

func (p *Provider) getInterfaceByID(ctx context.Context, id string) (*armnetwork.Interface, *arm.ResourceID, error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid network interface id %q: %w", id, err)
	}
	resp, err := p.nics.Get(ctx, rid.ResourceGroupName, rid.Name, nil)
	if err != nil {
		return nil, nil, err
	}
	return &resp.Interface, rid, nil
}
