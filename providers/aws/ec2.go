package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/raivaus/types"
)

// InstanceProvider tears down EC2 instances.
type InstanceProvider struct {
	session
}

func NewInstanceProvider(pool *ClientPool) *InstanceProvider {
	return &InstanceProvider{session: newSession(pool)}
}

func (p *InstanceProvider) Type() string { return "instance" }

func (p *InstanceProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := ec2.NewDescribeInstancesPaginator(c.EC2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   awssdk.String("instance-state-name"),
				Values: []string{"pending", "running", "stopping", "stopped"},
			},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				tags := tagMap(instance.Tags)
				records = append(records, types.ResourceRecord{
					Type:    p.Type(),
					ID:      awssdk.ToString(instance.InstanceId),
					Name:    nameFromTags(tags),
					Region:  region,
					Account: account,
					Attributes: map[string]any{
						"state":    string(instance.State.Name),
						"vpc_id":   awssdk.ToString(instance.VpcId),
						"tags":     tags,
						"attached": true,
					},
					References: types.NewReferenceSet(),
				})
			}
		}
	}
	return records, nil
}

func (p *InstanceProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, err
	}
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			return map[string]any{
				"state": string(instance.State.Name),
				"tags":  tagMap(instance.Tags),
			}, nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", id)
}

func (p *InstanceProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	})
	return outcomeFromError(err)
}

func (p *InstanceProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// SecurityGroupProvider tears down security groups. Group-to-group rule
// references are surfaced as References so mutually-referencing groups
// can be broken apart rule by rule.
type SecurityGroupProvider struct {
	session

	// defaults holds the IDs of VPC default groups seen during List.
	// Default groups cannot be deleted, and rules pointing at them are
	// permanent for our purposes.
	defaults map[string]struct{}
}

func NewSecurityGroupProvider(pool *ClientPool) *SecurityGroupProvider {
	return &SecurityGroupProvider{
		session:  newSession(pool),
		defaults: make(map[string]struct{}),
	}
}

func (p *SecurityGroupProvider) Type() string { return "security_group" }

func (p *SecurityGroupProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	attached, err := p.attachedGroups(ctx, c)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := ec2.NewDescribeSecurityGroupsPaginator(c.EC2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe security groups: %w", err)
		}
		for _, group := range page.SecurityGroups {
			id := awssdk.ToString(group.GroupId)
			if awssdk.ToString(group.GroupName) == "default" {
				p.defaults[id] = struct{}{}
				continue
			}

			tags := tagMap(group.Tags)
			_, isAttached := attached[id]
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    awssdk.ToString(group.GroupName),
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"description": awssdk.ToString(group.Description),
					"vpc_id":      awssdk.ToString(group.VpcId),
					"tags":        tags,
					"attached":    isAttached,
				},
				References: groupReferences(group, id),
			})
		}
	}
	return records, nil
}

// attachedGroups returns the IDs of groups bound to at least one network
// interface.
func (p *SecurityGroupProvider) attachedGroups(ctx context.Context, c *Clients) (map[string]struct{}, error) {
	attached := make(map[string]struct{})
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(c.EC2, &ec2.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe network interfaces: %w", err)
		}
		for _, eni := range page.NetworkInterfaces {
			for _, group := range eni.Groups {
				attached[awssdk.ToString(group.GroupId)] = struct{}{}
			}
		}
	}
	return attached, nil
}

// groupReferences collects the peer group IDs named by ingress and egress
// rules. Self references are included; the resolver ignores them.
func groupReferences(group ec2types.SecurityGroup, selfID string) types.ReferenceSet {
	refs := types.NewReferenceSet()
	for _, perm := range group.IpPermissions {
		for _, pair := range perm.UserIdGroupPairs {
			refs.Add(awssdk.ToString(pair.GroupId))
		}
	}
	for _, perm := range group.IpPermissionsEgress {
		for _, pair := range perm.UserIdGroupPairs {
			refs.Add(awssdk.ToString(pair.GroupId))
		}
	}
	refs.Remove(selfID)
	return refs
}

func (p *SecurityGroupProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(out.SecurityGroups) == 0 {
		return nil, fmt.Errorf("security group %s not found", id)
	}
	group := out.SecurityGroups[0]
	return map[string]any{
		"description": awssdk.ToString(group.Description),
		"vpc_id":      awssdk.ToString(group.VpcId),
		"tags":        tagMap(group.Tags),
	}, nil
}

func (p *SecurityGroupProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: awssdk.String(id),
	})
	return outcomeFromError(err)
}

// ClearReference revokes every ingress and egress rule on group id that
// names the peer group reference.
func (p *SecurityGroupProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	c, err := p.bound()
	if err != nil {
		return types.ClearResult{Kind: types.ClearFailed, Err: err}
	}

	out, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{id},
	})
	if err != nil {
		return clearFromError(err)
	}
	if len(out.SecurityGroups) == 0 {
		return types.ClearResult{Kind: types.ClearAlreadyCleared}
	}
	group := out.SecurityGroups[0]

	ingress := rulesNaming(group.IpPermissions, reference)
	egress := rulesNaming(group.IpPermissionsEgress, reference)
	if len(ingress) == 0 && len(egress) == 0 {
		return types.ClearResult{Kind: types.ClearAlreadyCleared}
	}

	if len(ingress) > 0 {
		_, err = c.EC2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       awssdk.String(id),
			IpPermissions: ingress,
		})
		if result := clearFromError(err); result.Kind == types.ClearFailed {
			return result
		}
	}
	if len(egress) > 0 {
		_, err = c.EC2.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
			GroupId:       awssdk.String(id),
			IpPermissions: egress,
		})
		if result := clearFromError(err); result.Kind == types.ClearFailed {
			return result
		}
	}
	return types.ClearResult{Kind: types.ClearCleared}
}

// IsPermanentReference reports whether the referenced peer is a VPC
// default group. Rules naming default groups are left alone.
func (p *SecurityGroupProvider) IsPermanentReference(reference string) bool {
	_, ok := p.defaults[reference]
	return ok
}

// rulesNaming filters permissions down to those whose group pairs name
// the given peer, keeping only the matching pairs in each permission.
func rulesNaming(perms []ec2types.IpPermission, peer string) []ec2types.IpPermission {
	var matched []ec2types.IpPermission
	for _, perm := range perms {
		var pairs []ec2types.UserIdGroupPair
		for _, pair := range perm.UserIdGroupPairs {
			if awssdk.ToString(pair.GroupId) == peer {
				pairs = append(pairs, pair)
			}
		}
		if len(pairs) == 0 {
			continue
		}
		matched = append(matched, ec2types.IpPermission{
			IpProtocol:       perm.IpProtocol,
			FromPort:         perm.FromPort,
			ToPort:           perm.ToPort,
			UserIdGroupPairs: pairs,
		})
	}
	return matched
}

// AddressProvider tears down Elastic IPs.
type AddressProvider struct {
	session
}

func NewAddressProvider(pool *ClientPool) *AddressProvider {
	return &AddressProvider{session: newSession(pool)}
}

func (p *AddressProvider) Type() string { return "eip" }

func (p *AddressProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	out, err := c.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe addresses: %w", err)
	}

	var records []types.ResourceRecord
	for _, addr := range out.Addresses {
		tags := tagMap(addr.Tags)
		records = append(records, types.ResourceRecord{
			Type:    p.Type(),
			ID:      awssdk.ToString(addr.AllocationId),
			Name:    nameFromTags(tags),
			Region:  region,
			Account: account,
			Attributes: map[string]any{
				"public_ip": awssdk.ToString(addr.PublicIp),
				"tags":      tags,
				"attached":  addr.AssociationId != nil,
			},
			References: types.NewReferenceSet(),
		})
	}
	return records, nil
}

func (p *AddressProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		AllocationIds: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Addresses) == 0 {
		return nil, fmt.Errorf("address %s not found", id)
	}
	addr := out.Addresses[0]
	return map[string]any{
		"public_ip": awssdk.ToString(addr.PublicIp),
		"tags":      tagMap(addr.Tags),
	}, nil
}

func (p *AddressProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.EC2.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{
		AllocationId: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *AddressProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
