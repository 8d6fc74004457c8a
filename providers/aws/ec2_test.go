package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/raivaus/types"
)

// fakeEC2 implements EC2API with overridable behaviors. Unset calls
// return empty results.
type fakeEC2 struct {
	securityGroups []ec2types.SecurityGroup
	interfaces     []ec2types.NetworkInterface

	revokedIngress []string
	revokedEgress  []string
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{}, nil
}

func (f *fakeEC2) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if len(params.GroupIds) == 0 {
		return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: f.securityGroups}, nil
	}
	var matched []ec2types.SecurityGroup
	for _, group := range f.securityGroups {
		for _, id := range params.GroupIds {
			if awssdk.ToString(group.GroupId) == id {
				matched = append(matched, group)
			}
		}
	}
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: matched}, nil
}

func (f *fakeEC2) DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (f *fakeEC2) RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	f.revokedIngress = append(f.revokedIngress, awssdk.ToString(params.GroupId))
	return &ec2.RevokeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) RevokeSecurityGroupEgress(ctx context.Context, params *ec2.RevokeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupEgressOutput, error) {
	f.revokedEgress = append(f.revokedEgress, awssdk.ToString(params.GroupId))
	return &ec2.RevokeSecurityGroupEgressOutput{}, nil
}

func (f *fakeEC2) DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: f.interfaces}, nil
}

func (f *fakeEC2) DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	return &ec2.DescribeAddressesOutput{}, nil
}

func (f *fakeEC2) ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error) {
	return &ec2.ReleaseAddressOutput{}, nil
}

func poolWith(clients *Clients) *ClientPool {
	return NewClientPool(func(ctx context.Context, account, region string) (*Clients, error) {
		return clients, nil
	})
}

func groupWithPeerRule(id, name, peer string) ec2types.SecurityGroup {
	return ec2types.SecurityGroup{
		GroupId:     awssdk.String(id),
		GroupName:   awssdk.String(name),
		Description: awssdk.String("test group"),
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: awssdk.String("tcp"),
				FromPort:   awssdk.Int32(443),
				ToPort:     awssdk.Int32(443),
				UserIdGroupPairs: []ec2types.UserIdGroupPair{
					{GroupId: awssdk.String(peer)},
				},
			},
		},
	}
}

func TestGroupReferences(t *testing.T) {
	group := ec2types.SecurityGroup{
		GroupId: awssdk.String("sg-1"),
		IpPermissions: []ec2types.IpPermission{
			{
				UserIdGroupPairs: []ec2types.UserIdGroupPair{
					{GroupId: awssdk.String("sg-2")},
					{GroupId: awssdk.String("sg-1")}, // self
				},
			},
		},
		IpPermissionsEgress: []ec2types.IpPermission{
			{
				UserIdGroupPairs: []ec2types.UserIdGroupPair{
					{GroupId: awssdk.String("sg-3")},
				},
			},
		},
	}

	refs := groupReferences(group, "sg-1")
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %v", len(refs), refs.IDs())
	}
	if !refs.Contains("sg-2") || !refs.Contains("sg-3") {
		t.Errorf("missing expected references, got %v", refs.IDs())
	}
	if refs.Contains("sg-1") {
		t.Error("self reference must be dropped")
	}
}

func TestSecurityGroupListSkipsDefaults(t *testing.T) {
	fake := &fakeEC2{
		securityGroups: []ec2types.SecurityGroup{
			{
				GroupId:   awssdk.String("sg-default"),
				GroupName: awssdk.String("default"),
			},
			groupWithPeerRule("sg-app", "app", "sg-default"),
		},
	}
	provider := NewSecurityGroupProvider(poolWith(&Clients{EC2: fake}))

	records, err := provider.List(context.Background(), "dev", "eu-west-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != "sg-app" {
		t.Errorf("expected sg-app, got %s", records[0].ID)
	}
	if !provider.IsPermanentReference("sg-default") {
		t.Error("reference to the default group must be permanent")
	}
	if provider.IsPermanentReference("sg-app") {
		t.Error("reference to a normal group must not be permanent")
	}
}

func TestSecurityGroupAttachment(t *testing.T) {
	fake := &fakeEC2{
		securityGroups: []ec2types.SecurityGroup{
			{GroupId: awssdk.String("sg-bound"), GroupName: awssdk.String("bound")},
			{GroupId: awssdk.String("sg-loose"), GroupName: awssdk.String("loose")},
		},
		interfaces: []ec2types.NetworkInterface{
			{
				NetworkInterfaceId: awssdk.String("eni-1"),
				Groups: []ec2types.GroupIdentifier{
					{GroupId: awssdk.String("sg-bound")},
				},
			},
		},
	}
	provider := NewSecurityGroupProvider(poolWith(&Clients{EC2: fake}))

	records, err := provider.List(context.Background(), "dev", "eu-west-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	byID := make(map[string]types.ResourceRecord)
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	sgBound := byID["sg-bound"]
	if !sgBound.IsAttached() {
		t.Error("sg-bound should be attached")
	}
	sgLoose := byID["sg-loose"]
	if sgLoose.IsAttached() {
		t.Error("sg-loose should not be attached")
	}
}

func TestSecurityGroupClearReference(t *testing.T) {
	fake := &fakeEC2{
		securityGroups: []ec2types.SecurityGroup{
			groupWithPeerRule("sg-2", "pair-a", "sg-3"),
		},
	}
	provider := NewSecurityGroupProvider(poolWith(&Clients{EC2: fake}))
	if _, err := provider.List(context.Background(), "dev", "eu-west-1"); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	result := provider.ClearReference(context.Background(), "sg-2", "sg-3")
	if result.Kind != types.ClearCleared {
		t.Fatalf("ClearReference() = %v, want cleared", result.Kind)
	}
	if len(fake.revokedIngress) != 1 {
		t.Errorf("expected 1 ingress revocation, got %d", len(fake.revokedIngress))
	}
	if len(fake.revokedEgress) != 0 {
		t.Errorf("expected no egress revocations, got %d", len(fake.revokedEgress))
	}

	// A reference no rule names anymore is already cleared.
	result = provider.ClearReference(context.Background(), "sg-2", "sg-9")
	if result.Kind != types.ClearAlreadyCleared {
		t.Errorf("ClearReference() = %v, want already_cleared", result.Kind)
	}
}

func TestRulesNaming(t *testing.T) {
	perms := []ec2types.IpPermission{
		{
			IpProtocol: awssdk.String("tcp"),
			UserIdGroupPairs: []ec2types.UserIdGroupPair{
				{GroupId: awssdk.String("sg-2")},
				{GroupId: awssdk.String("sg-3")},
			},
		},
		{
			IpProtocol: awssdk.String("udp"),
			UserIdGroupPairs: []ec2types.UserIdGroupPair{
				{GroupId: awssdk.String("sg-3")},
			},
		},
	}

	matched := rulesNaming(perms, "sg-3")
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched permissions, got %d", len(matched))
	}
	for _, perm := range matched {
		if len(perm.UserIdGroupPairs) != 1 {
			t.Errorf("expected only matching pairs kept, got %d", len(perm.UserIdGroupPairs))
		}
		if awssdk.ToString(perm.UserIdGroupPairs[0].GroupId) != "sg-3" {
			t.Errorf("unexpected pair %s", awssdk.ToString(perm.UserIdGroupPairs[0].GroupId))
		}
	}
}
