package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/raivaus/types"
)

type fakeAutoScaling struct {
	instances []asgtypes.AutoScalingInstanceDetails
}

func (f *fakeAutoScaling) DescribeAutoScalingInstances(ctx context.Context, params *autoscaling.DescribeAutoScalingInstancesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error) {
	return &autoscaling.DescribeAutoScalingInstancesOutput{AutoScalingInstances: f.instances}, nil
}

type fakeEKS struct {
	clusters map[string]bool
}

func (f *fakeEKS) DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	if f.clusters[awssdk.ToString(params.Name)] {
		return &eks.DescribeClusterOutput{}, nil
	}
	return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException"}
}

type fakeELBv2 struct {
	loadBalancers []elbv2types.LoadBalancer
}

func (f *fakeELBv2) DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	return &elasticloadbalancingv2.DescribeLoadBalancersOutput{LoadBalancers: f.loadBalancers}, nil
}

type fakeLambda struct {
	functions []struct {
		name   string
		groups []string
	}
}

func (f *fakeLambda) ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	out := &lambda.ListFunctionsOutput{}
	for _, fn := range f.functions {
		out.Functions = append(out.Functions, lambdatypes.FunctionConfiguration{
			FunctionName: awssdk.String(fn.name),
			VpcConfig:    &lambdatypes.VpcConfigResponse{SecurityGroupIds: fn.groups},
		})
	}
	return out, nil
}

func instanceRecord(id string, tags map[string]string) types.ResourceRecord {
	return types.ResourceRecord{
		Type:       "instance",
		ID:         id,
		Account:    "dev",
		Region:     "eu-west-1",
		Attributes: map[string]any{"tags": tags},
	}
}

func TestManagedByAutoScalingGroup(t *testing.T) {
	clients := &Clients{
		AutoScaling: &fakeAutoScaling{
			instances: []asgtypes.AutoScalingInstanceDetails{
				{
					InstanceId:           awssdk.String("i-1"),
					AutoScalingGroupName: awssdk.String("web-asg"),
				},
			},
		},
	}
	inspector := NewStructuralInspector(poolWith(clients))

	owner, err := inspector.ManagedBy(context.Background(), instanceRecord("i-1", nil))
	if err != nil {
		t.Fatalf("ManagedBy() error = %v", err)
	}
	if owner != "autoscaling group web-asg" {
		t.Errorf("ManagedBy() = %q", owner)
	}
}

func TestManagedByEKSCluster(t *testing.T) {
	clients := &Clients{
		AutoScaling: &fakeAutoScaling{},
		EKS:         &fakeEKS{clusters: map[string]bool{"prod": true}},
	}
	inspector := NewStructuralInspector(poolWith(clients))

	owner, err := inspector.ManagedBy(context.Background(),
		instanceRecord("i-1", map[string]string{eksClusterTag: "prod"}))
	if err != nil {
		t.Fatalf("ManagedBy() error = %v", err)
	}
	if owner != "eks cluster prod" {
		t.Errorf("ManagedBy() = %q", owner)
	}

	// A stale tag naming a deleted cluster protects nothing.
	owner, err = inspector.ManagedBy(context.Background(),
		instanceRecord("i-2", map[string]string{eksClusterTag: "gone"}))
	if err != nil {
		t.Fatalf("ManagedBy() error = %v", err)
	}
	if owner != "" {
		t.Errorf("ManagedBy() = %q, want empty for stale tag", owner)
	}
}

func TestInUseBySecurityGroupDependents(t *testing.T) {
	clients := &Clients{
		EC2: &fakeEC2{
			interfaces: []ec2types.NetworkInterface{
				{
					NetworkInterfaceId: awssdk.String("eni-1"),
					Attachment: &ec2types.NetworkInterfaceAttachment{
						InstanceId: awssdk.String("i-1"),
					},
				},
			},
		},
		ELBv2: &fakeELBv2{
			loadBalancers: []elbv2types.LoadBalancer{
				{
					LoadBalancerArn: awssdk.String("arn:lb/app"),
					SecurityGroups:  []string{"sg-1"},
				},
			},
		},
		Lambda: &fakeLambda{
			functions: []struct {
				name   string
				groups []string
			}{
				{name: "fn-a", groups: []string{"sg-1"}},
				{name: "fn-b", groups: []string{"sg-9"}},
			},
		},
	}
	inspector := NewStructuralInspector(poolWith(clients))

	dependents, err := inspector.InUseBy(context.Background(), types.ResourceRecord{
		Type:    "security_group",
		ID:      "sg-1",
		Account: "dev",
		Region:  "eu-west-1",
	})
	if err != nil {
		t.Fatalf("InUseBy() error = %v", err)
	}

	want := map[string]bool{"i-1": true, "arn:lb/app": true, "fn-a": true}
	if len(dependents) != len(want) {
		t.Fatalf("InUseBy() = %v, want %v", dependents, want)
	}
	for _, dep := range dependents {
		if !want[dep] {
			t.Errorf("unexpected dependent %s", dep)
		}
	}
}
