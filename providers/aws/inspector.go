package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/raivaus/types"
)

// eksClusterTag is the tag EKS stamps on node instances and groups.
const eksClusterTag = "aws:eks:cluster-name"

// StructuralInspector answers the classifier's ownership and in-use
// questions against live AWS state. All checks are read-only.
type StructuralInspector struct {
	pool *ClientPool
}

func NewStructuralInspector(pool *ClientPool) *StructuralInspector {
	return &StructuralInspector{pool: pool}
}

// ManagedBy reports the orchestrator workload owning the resource, or ""
// when nothing does. Only instances have ownership checks today; other
// types rely on tag patterns and policies.
func (i *StructuralInspector) ManagedBy(ctx context.Context, rec types.ResourceRecord) (string, error) {
	if rec.Type != "instance" {
		return "", nil
	}
	c, err := i.pool.Get(ctx, rec.Account, rec.Region)
	if err != nil {
		return "", err
	}

	out, err := c.AutoScaling.DescribeAutoScalingInstances(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []string{rec.ID},
	})
	if err != nil {
		return "", fmt.Errorf("autoscaling lookup for %s: %w", rec.ID, err)
	}
	for _, asi := range out.AutoScalingInstances {
		return "autoscaling group " + awssdk.ToString(asi.AutoScalingGroupName), nil
	}

	if cluster := rec.Tags()[eksClusterTag]; cluster != "" {
		live, err := i.eksClusterLive(ctx, c, cluster)
		if err != nil {
			return "", err
		}
		if live {
			return "eks cluster " + cluster, nil
		}
	}
	return "", nil
}

// eksClusterLive checks whether the named EKS cluster still exists. A
// stale tag on an orphaned node must not protect it.
func (i *StructuralInspector) eksClusterLive(ctx context.Context, c *Clients, name string) (bool, error) {
	_, err := c.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{
		Name: awssdk.String(name),
	})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && isNotFoundCode(apiErr.ErrorCode()) {
		return false, nil
	}
	return false, fmt.Errorf("eks lookup for cluster %s: %w", name, err)
}

// InUseBy returns the IDs of live dependents. Security groups are the
// interesting case: network interfaces, load balancers, and VPC-attached
// Lambda functions all hold groups open.
func (i *StructuralInspector) InUseBy(ctx context.Context, rec types.ResourceRecord) ([]string, error) {
	if rec.Type != "security_group" {
		return nil, nil
	}
	c, err := i.pool.Get(ctx, rec.Account, rec.Region)
	if err != nil {
		return nil, err
	}

	var dependents []string

	enis, err := i.interfaceDependents(ctx, c, rec.ID)
	if err != nil {
		return nil, err
	}
	dependents = append(dependents, enis...)

	lbs, err := i.loadBalancerDependents(ctx, c, rec.ID)
	if err != nil {
		return nil, err
	}
	dependents = append(dependents, lbs...)

	fns, err := i.lambdaDependents(ctx, c, rec.ID)
	if err != nil {
		return nil, err
	}
	dependents = append(dependents, fns...)

	return dependents, nil
}

// interfaceDependents returns the instances (or bare interface IDs) whose
// network interfaces use the group.
func (i *StructuralInspector) interfaceDependents(ctx context.Context, c *Clients, groupID string) ([]string, error) {
	var dependents []string
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(c.EC2, &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("group-id"), Values: []string{groupID}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("network interface lookup for %s: %w", groupID, err)
		}
		for _, eni := range page.NetworkInterfaces {
			if eni.Attachment != nil && eni.Attachment.InstanceId != nil {
				dependents = append(dependents, awssdk.ToString(eni.Attachment.InstanceId))
				continue
			}
			dependents = append(dependents, awssdk.ToString(eni.NetworkInterfaceId))
		}
	}
	return dependents, nil
}

// loadBalancerDependents returns the load balancers holding the group.
func (i *StructuralInspector) loadBalancerDependents(ctx context.Context, c *Clients, groupID string) ([]string, error) {
	var dependents []string
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(c.ELBv2, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("load balancer lookup for %s: %w", groupID, err)
		}
		for _, lb := range page.LoadBalancers {
			for _, sg := range lb.SecurityGroups {
				if sg == groupID {
					dependents = append(dependents, awssdk.ToString(lb.LoadBalancerArn))
					break
				}
			}
		}
	}
	return dependents, nil
}

// lambdaDependents returns the VPC-attached functions holding the group.
func (i *StructuralInspector) lambdaDependents(ctx context.Context, c *Clients, groupID string) ([]string, error) {
	var dependents []string
	paginator := lambda.NewListFunctionsPaginator(c.Lambda, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("lambda lookup for %s: %w", groupID, err)
		}
		for _, fn := range page.Functions {
			if fn.VpcConfig == nil {
				continue
			}
			for _, sg := range fn.VpcConfig.SecurityGroupIds {
				if sg == groupID {
					dependents = append(dependents, awssdk.ToString(fn.FunctionName))
					break
				}
			}
		}
	}
	return dependents, nil
}
