package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/yairfalse/raivaus/types"
)

// ECSServiceProvider tears down ECS services. Services are scaled to
// zero and force-deleted; their tasks drain as part of deletion.
type ECSServiceProvider struct {
	session

	// clusters maps a service ARN to its cluster ARN, which every
	// service API call needs alongside the service itself.
	clusters map[string]string
}

func NewECSServiceProvider(pool *ClientPool) *ECSServiceProvider {
	return &ECSServiceProvider{
		session:  newSession(pool),
		clusters: make(map[string]string),
	}
}

func (p *ECSServiceProvider) Type() string { return "ecs_service" }

func (p *ECSServiceProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	clusterARNs, err := listECSClusters(ctx, c.ECS)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	for _, clusterARN := range clusterARNs {
		servicePaginator := ecs.NewListServicesPaginator(c.ECS, &ecs.ListServicesInput{
			Cluster: awssdk.String(clusterARN),
		})
		for servicePaginator.HasMorePages() {
			page, err := servicePaginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list services in %s: %w", clusterARN, err)
			}
			if len(page.ServiceArns) == 0 {
				continue
			}
			described, err := c.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  awssdk.String(clusterARN),
				Services: page.ServiceArns,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to describe services in %s: %w", clusterARN, err)
			}
			for _, service := range described.Services {
				arn := awssdk.ToString(service.ServiceArn)
				p.clusters[arn] = clusterARN
				records = append(records, types.ResourceRecord{
					Type:    p.Type(),
					ID:      arn,
					Name:    awssdk.ToString(service.ServiceName),
					Region:  region,
					Account: account,
					Attributes: map[string]any{
						"cluster":       clusterARN,
						"desired_count": service.DesiredCount,
						"attached":      service.RunningCount > 0,
					},
					References: types.NewReferenceSet(),
				})
			}
		}
	}
	return records, nil
}

func (p *ECSServiceProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	cluster, ok := p.clusters[id]
	if !ok {
		return nil, fmt.Errorf("service %s not found", id)
	}
	out, err := c.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  awssdk.String(cluster),
		Services: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Services) == 0 {
		return nil, fmt.Errorf("service %s not found", id)
	}
	return map[string]any{
		"status":        awssdk.ToString(out.Services[0].Status),
		"running_count": out.Services[0].RunningCount,
	}, nil
}

func (p *ECSServiceProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	cluster, ok := p.clusters[id]
	if !ok {
		return types.NotFound()
	}

	_, err = c.ECS.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      awssdk.String(cluster),
		Service:      awssdk.String(id),
		DesiredCount: awssdk.Int32(0),
	})
	if outcome := outcomeFromError(err); !outcome.Succeeded() {
		return outcome
	}

	_, err = c.ECS.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: awssdk.String(cluster),
		Service: awssdk.String(id),
		Force:   awssdk.Bool(true),
	})
	return outcomeFromError(err)
}

func (p *ECSServiceProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// ECSClusterProvider tears down ECS clusters after their services drain.
type ECSClusterProvider struct {
	session
}

func NewECSClusterProvider(pool *ClientPool) *ECSClusterProvider {
	return &ECSClusterProvider{session: newSession(pool)}
}

func (p *ECSClusterProvider) Type() string { return "ecs_cluster" }

func (p *ECSClusterProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	clusterARNs, err := listECSClusters(ctx, c.ECS)
	if err != nil {
		return nil, err
	}
	if len(clusterARNs) == 0 {
		return nil, nil
	}

	described, err := c.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: clusterARNs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe clusters: %w", err)
	}

	var records []types.ResourceRecord
	for _, cluster := range described.Clusters {
		records = append(records, types.ResourceRecord{
			Type:    p.Type(),
			ID:      awssdk.ToString(cluster.ClusterArn),
			Name:    awssdk.ToString(cluster.ClusterName),
			Region:  region,
			Account: account,
			Attributes: map[string]any{
				"status":   awssdk.ToString(cluster.Status),
				"attached": cluster.ActiveServicesCount > 0 || cluster.RunningTasksCount > 0,
			},
			References: types.NewReferenceSet(),
		})
	}
	return records, nil
}

func (p *ECSClusterProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Clusters) == 0 {
		return nil, fmt.Errorf("cluster %s not found", id)
	}
	return map[string]any{
		"status": awssdk.ToString(out.Clusters[0].Status),
	}, nil
}

func (p *ECSClusterProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.ECS.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *ECSClusterProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// listECSClusters pages through every cluster ARN in the region.
func listECSClusters(ctx context.Context, api ECSAPI) ([]string, error) {
	var arns []string
	paginator := ecs.NewListClustersPaginator(api, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list clusters: %w", err)
		}
		arns = append(arns, page.ClusterArns...)
	}
	return arns, nil
}
