package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"

	"github.com/yairfalse/raivaus/types"
)

// MemoryDBClusterProvider tears down MemoryDB clusters.
type MemoryDBClusterProvider struct {
	session
}

func NewMemoryDBClusterProvider(pool *ClientPool) *MemoryDBClusterProvider {
	return &MemoryDBClusterProvider{session: newSession(pool)}
}

func (p *MemoryDBClusterProvider) Type() string { return "memorydb_cluster" }

func (p *MemoryDBClusterProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := memorydb.NewDescribeClustersPaginator(c.MemoryDB, &memorydb.DescribeClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe memorydb clusters: %w", err)
		}
		for _, cluster := range page.Clusters {
			name := awssdk.ToString(cluster.Name)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      name,
				Name:    name,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"status":    awssdk.ToString(cluster.Status),
					"node_type": awssdk.ToString(cluster.NodeType),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *MemoryDBClusterProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.MemoryDB.DescribeClusters(ctx, &memorydb.DescribeClustersInput{
		ClusterName: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Clusters) == 0 {
		return nil, fmt.Errorf("memorydb cluster %s not found", id)
	}
	return map[string]any{
		"status": awssdk.ToString(out.Clusters[0].Status),
	}, nil
}

func (p *MemoryDBClusterProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.MemoryDB.DeleteCluster(ctx, &memorydb.DeleteClusterInput{
		ClusterName: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *MemoryDBClusterProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
