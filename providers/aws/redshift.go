package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshift"

	"github.com/yairfalse/raivaus/types"
)

// RedshiftClusterProvider tears down Redshift clusters without a final
// snapshot.
type RedshiftClusterProvider struct {
	session
}

func NewRedshiftClusterProvider(pool *ClientPool) *RedshiftClusterProvider {
	return &RedshiftClusterProvider{session: newSession(pool)}
}

func (p *RedshiftClusterProvider) Type() string { return "redshift_cluster" }

func (p *RedshiftClusterProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := redshift.NewDescribeClustersPaginator(c.Redshift, &redshift.DescribeClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe redshift clusters: %w", err)
		}
		for _, cluster := range page.Clusters {
			id := awssdk.ToString(cluster.ClusterIdentifier)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    id,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"status":    awssdk.ToString(cluster.ClusterStatus),
					"node_type": awssdk.ToString(cluster.NodeType),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *RedshiftClusterProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.Redshift.DescribeClusters(ctx, &redshift.DescribeClustersInput{
		ClusterIdentifier: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Clusters) == 0 {
		return nil, fmt.Errorf("redshift cluster %s not found", id)
	}
	return map[string]any{
		"status": awssdk.ToString(out.Clusters[0].ClusterStatus),
	}, nil
}

func (p *RedshiftClusterProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.Redshift.DeleteCluster(ctx, &redshift.DeleteClusterInput{
		ClusterIdentifier:        awssdk.String(id),
		SkipFinalClusterSnapshot: awssdk.Bool(true),
	})
	return outcomeFromError(err)
}

func (p *RedshiftClusterProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// RedshiftSnapshotProvider tears down manual Redshift snapshots.
type RedshiftSnapshotProvider struct {
	session

	// owners maps a snapshot ID to its cluster, which DeleteClusterSnapshot
	// requires for disambiguation.
	owners map[string]string
}

func NewRedshiftSnapshotProvider(pool *ClientPool) *RedshiftSnapshotProvider {
	return &RedshiftSnapshotProvider{
		session: newSession(pool),
		owners:  make(map[string]string),
	}
}

func (p *RedshiftSnapshotProvider) Type() string { return "redshift_snapshot" }

func (p *RedshiftSnapshotProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := redshift.NewDescribeClusterSnapshotsPaginator(c.Redshift, &redshift.DescribeClusterSnapshotsInput{
		SnapshotType: awssdk.String("manual"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe redshift snapshots: %w", err)
		}
		for _, snapshot := range page.Snapshots {
			id := awssdk.ToString(snapshot.SnapshotIdentifier)
			p.owners[id] = awssdk.ToString(snapshot.ClusterIdentifier)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    id,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"cluster": awssdk.ToString(snapshot.ClusterIdentifier),
					"status":  awssdk.ToString(snapshot.Status),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *RedshiftSnapshotProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (p *RedshiftSnapshotProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	input := &redshift.DeleteClusterSnapshotInput{
		SnapshotIdentifier: awssdk.String(id),
	}
	if owner, ok := p.owners[id]; ok && owner != "" {
		input.SnapshotClusterIdentifier = awssdk.String(owner)
	}
	_, err = c.Redshift.DeleteClusterSnapshot(ctx, input)
	return outcomeFromError(err)
}

func (p *RedshiftSnapshotProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
