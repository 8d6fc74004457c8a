package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/yairfalse/raivaus/types"
)

// DBInstanceProvider tears down RDS database instances. Instances that
// belong to a cluster reference it so they land in the same family
// cascade position.
type DBInstanceProvider struct {
	session
}

func NewDBInstanceProvider(pool *ClientPool) *DBInstanceProvider {
	return &DBInstanceProvider{session: newSession(pool)}
}

func (p *DBInstanceProvider) Type() string { return "db_instance" }

func (p *DBInstanceProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := rds.NewDescribeDBInstancesPaginator(c.RDS, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db instances: %w", err)
		}
		for _, instance := range page.DBInstances {
			id := awssdk.ToString(instance.DBInstanceIdentifier)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    id,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"engine":   awssdk.ToString(instance.Engine),
					"status":   awssdk.ToString(instance.DBInstanceStatus),
					"cluster":  awssdk.ToString(instance.DBClusterIdentifier),
					"attached": instance.DBClusterIdentifier != nil,
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *DBInstanceProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("db instance %s not found", id)
	}
	instance := out.DBInstances[0]
	return map[string]any{
		"engine": awssdk.ToString(instance.Engine),
		"status": awssdk.ToString(instance.DBInstanceStatus),
	}, nil
}

func (p *DBInstanceProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.RDS.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier:   awssdk.String(id),
		SkipFinalSnapshot:      awssdk.Bool(true),
		DeleteAutomatedBackups: awssdk.Bool(true),
	})
	return outcomeFromError(err)
}

func (p *DBInstanceProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// DBClusterProvider tears down Aurora clusters.
type DBClusterProvider struct {
	session
}

func NewDBClusterProvider(pool *ClientPool) *DBClusterProvider {
	return &DBClusterProvider{session: newSession(pool)}
}

func (p *DBClusterProvider) Type() string { return "db_cluster" }

func (p *DBClusterProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := rds.NewDescribeDBClustersPaginator(c.RDS, &rds.DescribeDBClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db clusters: %w", err)
		}
		for _, cluster := range page.DBClusters {
			id := awssdk.ToString(cluster.DBClusterIdentifier)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    id,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"engine":   awssdk.ToString(cluster.Engine),
					"status":   awssdk.ToString(cluster.Status),
					"attached": len(cluster.DBClusterMembers) > 0,
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *DBClusterProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.RDS.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	if len(out.DBClusters) == 0 {
		return nil, fmt.Errorf("db cluster %s not found", id)
	}
	cluster := out.DBClusters[0]
	return map[string]any{
		"engine": awssdk.ToString(cluster.Engine),
		"status": awssdk.ToString(cluster.Status),
	}, nil
}

func (p *DBClusterProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.RDS.DeleteDBCluster(ctx, &rds.DeleteDBClusterInput{
		DBClusterIdentifier: awssdk.String(id),
		SkipFinalSnapshot:   awssdk.Bool(true),
	})
	return outcomeFromError(err)
}

func (p *DBClusterProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// DBClusterSnapshotProvider tears down manual Aurora cluster snapshots.
// Automated snapshots disappear with their cluster and are not listed.
type DBClusterSnapshotProvider struct {
	session
}

func NewDBClusterSnapshotProvider(pool *ClientPool) *DBClusterSnapshotProvider {
	return &DBClusterSnapshotProvider{session: newSession(pool)}
}

func (p *DBClusterSnapshotProvider) Type() string { return "db_cluster_snapshot" }

func (p *DBClusterSnapshotProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := rds.NewDescribeDBClusterSnapshotsPaginator(c.RDS, &rds.DescribeDBClusterSnapshotsInput{
		SnapshotType: awssdk.String("manual"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db cluster snapshots: %w", err)
		}
		for _, snapshot := range page.DBClusterSnapshots {
			id := awssdk.ToString(snapshot.DBClusterSnapshotIdentifier)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      id,
				Name:    id,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"cluster": awssdk.ToString(snapshot.DBClusterIdentifier),
					"status":  awssdk.ToString(snapshot.Status),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *DBClusterSnapshotProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.RDS.DescribeDBClusterSnapshots(ctx, &rds.DescribeDBClusterSnapshotsInput{
		DBClusterSnapshotIdentifier: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	if len(out.DBClusterSnapshots) == 0 {
		return nil, fmt.Errorf("db cluster snapshot %s not found", id)
	}
	return map[string]any{
		"status": awssdk.ToString(out.DBClusterSnapshots[0].Status),
	}, nil
}

func (p *DBClusterSnapshotProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.RDS.DeleteDBClusterSnapshot(ctx, &rds.DeleteDBClusterSnapshotInput{
		DBClusterSnapshotIdentifier: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *DBClusterSnapshotProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
