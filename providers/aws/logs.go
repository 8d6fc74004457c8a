package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/yairfalse/raivaus/types"
)

// LogGroupProvider tears down CloudWatch log groups.
type LogGroupProvider struct {
	session
}

func NewLogGroupProvider(pool *ClientPool) *LogGroupProvider {
	return &LogGroupProvider{session: newSession(pool)}
}

func (p *LogGroupProvider) Type() string { return "log_group" }

func (p *LogGroupProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(c.Logs, &cloudwatchlogs.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe log groups: %w", err)
		}
		for _, group := range page.LogGroups {
			name := awssdk.ToString(group.LogGroupName)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      name,
				Name:    name,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"stored_bytes": awssdk.ToInt64(group.StoredBytes),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *LogGroupProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (p *LogGroupProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.Logs.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *LogGroupProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
