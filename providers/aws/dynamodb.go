package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/yairfalse/raivaus/types"
)

// TableProvider tears down DynamoDB tables.
type TableProvider struct {
	session
}

func NewTableProvider(pool *ClientPool) *TableProvider {
	return &TableProvider{session: newSession(pool)}
}

func (p *TableProvider) Type() string { return "dynamodb_table" }

func (p *TableProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := dynamodb.NewListTablesPaginator(c.DynamoDB, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		for _, name := range page.TableNames {
			records = append(records, types.ResourceRecord{
				Type:       p.Type(),
				ID:         name,
				Name:       name,
				Region:     region,
				Account:    account,
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *TableProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":     string(out.Table.TableStatus),
		"item_count": awssdk.ToInt64(out.Table.ItemCount),
	}, nil
}

func (p *TableProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.DynamoDB.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *TableProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
