package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/yairfalse/raivaus/types"
)

// RepositoryProvider tears down ECR repositories, images included.
type RepositoryProvider struct {
	session
}

func NewRepositoryProvider(pool *ClientPool) *RepositoryProvider {
	return &RepositoryProvider{session: newSession(pool)}
}

func (p *RepositoryProvider) Type() string { return "ecr_repository" }

func (p *RepositoryProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := ecr.NewDescribeRepositoriesPaginator(c.ECR, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe repositories: %w", err)
		}
		for _, repo := range page.Repositories {
			name := awssdk.ToString(repo.RepositoryName)
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      name,
				Name:    name,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"uri": awssdk.ToString(repo.RepositoryUri),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *RepositoryProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Repositories) == 0 {
		return nil, fmt.Errorf("repository %s not found", id)
	}
	return map[string]any{
		"uri": awssdk.ToString(out.Repositories[0].RepositoryUri),
	}, nil
}

func (p *RepositoryProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.ECR.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: awssdk.String(id),
		Force:          true,
	})
	return outcomeFromError(err)
}

func (p *RepositoryProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
