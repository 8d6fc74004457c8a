package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"

	"github.com/yairfalse/raivaus/types"
)

// TrailProvider tears down CloudTrail trails. Only trails homed in the
// task's region are listed; multi-region trails surface once, in their
// home region.
type TrailProvider struct {
	session
}

func NewTrailProvider(pool *ClientPool) *TrailProvider {
	return &TrailProvider{session: newSession(pool)}
}

func (p *TrailProvider) Type() string { return "cloudtrail_trail" }

func (p *TrailProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	out, err := c.CloudTrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{
		IncludeShadowTrails: awssdk.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe trails: %w", err)
	}

	var records []types.ResourceRecord
	for _, trail := range out.TrailList {
		if awssdk.ToString(trail.HomeRegion) != region {
			continue
		}
		records = append(records, types.ResourceRecord{
			Type:    p.Type(),
			ID:      awssdk.ToString(trail.TrailARN),
			Name:    awssdk.ToString(trail.Name),
			Region:  region,
			Account: account,
			Attributes: map[string]any{
				"s3_bucket":    awssdk.ToString(trail.S3BucketName),
				"multi_region": awssdk.ToBool(trail.IsMultiRegionTrail),
			},
			References: types.NewReferenceSet(),
		})
	}
	return records, nil
}

func (p *TrailProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (p *TrailProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.CloudTrail.DeleteTrail(ctx, &cloudtrail.DeleteTrailInput{
		Name: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *TrailProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
