package aws

import (
	"context"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/raivaus/types"
)

// QueueProvider tears down SQS queues. The queue URL is the resource ID.
type QueueProvider struct {
	session
}

func NewQueueProvider(pool *ClientPool) *QueueProvider {
	return &QueueProvider{session: newSession(pool)}
}

func (p *QueueProvider) Type() string { return "sqs_queue" }

func (p *QueueProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := sqs.NewListQueuesPaginator(c.SQS, &sqs.ListQueuesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, queueURL := range page.QueueUrls {
			records = append(records, types.ResourceRecord{
				Type:       p.Type(),
				ID:         queueURL,
				Name:       queueName(queueURL),
				Region:     region,
				Account:    account,
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *QueueProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.SQS.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: awssdk.String(id),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameApproximateNumberOfMessages,
			sqstypes.QueueAttributeNameQueueArn,
		},
	})
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]any, len(out.Attributes))
	for k, v := range out.Attributes {
		attrs[k] = v
	}
	return attrs, nil
}

func (p *QueueProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.SQS.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *QueueProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// queueName extracts the queue name from its URL.
func queueName(queueURL string) string {
	if i := strings.LastIndex(queueURL, "/"); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}
