package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/yairfalse/raivaus/types"
)

// kmsDeletionWindowDays is the shortest deletion window the API allows.
const kmsDeletionWindowDays = 7

// KeyProvider schedules customer-managed KMS keys for deletion. AWS
// managed keys and keys already pending deletion are never listed. KMS
// keys cannot be deleted immediately; scheduling the minimum window is
// as deleted as a key gets.
type KeyProvider struct {
	session
}

func NewKeyProvider(pool *ClientPool) *KeyProvider {
	return &KeyProvider{session: newSession(pool)}
}

func (p *KeyProvider) Type() string { return "kms_key" }

func (p *KeyProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := kms.NewListKeysPaginator(c.KMS, &kms.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list keys: %w", err)
		}
		for _, entry := range page.Keys {
			keyID := awssdk.ToString(entry.KeyId)
			described, err := c.KMS.DescribeKey(ctx, &kms.DescribeKeyInput{
				KeyId: awssdk.String(keyID),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to describe key %s: %w", keyID, err)
			}
			meta := described.KeyMetadata
			if meta.KeyManager != kmstypes.KeyManagerTypeCustomer {
				continue
			}
			if meta.KeyState == kmstypes.KeyStatePendingDeletion {
				continue
			}
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      keyID,
				Name:    awssdk.ToString(meta.Description),
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"description": awssdk.ToString(meta.Description),
					"state":       string(meta.KeyState),
				},
				References: types.NewReferenceSet(),
			})
		}
	}
	return records, nil
}

func (p *KeyProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.KMS.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"description": awssdk.ToString(out.KeyMetadata.Description),
		"state":       string(out.KeyMetadata.KeyState),
	}, nil
}

func (p *KeyProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.KMS.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               awssdk.String(id),
		PendingWindowInDays: awssdk.Int32(kmsDeletionWindowDays),
	})
	return outcomeFromError(err)
}

func (p *KeyProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}
