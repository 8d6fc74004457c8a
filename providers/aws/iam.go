package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/yairfalse/raivaus/types"
)

// inlinePrefix marks inline policy references so ClearReference can tell
// them apart from managed policy ARNs.
const inlinePrefix = "inline:"

// RoleProvider tears down IAM roles. A role's attached and inline
// policies are surfaced as references; the breaker detaches or deletes
// them before the role itself goes. Service-linked roles are never
// listed, the API refuses to delete them.
type RoleProvider struct {
	session
	homeRegion string
}

func NewRoleProvider(pool *ClientPool, homeRegion string) *RoleProvider {
	return &RoleProvider{session: newSession(pool), homeRegion: homeRegion}
}

func (p *RoleProvider) Type() string { return "iam_role" }

func (p *RoleProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	if region != p.homeRegion {
		return nil, nil
	}
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	paginator := iam.NewListRolesPaginator(c.IAM, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}
		for _, role := range page.Roles {
			if strings.HasPrefix(awssdk.ToString(role.Path), "/aws-service-role/") {
				continue
			}
			name := awssdk.ToString(role.RoleName)
			refs, err := p.policyReferences(ctx, c, name)
			if err != nil {
				return nil, err
			}
			records = append(records, types.ResourceRecord{
				Type:    p.Type(),
				ID:      name,
				Name:    name,
				Region:  region,
				Account: account,
				Attributes: map[string]any{
					"arn":  awssdk.ToString(role.Arn),
					"path": awssdk.ToString(role.Path),
				},
				References: refs,
			})
		}
	}
	return records, nil
}

// policyReferences collects attached managed policy ARNs and inline
// policy names for one role.
func (p *RoleProvider) policyReferences(ctx context.Context, c *Clients, roleName string) (types.ReferenceSet, error) {
	refs := types.NewReferenceSet()

	attached, err := c.IAM.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attached policies for %s: %w", roleName, err)
	}
	for _, policy := range attached.AttachedPolicies {
		refs.Add(awssdk.ToString(policy.PolicyArn))
	}

	inline, err := c.IAM.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list inline policies for %s: %w", roleName, err)
	}
	for _, name := range inline.PolicyNames {
		refs.Add(inlinePrefix + name)
	}

	return refs, nil
}

func (p *RoleProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	c, err := p.bound()
	if err != nil {
		return nil, err
	}
	out, err := c.IAM.GetRole(ctx, &iam.GetRoleInput{
		RoleName: awssdk.String(id),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"arn":  awssdk.ToString(out.Role.Arn),
		"path": awssdk.ToString(out.Role.Path),
	}, nil
}

func (p *RoleProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: awssdk.String(id),
	})
	return outcomeFromError(err)
}

// ClearReference detaches a managed policy or deletes an inline policy
// from the role.
func (p *RoleProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	c, err := p.bound()
	if err != nil {
		return types.ClearResult{Kind: types.ClearFailed, Err: err}
	}

	if name, ok := strings.CutPrefix(reference, inlinePrefix); ok {
		_, err = c.IAM.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   awssdk.String(id),
			PolicyName: awssdk.String(name),
		})
		return clearFromError(err)
	}

	_, err = c.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  awssdk.String(id),
		PolicyArn: awssdk.String(reference),
	})
	return clearFromError(err)
}
