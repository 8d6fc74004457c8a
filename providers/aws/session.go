package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// session resolves and remembers the client bundle for the task currently
// being processed. Tasks run strictly sequentially, so an adapter serves
// one (account, region) at a time; List rebinds the session, and the
// Delete/Describe/ClearReference calls that follow use the bound bundle.
type session struct {
	pool    *ClientPool
	clients *Clients
	account string
	region  string
}

func newSession(pool *ClientPool) session {
	return session{pool: pool}
}

// bind resolves the client bundle for a task and remembers it.
func (s *session) bind(ctx context.Context, account, region string) (*Clients, error) {
	c, err := s.pool.Get(ctx, account, region)
	if err != nil {
		return nil, err
	}
	s.clients = c
	s.account = account
	s.region = region
	return c, nil
}

// bound returns the current bundle or an error when List has not run yet.
func (s *session) bound() (*Clients, error) {
	if s.clients == nil {
		return nil, fmt.Errorf("no task bound, List must run first")
	}
	return s.clients, nil
}

// tagMap flattens EC2-style tag lists into a plain map.
func tagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[awssdk.ToString(tag.Key)] = awssdk.ToString(tag.Value)
	}
	return m
}

// nameFromTags returns the Name tag, or "" when absent.
func nameFromTags(tags map[string]string) string {
	return tags["Name"]
}
