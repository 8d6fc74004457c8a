package report

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/raivaus/types"
)

func sg(id string) types.ResourceRecord {
	return types.ResourceRecord{
		Type:    "security_group",
		ID:      id,
		Name:    "name-" + id,
		Region:  "eu-west-1",
		Account: "dev",
	}
}

func TestAggregatorBuckets(t *testing.T) {
	a := NewAggregator("ec2_ultra_cleanup", "alice")
	a.TaskProcessed("dev", "eu-west-1")

	a.RecordDeleted(sg("sg-1"))
	a.RecordSkipped(sg("sg-2"), types.Protected("matches eks pattern"))
	a.RecordFailed(sg("sg-3"), "DependencyViolation")
	a.RecordError("dev", "eu-west-1", "AuthFailure listing queues")

	result := a.Snapshot()

	assert.Equal(t, "ec2_ultra_cleanup", result.Metadata.CleanupType)
	assert.Equal(t, "alice", result.Metadata.ExecutedBy)
	assert.Equal(t, []string{"eu-west-1"}, result.Metadata.RegionsProcessed)

	assert.Equal(t, 1, result.Summary.TotalDeleted)
	assert.Equal(t, 1, result.Summary.TotalSkipped)
	assert.Equal(t, 1, result.Summary.TotalFailed)
	assert.Equal(t, BucketCounts{Deleted: 1, Skipped: 1, Failed: 1}, result.Summary.ByAccount["dev"])

	require.Len(t, result.DetailedResults.Skipped, 1)
	assert.Equal(t, "matches eks pattern", result.DetailedResults.Skipped[0].Reason)
	require.Len(t, result.DetailedResults.Errors, 1)
	assert.Contains(t, result.DetailedResults.Errors[0].Reason, "AuthFailure")
}

// Terminal buckets are exclusive and Deleted is sticky.
func TestAggregatorStickyTerminal(t *testing.T) {
	a := NewAggregator("test", "ci")

	a.RecordDeleted(sg("sg-1"))
	// Stale late attempt must not downgrade a deleted resource.
	a.RecordFailed(sg("sg-1"), "stale blocked reason")

	result := a.Snapshot()
	assert.Equal(t, 1, result.Summary.TotalDeleted)
	assert.Equal(t, 0, result.Summary.TotalFailed)

	// Failed → Deleted upgrade is allowed (a later pass succeeded).
	a.RecordFailed(sg("sg-2"), "busy")
	a.RecordDeleted(sg("sg-2"))
	result = a.Snapshot()
	assert.Equal(t, 2, result.Summary.TotalDeleted)
	assert.Equal(t, 0, result.Summary.TotalFailed)

	// Duplicate records are idempotent.
	a.RecordDeleted(sg("sg-1"))
	result = a.Snapshot()
	assert.Equal(t, 2, result.Summary.TotalDeleted)
}

func TestWriteFile(t *testing.T) {
	a := NewAggregator("test", "ci")
	a.TaskProcessed("dev", "eu-west-1")
	a.RecordDeleted(sg("sg-1"))

	path, err := WriteFile(t.TempDir(), a.RunID(), a.Snapshot())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded TeardownResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Summary.TotalDeleted)
	assert.Equal(t, "sg-1", decoded.DetailedResults.Deleted[0].ID)
}

type fakeS3 struct {
	bucket string
	key    string
	body   []byte
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket = *params.Bucket
	f.key = *params.Key
	buf := make([]byte, 1<<20)
	n, _ := params.Body.Read(buf)
	f.body = buf[:n]
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkUpload(t *testing.T) {
	fake := &fakeS3{}
	sink := NewS3Sink(fake, "teardown-evidence", "reports")

	a := NewAggregator("test", "ci")
	a.RecordDeleted(sg("sg-1"))

	require.NoError(t, sink.Upload(context.Background(), "run-1", a.Snapshot()))
	assert.Equal(t, "teardown-evidence", fake.bucket)
	assert.Equal(t, "reports/run-1.json", fake.key)

	var decoded TeardownResult
	require.NoError(t, json.Unmarshal(fake.body, &decoded))
	assert.Equal(t, 1, decoded.Summary.TotalDeleted)
}
