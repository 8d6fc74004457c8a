package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/raivaus/types"
)

const eksPolicy = `package raivaus

import rego.v1

protect if {
	contains(input.resource.name, "eks")
}

reason := "security group owned by an EKS cluster" if protect
`

func TestEvaluateProtect(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()
	require.NoError(t, engine.LoadPolicy(ctx, "eks_guard", eksPolicy))

	protected, err := engine.Evaluate(ctx, Input{
		Resource: types.ResourceRecord{ID: "sg-1", Name: "eks-cluster-sg-prod", Type: "security_group"},
		Region:   "eu-west-1",
	})
	require.NoError(t, err)
	assert.True(t, protected.Protect)
	assert.Equal(t, "security group owned by an EKS cluster", protected.Reason)
	assert.Equal(t, []string{"eks_guard"}, protected.Policies)

	clear, err := engine.Evaluate(ctx, Input{
		Resource: types.ResourceRecord{ID: "sg-2", Name: "scratch-sg", Type: "security_group"},
	})
	require.NoError(t, err)
	assert.False(t, clear.Protect)
}

func TestLoadPolicyInvalid(t *testing.T) {
	engine := NewEngine()
	err := engine.LoadPolicy(context.Background(), "broken", "package raivaus\n\nprotect {")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eks.rego"), []byte(eksPolicy), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("not a policy"), 0644))

	engine := NewEngine()
	require.NoError(t, engine.LoadDir(ctx, dir))
	assert.Equal(t, 1, engine.Len())

	// Missing dir is fine.
	require.NoError(t, engine.LoadDir(ctx, filepath.Join(dir, "missing")))
}
