package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/raivaus/types"
)

func rec(typ, id string) types.ResourceRecord {
	return types.ResourceRecord{Type: typ, ID: id, References: types.NewReferenceSet()}
}

func TestResolveCascadeOrder(t *testing.T) {
	r := NewDefault()

	phases := r.Resolve([]types.ResourceRecord{
		rec("eip", "eip-1"),
		rec("security_group", "sg-1"),
		rec("instance", "i-1"),
		rec("instance", "i-2"),
	})

	require.Len(t, phases, 3)
	assert.Equal(t, "instance", phases[0].ResourceType)
	assert.Equal(t, "security_group", phases[1].ResourceType)
	assert.Equal(t, "eip", phases[2].ResourceType)
	for _, p := range phases {
		assert.Equal(t, Linear, p.Kind)
		assert.Equal(t, "compute", p.Family)
	}
	assert.Len(t, phases[0].Resources, 2)
}

func TestResolveCyclicDetection(t *testing.T) {
	r := NewDefault()

	sg2 := rec("security_group", "sg-2")
	sg3 := rec("security_group", "sg-3")
	sg2.References.Add("sg-3")
	sg3.References.Add("sg-2")
	sg1 := rec("security_group", "sg-1")

	phases := r.Resolve([]types.ResourceRecord{sg2, sg3, sg1})

	// The un-referenced group gets its own linear phase; the mutually
	// referencing pair forms one cyclic phase.
	require.Len(t, phases, 2)
	assert.Equal(t, Linear, phases[0].Kind)
	require.Len(t, phases[0].Resources, 1)
	assert.Equal(t, "sg-1", phases[0].Resources[0].ID)

	assert.Equal(t, Cyclic, phases[1].Kind)
	assert.Len(t, phases[1].Resources, 2)
}

func TestResolveSeparateCyclicComponents(t *testing.T) {
	r := NewDefault()

	a1, a2 := rec("security_group", "sg-a1"), rec("security_group", "sg-a2")
	a1.References.Add("sg-a2")
	a2.References.Add("sg-a1")
	b1, b2 := rec("security_group", "sg-b1"), rec("security_group", "sg-b2")
	b1.References.Add("sg-b2")
	b2.References.Add("sg-b1")

	phases := r.Resolve([]types.ResourceRecord{b1, a1, b2, a2})

	require.Len(t, phases, 2)
	assert.Equal(t, Cyclic, phases[0].Kind)
	assert.Equal(t, "sg-a1", phases[0].Resources[0].ID)
	assert.Equal(t, Cyclic, phases[1].Kind)
	assert.Equal(t, "sg-b1", phases[1].Resources[0].ID)
}

func TestResolveSelfReferenceIsNotCyclic(t *testing.T) {
	r := NewDefault()

	sg := rec("security_group", "sg-1")
	sg.References.Add("sg-1")

	phases := r.Resolve([]types.ResourceRecord{sg})
	require.Len(t, phases, 1)
	assert.Equal(t, Linear, phases[0].Kind)
}

func TestResolveReferenceToOutsideGroupIsLinear(t *testing.T) {
	r := NewDefault()

	sg := rec("security_group", "sg-1")
	sg.References.Add("sg-not-in-run")

	phases := r.Resolve([]types.ResourceRecord{sg})
	require.Len(t, phases, 1)
	assert.Equal(t, Linear, phases[0].Kind)
}

func TestResolveUnknownTypeSingletonPhase(t *testing.T) {
	r := NewDefault()

	phases := r.Resolve([]types.ResourceRecord{
		rec("mystery_widget", "w-1"),
		rec("instance", "i-1"),
		rec("another_widget", "a-1"),
	})

	require.Len(t, phases, 3)
	assert.Equal(t, "instance", phases[0].ResourceType)
	// Unknown types trail, sorted by type name.
	assert.Equal(t, "another_widget", phases[1].ResourceType)
	assert.Equal(t, "mystery_widget", phases[2].ResourceType)
	assert.Equal(t, Linear, phases[1].Kind)
	assert.Equal(t, "", phases[1].Family)
}

func TestResolveAttachmentPriority(t *testing.T) {
	r := NewDefault()

	attached := rec("security_group", "sg-a")
	attached.Attributes = map[string]any{"attached": true}
	unattached := rec("security_group", "sg-b")

	phases := r.Resolve([]types.ResourceRecord{attached, unattached})
	require.Len(t, phases, 1)
	assert.Equal(t, "sg-b", phases[0].Resources[0].ID)
	assert.Equal(t, "sg-a", phases[0].Resources[1].ID)
}

func TestCascadeRelated(t *testing.T) {
	c := NewCascade(DefaultCascades)

	assert.True(t, c.Related("instance", "security_group"))
	assert.False(t, c.Related("security_group", "security_group"))
	assert.False(t, c.Related("instance", "db_cluster"))
	assert.False(t, c.Related("instance", "mystery"))
	assert.Equal(t, "dns", c.FamilyOf("hosted_zone"))
	assert.Equal(t, "", c.FamilyOf("mystery"))
}
