// Package resolve orders eligible resources into deletion phases using a
// static cascade table, and detects cyclic peer-reference groups that
// need rule clearing instead of ordering.
package resolve

// Family declares the deletion order inside one resource-type family,
// children first. The cascade table is the only place type-specific
// sequencing knowledge lives; everything downstream is generic.
type Family struct {
	Name  string
	Order []string
}

// DefaultCascades is the built-in cascade table. A resource type absent
// from every family falls back to its own singleton linear phase.
var DefaultCascades = []Family{
	{Name: "compute", Order: []string{"instance", "security_group", "eip"}},
	{Name: "database", Order: []string{"db_cluster", "db_instance", "db_cluster_snapshot"}},
	{Name: "dns", Order: []string{"record_set", "hosted_zone"}},
	{Name: "backup", Order: []string{"recovery_point", "backup_vault"}},
	{Name: "application", Order: []string{"app_version", "app_environment", "application"}},
	{Name: "container", Order: []string{"ecs_service", "ecs_cluster"}},
	{Name: "warehouse", Order: []string{"redshift_cluster", "redshift_snapshot"}},
}

// Cascade indexes a set of families for lookup by resource type.
type Cascade struct {
	families []Family
	byType   map[string]familyPos
}

type familyPos struct {
	family string
	index  int
}

// NewCascade builds a lookup table from the given families.
func NewCascade(families []Family) *Cascade {
	c := &Cascade{
		families: families,
		byType:   make(map[string]familyPos),
	}
	for _, fam := range families {
		for i, typ := range fam.Order {
			c.byType[typ] = familyPos{family: fam.Name, index: i}
		}
	}
	return c
}

// FamilyOf returns the family a resource type belongs to, or "" if the
// type is not in the table.
func (c *Cascade) FamilyOf(resourceType string) string {
	return c.byType[resourceType].family
}

// position returns the cascade position of a type; unknown types report
// ok=false.
func (c *Cascade) position(resourceType string) (familyPos, bool) {
	pos, ok := c.byType[resourceType]
	return pos, ok
}

// Related reports whether two types are in a strict ancestor/descendant
// relationship in the cascade table.
func (c *Cascade) Related(a, b string) bool {
	pa, oka := c.position(a)
	pb, okb := c.position(b)
	return oka && okb && pa.family == pb.family && pa.index != pb.index
}
