package resolve

import (
	"sort"

	"github.com/yairfalse/raivaus/types"
)

// PhaseKind distinguishes ordered cascades from cyclic peer groups.
type PhaseKind string

const (
	// Linear phases follow the cascade table; simple ordering suffices.
	Linear PhaseKind = "linear"
	// Cyclic phases hold peer resources with mutual reference edges;
	// references must be cleared before deletion can succeed.
	Cyclic PhaseKind = "cyclic"
)

// Phase is one deletion step. All resources in a phase share a type.
// Resources are pre-sorted by attempt priority: unattached and less
// referenced first. Attachment affects priority only, never membership.
type Phase struct {
	Kind         PhaseKind
	Family       string
	ResourceType string
	Resources    []types.ResourceRecord
}

// Resolver orders eligible resources into phases.
type Resolver struct {
	cascade *Cascade
}

// New creates a resolver over the given cascade table.
func New(cascade *Cascade) *Resolver {
	return &Resolver{cascade: cascade}
}

// NewDefault creates a resolver over the built-in cascade table.
func NewDefault() *Resolver {
	return New(NewCascade(DefaultCascades))
}

// Resolve partitions eligible resources into ordered phases. Types in the
// cascade table run first, in declared family and cascade order; unknown
// types each get their own trailing linear phase, sorted by type name so
// runs are deterministic.
func (r *Resolver) Resolve(eligible []types.ResourceRecord) []Phase {
	buckets := make(map[string][]types.ResourceRecord)
	for _, rec := range eligible {
		buckets[rec.Type] = append(buckets[rec.Type], rec)
	}

	var phases []Phase
	for _, fam := range r.cascade.families {
		for _, typ := range fam.Order {
			recs, ok := buckets[typ]
			if !ok {
				continue
			}
			delete(buckets, typ)
			phases = append(phases, buildPhases(fam.Name, typ, recs)...)
		}
	}

	// Types outside the table: singleton linear phases, never blocked
	// on guesswork.
	rest := make([]string, 0, len(buckets))
	for typ := range buckets {
		rest = append(rest, typ)
	}
	sort.Strings(rest)
	for _, typ := range rest {
		phases = append(phases, buildPhases("", typ, buckets[typ])...)
	}

	return phases
}

// buildPhases splits one type bucket into at most one linear phase (the
// resources with no peer-reference edges) followed by one cyclic phase
// per connected peer-reference component. Peers of one type are never in
// an ancestor/descendant cascade relationship, so any intra-bucket edge
// marks its component cyclic.
func buildPhases(family, resourceType string, recs []types.ResourceRecord) []Phase {
	components := peerComponents(recs)

	var linear []types.ResourceRecord
	var cyclic [][]types.ResourceRecord
	for _, comp := range components {
		if len(comp) == 1 {
			linear = append(linear, comp[0])
			continue
		}
		cyclic = append(cyclic, comp)
	}

	var phases []Phase
	if len(linear) > 0 {
		SortByPriority(linear)
		phases = append(phases, Phase{
			Kind:         Linear,
			Family:       family,
			ResourceType: resourceType,
			Resources:    linear,
		})
	}

	sort.Slice(cyclic, func(i, j int) bool {
		return cyclic[i][0].ID < cyclic[j][0].ID
	})
	for _, comp := range cyclic {
		SortByPriority(comp)
		phases = append(phases, Phase{
			Kind:         Cyclic,
			Family:       family,
			ResourceType: resourceType,
			Resources:    comp,
		})
	}
	return phases
}

// peerComponents groups a type bucket into connected components over its
// intra-bucket reference edges, treating edges as undirected. Self
// references never form an edge. Component members come back sorted by
// ID, and components are keyed by their smallest member.
func peerComponents(recs []types.ResourceRecord) [][]types.ResourceRecord {
	byID := make(map[string]types.ResourceRecord, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	adj := make(map[string][]string, len(recs))
	for _, rec := range recs {
		for ref := range rec.References {
			if ref == rec.ID {
				continue
			}
			if _, ok := byID[ref]; ok {
				adj[rec.ID] = append(adj[rec.ID], ref)
				adj[ref] = append(adj[ref], rec.ID)
			}
		}
	}

	ids := make([]string, 0, len(recs))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool, len(recs))
	var components [][]types.ResourceRecord
	for _, id := range ids {
		if visited[id] {
			continue
		}
		var member []types.ResourceRecord
		stack := []string{id}
		visited[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			member = append(member, byID[cur])
			for _, next := range adj[cur] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		sort.Slice(member, func(i, j int) bool { return member[i].ID < member[j].ID })
		components = append(components, member)
	}
	return components
}

// SortByPriority orders attempts: unattached before attached, fewer
// outbound references before more, then by ID for determinism.
func SortByPriority(recs []types.ResourceRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ai, aj := recs[i].IsAttached(), recs[j].IsAttached()
		if ai != aj {
			return !ai
		}
		ri, rj := len(recs[i].References), len(recs[j].References)
		if ri != rj {
			return ri < rj
		}
		return recs[i].ID < recs[j].ID
	})
}
