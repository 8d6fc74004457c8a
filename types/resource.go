package types

import "time"

// ResourceRecord represents one discovered cloud resource. Records are
// created by a ResourceProvider at discovery time and are immutable for
// the rest of the run, except References, which shrinks as rules are
// cleared.
type ResourceRecord struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Region     string         `json:"region"`
	Account    string         `json:"account"`
	Attributes map[string]any `json:"attributes,omitempty"`
	References ReferenceSet   `json:"references,omitempty"`
}

// ReferenceSet holds the IDs of peer resources this one points to, e.g.
// a security group rule naming another group.
type ReferenceSet map[string]struct{}

// NewReferenceSet builds a set from the given IDs.
func NewReferenceSet(ids ...string) ReferenceSet {
	s := make(ReferenceSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an ID into the set.
func (s ReferenceSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes an ID from the set.
func (s ReferenceSet) Remove(id string) {
	delete(s, id)
}

// Contains reports whether id is in the set.
func (s ReferenceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the set members as a slice, order unspecified.
func (s ReferenceSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// AttrString returns a string attribute, or "" if absent or not a string.
func (r *ResourceRecord) AttrString(key string) string {
	v, ok := r.Attributes[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// AttrBool returns a bool attribute, false if absent.
func (r *ResourceRecord) AttrBool(key string) bool {
	v, ok := r.Attributes[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Tags returns the resource's tag map if the provider recorded one.
func (r *ResourceRecord) Tags() map[string]string {
	v, ok := r.Attributes["tags"]
	if !ok {
		return nil
	}
	tags, _ := v.(map[string]string)
	return tags
}

// IsAttached reports whether the provider observed this resource attached
// to live infrastructure (network interfaces, instances). Attachment only
// affects attempt priority, never phase membership.
func (r *ResourceRecord) IsAttached() bool {
	return r.AttrBool("attached")
}

// DeletionAttempt records one deletion attempt during a convergence pass.
type DeletionAttempt struct {
	Resource   ResourceRecord `json:"resource"`
	PassNumber int            `json:"pass_number"`
	Outcome    Outcome        `json:"outcome"`
	Timestamp  time.Time      `json:"timestamp"`
}
