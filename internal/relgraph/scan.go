package relgraph

import (
	"sort"

	"lorecore/pkg/domain"
)

// Scan answers the query contracts directly against raw elements,
// O(total relationships) per call. It serves queries for which no
// fresh index exists; callers cannot tell which path answered.
type Scan struct {
	elements []domain.Element
}

var _ Source = Scan{}

// NewScan wraps a project's element list for brute-force querying.
func NewScan(elements []domain.Element) Scan {
	return Scan{elements: elements}
}

func (s Scan) each(fn func(domain.Relationship)) {
	for _, el := range s.elements {
		for _, rel := range el.Relationships {
			if rel.ID == "" || rel.Type == "" {
				continue
			}
			fn(rel)
		}
	}
}

// ElementRelationships returns every well-formed relationship touching
// the element.
func (s Scan) ElementRelationships(elementID string) []domain.Relationship {
	var out []domain.Relationship
	s.each(func(rel domain.Relationship) {
		if rel.FromID == elementID || rel.ToID == elementID {
			out = append(out, rel)
		}
	})
	return out
}

// RelatedElementIDs returns the distinct connected IDs, sorted.
func (s Scan) RelatedElementIDs(elementID string) []string {
	set := make(map[string]struct{})
	s.each(func(rel domain.Relationship) {
		if rel.FromID == elementID {
			set[rel.ToID] = struct{}{}
		}
		if rel.ToID == elementID {
			set[rel.FromID] = struct{}{}
		}
	})
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RelationshipsByType returns relationships with an exact type match.
func (s Scan) RelationshipsByType(relType string) []domain.Relationship {
	var out []domain.Relationship
	s.each(func(rel domain.Relationship) {
		if rel.Type == relType {
			out = append(out, rel)
		}
	})
	return out
}

// AreElementsRelated reports whether any relationship connects a and b.
func (s Scan) AreElementsRelated(a, b string) bool {
	found := false
	s.each(func(rel domain.Relationship) {
		if (rel.FromID == a && rel.ToID == b) || (rel.FromID == b && rel.ToID == a) {
			found = true
		}
	})
	return found
}
