// Package relgraph derives fast bidirectional lookup maps from the
// relationship records embedded in a project's elements. The maps are a
// rebuildable cache, never canonical: they are produced wholesale by
// Build and replaced wholesale after every mutation, so readers never
// observe a partially built index.
package relgraph

import (
	"sort"

	"lorecore/pkg/domain"
)

// Source answers the four relationship queries for one project's
// elements. Implemented by Maps (indexed) and Scan (brute force); the
// answers are identical for the same canonical data.
type Source interface {
	ElementRelationships(elementID string) []domain.Relationship
	RelatedElementIDs(elementID string) []string
	RelationshipsByType(relType string) []domain.Relationship
	AreElementsRelated(a, b string) bool
}

// Maps holds the derived relationship index for a single project.
// It is read-only after Build; the zero value answers every query empty.
type Maps struct {
	byElement map[string][]domain.Relationship
	byType    map[string][]domain.Relationship
	related   map[string]map[string]struct{}
	skipped   int
}

var _ Source = Maps{}

// Build indexes all relationships embedded in elements in a single
// pass: O(E) time and memory for E total relationships. Each
// relationship is registered under both endpoints even though it is
// stored only on its source. Records missing an ID or type are skipped
// and counted; Build never fails. Dangling targets are indexed as-is --
// resolving them to elements is the caller's concern.
func Build(elements []domain.Element) Maps {
	m := Maps{
		byElement: make(map[string][]domain.Relationship),
		byType:    make(map[string][]domain.Relationship),
		related:   make(map[string]map[string]struct{}),
	}
	for _, el := range elements {
		for _, rel := range el.Relationships {
			if rel.ID == "" || rel.Type == "" {
				m.skipped++
				continue
			}
			m.byType[rel.Type] = append(m.byType[rel.Type], rel)
			m.byElement[rel.FromID] = append(m.byElement[rel.FromID], rel)
			if rel.ToID != rel.FromID {
				m.byElement[rel.ToID] = append(m.byElement[rel.ToID], rel)
			}
			m.connect(rel.FromID, rel.ToID)
			m.connect(rel.ToID, rel.FromID)
		}
	}
	return m
}

func (m Maps) connect(from, to string) {
	set, ok := m.related[from]
	if !ok {
		set = make(map[string]struct{})
		m.related[from] = set
	}
	set[to] = struct{}{}
}

// Skipped reports how many malformed records Build dropped. Diagnostic
// only; a non-zero count is not an error.
func (m Maps) Skipped() int { return m.skipped }

// ElementRelationships returns every relationship the element
// participates in, outgoing and incoming. Order is unspecified.
func (m Maps) ElementRelationships(elementID string) []domain.Relationship {
	rels := m.byElement[elementID]
	if len(rels) == 0 {
		return nil
	}
	out := make([]domain.Relationship, len(rels))
	copy(out, rels)
	return out
}

// RelatedElementIDs returns the distinct IDs connected to the element
// in either direction, sorted for determinism.
func (m Maps) RelatedElementIDs(elementID string) []string {
	return sortedIDs(m.related[elementID])
}

// RelationshipsByType returns relationships whose type matches exactly
// (case-sensitive, no normalization).
func (m Maps) RelationshipsByType(relType string) []domain.Relationship {
	rels := m.byType[relType]
	if len(rels) == 0 {
		return nil
	}
	out := make([]domain.Relationship, len(rels))
	copy(out, rels)
	return out
}

// AreElementsRelated reports whether any relationship connects a and b,
// in either direction. Symmetric by construction.
func (m Maps) AreElementsRelated(a, b string) bool {
	_, ok := m.related[a][b]
	return ok
}

func sortedIDs(set map[string]struct{}) []string {
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
