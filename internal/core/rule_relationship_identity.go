package core

import (
	"context"
	"fmt"

	"lorecore/pkg/domain"
)

// RelationshipIdentityRule keeps relationship identifiers unique within a
// project. Duplicate ids would make removal and graph lookups ambiguous.
func RelationshipIdentityRule() domain.Rule {
	return relationshipIdentityRule{}
}

type relationshipIdentityRule struct{}

func (relationshipIdentityRule) Name() string { return "relationship_identity" }

func (relationshipIdentityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, project := range view.ListProjects() {
		owners := make(map[string]string)
		for _, element := range view.ListElements(project.ID) {
			for _, rel := range element.Relationships {
				if rel.ID == "" {
					continue
				}
				if prev, dup := owners[rel.ID]; dup {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "relationship_identity",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("relationship %s appears on both element %s and element %s", rel.ID, prev, element.ID),
						Entity:   domain.EntityElement,
						EntityID: element.ID,
					})
					continue
				}
				owners[rel.ID] = element.ID
			}
		}
	}

	return res, nil
}
