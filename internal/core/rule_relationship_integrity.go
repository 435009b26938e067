package core

import (
	"context"
	"fmt"
	"strings"

	"lorecore/pkg/domain"
)

// RelationshipIntegrityRule enforces the shape of relationship records embedded
// in elements: identifiers and types must be present and the source endpoint
// must be the owning element.
func RelationshipIntegrityRule() domain.Rule {
	return relationshipIntegrityRule{}
}

type relationshipIntegrityRule struct{}

func (relationshipIntegrityRule) Name() string { return "relationship_integrity" }

func (relationshipIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, change := range changes {
		if change.Entity != domain.EntityElement || change.After == nil {
			continue
		}
		element, ok := change.After.(domain.Element)
		if !ok {
			continue
		}
		for _, rel := range element.Relationships {
			if rel.ID == "" {
				res.Violations = append(res.Violations, relationshipViolation(element.ID, fmt.Sprintf("element %s carries a relationship without an id", element.ID)))
				continue
			}
			if strings.TrimSpace(rel.Type) == "" {
				res.Violations = append(res.Violations, relationshipViolation(element.ID, fmt.Sprintf("element %s relationship %s has an empty type", element.ID, rel.ID)))
			}
			if rel.FromID != element.ID {
				res.Violations = append(res.Violations, relationshipViolation(element.ID, fmt.Sprintf("element %s relationship %s names %s as its source", element.ID, rel.ID, rel.FromID)))
			}
			if rel.ToID != "" && rel.ToID != element.ID {
				if target, found := view.FindElement(rel.ToID); found && target.ProjectID != element.ProjectID {
					res.Violations = append(res.Violations, relationshipViolation(element.ID, fmt.Sprintf("element %s relationship %s crosses into project %s", element.ID, rel.ID, target.ProjectID)))
				}
			}
		}
	}

	return res, nil
}

func relationshipViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "relationship_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityElement,
		EntityID: entityID,
	}
}
