// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by lorecore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityElement identifies an element record.
	EntityElement EntityType = "element"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is a container for user-defined worldbuilding elements.
type Project struct {
	Base
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Element is a named entity within a project (character, location,
// faction, ...). It owns the relationships it is the source of; the
// element bucket is the canonical storage for relationship data.
type Element struct {
	Base
	ProjectID     string         `json:"project_id"`
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Description   *string        `json:"description,omitempty"`
	Relationships []Relationship `json:"relationships"`
}

// Relationship is a typed, directional edge embedded in its source
// element. FromID always equals the owning element's ID; ToID is
// referential only and may dangle after the target is deleted. Type is
// an open vocabulary, not a closed enumeration.
type Relationship struct {
	ID          string    `json:"id"`
	FromID      string    `json:"from_id"`
	ToID        string    `json:"to_id"`
	Type        string    `json:"type"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RelationshipDraft carries caller-supplied relationship fields for
// creation. Identity and creation time are assigned by the service.
type RelationshipDraft struct {
	FromID      string  `json:"from_id"`
	ToID        string  `json:"to_id"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
