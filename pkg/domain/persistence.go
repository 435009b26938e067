package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateElement(Element) (Element, error)
	UpdateElement(id string, mutator func(*Element) error) (Element, error)
	DeleteElement(id string) error
	FindProject(id string) (Project, bool)
	FindElement(id string) (Element, bool)
	ListElements(projectID string) []Element
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListProjects() []Project
	ListElements(projectID string) []Element
	FindProject(id string) (Project, bool)
	FindElement(id string) (Element, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetElement(id string) (Element, bool)
	ListElements(projectID string) []Element
}
