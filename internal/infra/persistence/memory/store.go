// Package memory provides an in-memory implementation of the canonical
// project/element store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lorecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project for in-memory persistence operations.
	Project = domain.Project
	// Element aliases domain.Element.
	Element = domain.Element
	// Relationship aliases domain.Relationship embedded in elements.
	Relationship = domain.Relationship
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects map[string]Project
	elements map[string]Element
}

// Snapshot captures a point-in-time clone of the canonical store state.
// The relationship index is never part of a snapshot; it is always
// rebuilt from the element data after load.
type Snapshot struct {
	Projects map[string]Project `json:"projects"`
	Elements map[string]Element `json:"elements"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects: make(map[string]Project),
		elements: make(map[string]Element),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.elements {
		cloned.elements[k] = cloneElement(v)
	}
	return cloned
}

func cloneProject(p Project) Project { return p }

func cloneElement(e Element) Element {
	cp := e
	if e.Relationships != nil {
		cp.Relationships = append([]Relationship(nil), e.Relationships...)
	}
	return cp
}

// Store is an in-memory transactional store for projects and elements.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock, for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

func newID() string { return uuid.NewString() }

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

type transactionView struct {
	state *memoryState
}

var _ domain.TransactionView = transactionView{}

// RunInTransaction executes fn within a transactional copy of the store
// state. The rules engine evaluates the accumulated changes before
// commit; blocking violations abort the transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

// ExportState returns a deep-cloned snapshot of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Projects: make(map[string]Project, len(s.state.projects)),
		Elements: make(map[string]Element, len(s.state.elements)),
	}
	for k, v := range s.state.projects {
		snap.Projects[k] = cloneProject(v)
	}
	for k, v := range s.state.elements {
		snap.Elements[k] = cloneElement(v)
	}
	return snap
}

// ImportState replaces the committed state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range snap.Elements {
		state.elements[k] = cloneElement(v)
	}
	s.state = state
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state read-only, for rules.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates an existing project record.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", id)
	}
	before := cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// DeleteProject removes a project and its elements from state.
func (tx *transaction) DeleteProject(id string) error {
	current, ok := tx.state.projects[id]
	if !ok {
		return fmt.Errorf("project %q not found", id)
	}
	delete(tx.state.projects, id)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionDelete, Before: cloneProject(current)})
	for elID, el := range tx.state.elements {
		if el.ProjectID != id {
			continue
		}
		delete(tx.state.elements, elID)
		tx.recordChange(Change{Entity: domain.EntityElement, Action: domain.ActionDelete, Before: cloneElement(el)})
	}
	return nil
}

// CreateElement stores a new element within the transaction.
func (tx *transaction) CreateElement(e Element) (Element, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if _, exists := tx.state.elements[e.ID]; exists {
		return Element{}, fmt.Errorf("element %q already exists", e.ID)
	}
	if _, ok := tx.state.projects[e.ProjectID]; !ok {
		return Element{}, fmt.Errorf("project %q not found", e.ProjectID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.elements[e.ID] = cloneElement(e)
	tx.recordChange(Change{Entity: domain.EntityElement, Action: domain.ActionCreate, After: cloneElement(e)})
	return cloneElement(e), nil
}

// UpdateElement mutates an element using the provided mutator function.
func (tx *transaction) UpdateElement(id string, mutator func(*Element) error) (Element, error) {
	current, ok := tx.state.elements[id]
	if !ok {
		return Element{}, fmt.Errorf("element %q not found", id)
	}
	before := cloneElement(current)
	if err := mutator(&current); err != nil {
		return Element{}, err
	}
	current.ID = id
	current.ProjectID = before.ProjectID
	current.UpdatedAt = tx.now
	tx.state.elements[id] = cloneElement(current)
	tx.recordChange(Change{Entity: domain.EntityElement, Action: domain.ActionUpdate, Before: before, After: cloneElement(current)})
	return cloneElement(current), nil
}

// DeleteElement removes an element from the transaction state.
func (tx *transaction) DeleteElement(id string) error {
	current, ok := tx.state.elements[id]
	if !ok {
		return fmt.Errorf("element %q not found", id)
	}
	delete(tx.state.elements, id)
	tx.recordChange(Change{Entity: domain.EntityElement, Action: domain.ActionDelete, Before: cloneElement(current)})
	return nil
}

// FindProject retrieves a project by ID from the transaction state.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindElement retrieves an element by ID from the transaction state.
func (tx *transaction) FindElement(id string) (Element, bool) {
	e, ok := tx.state.elements[id]
	if !ok {
		return Element{}, false
	}
	return cloneElement(e), true
}

// ListElements returns the project's elements from the transaction state.
func (tx *transaction) ListElements(projectID string) []Element {
	return listElements(&tx.state, projectID)
}

// ListProjects returns all projects within the view snapshot.
func (v transactionView) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListElements returns the project's elements within the view snapshot.
func (v transactionView) ListElements(projectID string) []Element {
	return listElements(v.state, projectID)
}

// FindProject retrieves a project by ID from the snapshot.
func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindElement retrieves an element by ID from the snapshot.
func (v transactionView) FindElement(id string) (Element, bool) {
	e, ok := v.state.elements[id]
	if !ok {
		return Element{}, false
	}
	return cloneElement(e), true
}

func listElements(state *memoryState, projectID string) []Element {
	var out []Element
	for _, e := range state.elements {
		if e.ProjectID == projectID {
			out = append(out, cloneElement(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Read helpers ---------------------------------------------------------------

// GetProject retrieves a project by ID from committed state.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects from committed state.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetElement retrieves an element by ID from committed state.
func (s *Store) GetElement(id string) (Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.elements[id]
	if !ok {
		return Element{}, false
	}
	return cloneElement(e), true
}

// ListElements returns the project's elements from committed state. An
// unknown project yields an empty list, not an error.
func (s *Store) ListElements(projectID string) []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listElements(&s.state, projectID)
}
