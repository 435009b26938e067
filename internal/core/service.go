// Package core exposes the transactional service for projects and
// elements together with the relationship index lifecycle. The index is
// a derived cache over the active project's elements; the element bucket
// stays canonical and the cache is rebuilt wholesale after every
// mutation that can affect it.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lorecore/internal/infra/persistence/memory"
	"lorecore/internal/relgraph"
	"lorecore/pkg/domain"
)

// Service exposes higher-level transactional CRUD operations plus the
// relationship graph queries backed by the single-slot index cache.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder

	mu     sync.Mutex
	active string
	index  indexSlot
}

// indexSlot caches the derived relationship maps for exactly one
// project. valid is false until the first rebuild and after the cached
// project is deleted.
type indexSlot struct {
	projectID string
	maps      relgraph.Maps
	valid     bool
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:   store,
		clock:   options.clock,
		logger:  options.logger,
		metrics: options.metrics,
		tracer:  options.tracer,
		audit:   options.audit,
	}
}

// NewInMemoryService creates a service with an in-memory store and the
// given rules engine. A nil engine gets the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// DefaultRulesEngine returns an engine preloaded with the relationship
// integrity and identity rules.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(RelationshipIntegrityRule())
	engine.Register(RelationshipIdentityRule())
	return engine
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps a mutating operation with tracing, metrics, audit and logging.
// fn returns the id of the primary entity touched, for the audit trail.
func (s *Service) run(ctx context.Context, operation, projectID string, fn func(context.Context) (string, error)) error {
	start := time.Now()
	runCtx := ctx
	var span TraceSpan
	if s.tracer != nil {
		runCtx, span = s.tracer.Start(ctx, operation)
	}
	entityID, err := fn(runCtx)
	duration := time.Since(start)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	if s.audit != nil {
		entry := AuditEntry{
			Operation: operation,
			Status:    AuditStatusSuccess,
			ProjectID: projectID,
			EntityID:  entityID,
			Duration:  duration,
			At:        s.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}
	if err != nil {
		s.logger.Warn(operation+" failed", "project_id", projectID, "error", err)
	} else {
		s.logger.Debug(operation, "project_id", projectID, "entity_id", entityID)
	}
	return err
}

// Project CRUD ---------------------------------------------------------------

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	var res Result
	err := s.run(ctx, "create_project", project.ID, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateProject(project)
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateProject mutates a project using the provided mutator.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, Result, error) {
	var updated Project
	var res Result
	err := s.run(ctx, "update_project", id, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateProject(id, mutator)
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteProject removes a project and its elements. Deleting the active
// project drops the cached index and clears the active slot.
func (s *Service) DeleteProject(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_project", id, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteProject(id)
		})
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		if s.active == id {
			s.active = ""
			s.index = indexSlot{}
		}
		s.mu.Unlock()
		return id, nil
	})
	return res, err
}

// GetProject retrieves a project by id.
func (s *Service) GetProject(id string) (Project, bool) { return s.store.GetProject(id) }

// ListProjects returns all projects.
func (s *Service) ListProjects() []Project { return s.store.ListProjects() }

// Element CRUD ---------------------------------------------------------------

// CreateElement persists a new element within its project.
func (s *Service) CreateElement(ctx context.Context, element Element) (Element, Result, error) {
	var created Element
	var res Result
	err := s.run(ctx, "create_element", element.ProjectID, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateElement(element)
			return err
		})
		if err != nil {
			return "", err
		}
		s.afterMutation(created.ProjectID)
		return created.ID, nil
	})
	return created, res, err
}

// UpdateElement mutates an element using the provided mutator. Project
// ownership is immutable; a mutator cannot move an element.
func (s *Service) UpdateElement(ctx context.Context, id string, mutator func(*Element) error) (Element, Result, error) {
	var updated Element
	var res Result
	err := s.run(ctx, "update_element", "", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateElement(id, mutator)
			return err
		})
		if err != nil {
			return "", err
		}
		s.afterMutation(updated.ProjectID)
		return id, nil
	})
	return updated, res, err
}

// DeleteElement removes an element record. Relationships on other
// elements that point at it are left in place and dangle.
func (s *Service) DeleteElement(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_element", "", func(ctx context.Context) (string, error) {
		var projectID string
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			element, ok := tx.FindElement(id)
			if !ok {
				return fmt.Errorf("element %q not found", id)
			}
			projectID = element.ProjectID
			return tx.DeleteElement(id)
		})
		if err != nil {
			return "", err
		}
		s.afterMutation(projectID)
		return id, nil
	})
	return res, err
}

// GetElement retrieves an element by id.
func (s *Service) GetElement(id string) (Element, bool) { return s.store.GetElement(id) }

// ListElements returns the project's elements.
func (s *Service) ListElements(projectID string) []Element { return s.store.ListElements(projectID) }

// Relationship mutations -----------------------------------------------------

// AddRelationship appends a relationship to its source element. Identity
// and creation time are assigned here, never taken from the caller. The
// source element must belong to the given project; the target is not
// validated and may reference a missing element.
func (s *Service) AddRelationship(ctx context.Context, projectID string, draft RelationshipDraft) (Relationship, Result, error) {
	var created Relationship
	var res Result
	err := s.run(ctx, "add_relationship", projectID, func(ctx context.Context) (string, error) {
		if draft.FromID == "" {
			return "", fmt.Errorf("relationship source element id must not be empty")
		}
		if strings.TrimSpace(draft.Type) == "" {
			return "", fmt.Errorf("relationship type must not be empty")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			owner, ok := tx.FindElement(draft.FromID)
			if !ok || owner.ProjectID != projectID {
				return fmt.Errorf("element %q not found in project %q", draft.FromID, projectID)
			}
			created = Relationship{
				ID:          uuid.NewString(),
				FromID:      owner.ID,
				ToID:        draft.ToID,
				Type:        strings.TrimSpace(draft.Type),
				Description: draft.Description,
				CreatedAt:   s.clock.Now(),
			}
			if _, err := tx.UpdateElement(owner.ID, func(e *Element) error {
				e.Relationships = append(e.Relationships, created)
				return nil
			}); err != nil {
				return err
			}
			_, err := tx.UpdateProject(projectID, func(*Project) error { return nil })
			return err
		})
		if err != nil {
			return "", err
		}
		s.afterMutation(projectID)
		return created.ID, nil
	})
	if err != nil {
		return Relationship{}, res, err
	}
	return created, res, err
}

// RemoveRelationship locates the relationship by id within the project,
// removes it from its owning element and rebuilds the index.
func (s *Service) RemoveRelationship(ctx context.Context, projectID, relationshipID string) (Result, error) {
	var res Result
	err := s.run(ctx, "remove_relationship", projectID, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var ownerID string
			for _, element := range tx.Snapshot().ListElements(projectID) {
				for _, rel := range element.Relationships {
					if rel.ID == relationshipID {
						ownerID = element.ID
						break
					}
				}
				if ownerID != "" {
					break
				}
			}
			if ownerID == "" {
				return fmt.Errorf("relationship %q not found in project %q", relationshipID, projectID)
			}
			if _, err := tx.UpdateElement(ownerID, func(e *Element) error {
				filtered := make([]Relationship, 0, len(e.Relationships))
				for _, rel := range e.Relationships {
					if rel.ID != relationshipID {
						filtered = append(filtered, rel)
					}
				}
				e.Relationships = filtered
				return nil
			}); err != nil {
				return err
			}
			_, err := tx.UpdateProject(projectID, func(*Project) error { return nil })
			return err
		})
		if err != nil {
			return "", err
		}
		s.afterMutation(projectID)
		return relationshipID, nil
	})
	return res, err
}

// Index lifecycle ------------------------------------------------------------

// SetActiveProject switches the active project and rebuilds its index
// immediately, replacing whatever was cached before.
func (s *Service) SetActiveProject(_ context.Context, projectID string) (Project, error) {
	project, ok := s.store.GetProject(projectID)
	if !ok {
		return Project{}, fmt.Errorf("project %q not found", projectID)
	}
	s.mu.Lock()
	s.active = projectID
	s.rebuildLocked(projectID)
	s.mu.Unlock()
	return project, nil
}

// ActiveProject returns the id of the currently active project, or "".
func (s *Service) ActiveProject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// afterMutation refreshes the cached index when the mutated project is
// the active one. Mutations to other projects leave the cache alone;
// their queries read canonical data directly.
func (s *Service) afterMutation(projectID string) {
	if projectID == "" {
		return
	}
	s.mu.Lock()
	if s.active == projectID {
		s.rebuildLocked(projectID)
	}
	s.mu.Unlock()
}

// snapshotElements reads the project's elements through a read-only
// view, so a rebuild or scan sees one consistent committed state.
func (s *Service) snapshotElements(projectID string) []Element {
	var elements []Element
	if err := s.store.View(context.Background(), func(v TransactionView) error {
		elements = v.ListElements(projectID)
		return nil
	}); err != nil {
		s.logger.Warn("state view failed", "project_id", projectID, "error", err)
		return s.store.ListElements(projectID)
	}
	return elements
}

// rebuildLocked replaces the index slot wholesale. Callers hold s.mu.
func (s *Service) rebuildLocked(projectID string) {
	start := time.Now()
	elements := s.snapshotElements(projectID)
	maps := relgraph.Build(elements)
	s.index = indexSlot{projectID: projectID, maps: maps, valid: true}
	if s.metrics != nil {
		s.metrics.Observe(context.Background(), "rebuild_index", true, time.Since(start))
	}
	if skipped := maps.Skipped(); skipped > 0 {
		s.logger.Warn("relationship index skipped malformed records", "project_id", projectID, "skipped", skipped)
	} else {
		s.logger.Debug("relationship index rebuilt", "project_id", projectID, "elements", len(elements))
	}
}

// querySource picks the answer path for one query. A valid cache for the
// project wins; the active project rebuilds on demand; anything else is
// answered by a brute-force scan over canonical data. All three paths
// return identical answers.
func (s *Service) querySource(projectID string) relgraph.Source {
	s.mu.Lock()
	if s.index.valid && s.index.projectID == projectID {
		defer s.mu.Unlock()
		return s.index.maps
	}
	if projectID != "" && projectID == s.active {
		s.rebuildLocked(projectID)
		defer s.mu.Unlock()
		return s.index.maps
	}
	s.mu.Unlock()
	return relgraph.NewScan(s.snapshotElements(projectID))
}

// observeQuery instruments one read-only query. Queries never fail, so
// the span and the metrics sample always record success.
func (s *Service) observeQuery(ctx context.Context, operation string) func() {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		_, span = s.tracer.Start(ctx, operation)
	}
	return func() {
		if span != nil {
			span.End(nil)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, true, time.Since(start))
		}
	}
}

// Relationship queries. These never fail: unknown projects, elements and
// types all yield empty results.

// ElementRelationships returns every relationship the element participates
// in within the project, outgoing and incoming.
func (s *Service) ElementRelationships(ctx context.Context, projectID, elementID string) []Relationship {
	defer s.observeQuery(ctx, "element_relationships")()
	return s.querySource(projectID).ElementRelationships(elementID)
}

// RelatedElementIDs returns the distinct element ids connected to the
// element in either direction, sorted.
func (s *Service) RelatedElementIDs(ctx context.Context, projectID, elementID string) []string {
	defer s.observeQuery(ctx, "related_element_ids")()
	return s.querySource(projectID).RelatedElementIDs(elementID)
}

// RelationshipsByType returns the project's relationships whose type
// matches exactly.
func (s *Service) RelationshipsByType(ctx context.Context, projectID, relType string) []Relationship {
	defer s.observeQuery(ctx, "relationships_by_type")()
	return s.querySource(projectID).RelationshipsByType(relType)
}

// AreElementsRelated reports whether any relationship connects the two
// elements in either direction.
func (s *Service) AreElementsRelated(ctx context.Context, projectID, a, b string) bool {
	defer s.observeQuery(ctx, "elements_related")()
	return s.querySource(projectID).AreElementsRelated(a, b)
}
