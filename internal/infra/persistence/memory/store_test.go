package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lorecore/internal/infra/persistence/memory"
	"lorecore/pkg/domain"
)

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedProject(t *testing.T, store *memory.Store, name string) domain.Project {
	t.Helper()
	var created domain.Project
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProject(domain.Project{Name: name})
		return err
	})
	mustNoErr(t, err)
	return created
}

func TestStoreCRUD(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	project := seedProject(t, store, "Aldermoor")
	if project.ID == "" || project.CreatedAt.IsZero() {
		t.Fatalf("expected assigned identity and timestamps, got %+v", project)
	}

	var hero domain.Element
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		hero, err = tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mira", Category: "character"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateElement(domain.Element{ProjectID: "missing", Name: "Orphan"}); err == nil {
			return fmt.Errorf("expected missing-project error")
		}
		if _, err := tx.CreateElement(domain.Element{Base: domain.Base{ID: hero.ID}, ProjectID: project.ID, Name: "Dup"}); err == nil {
			return fmt.Errorf("expected duplicate element error")
		}
		return nil
	})
	mustNoErr(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateElement(hero.ID, func(e *domain.Element) error {
			e.Category = "protagonist"
			e.ProjectID = "hijack" // ownership is immutable; the store restores it
			return nil
		})
		return err
	})
	mustNoErr(t, err)

	got, ok := store.GetElement(hero.ID)
	if !ok || got.Category != "protagonist" {
		t.Fatalf("expected updated element, got %+v ok=%v", got, ok)
	}
	if got.ProjectID != project.ID {
		t.Fatalf("element project ownership changed to %q", got.ProjectID)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("expected updated timestamp on mutation")
	}

	if els := store.ListElements(project.ID); len(els) != 1 {
		t.Fatalf("expected one element, got %d", len(els))
	}
	if els := store.ListElements("unknown"); len(els) != 0 {
		t.Fatalf("unknown project must list empty, got %d", len(els))
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteElement("missing"); err == nil {
			return fmt.Errorf("expected delete error for missing element")
		}
		return tx.DeleteElement(hero.ID)
	})
	mustNoErr(t, err)
	if _, ok := store.GetElement(hero.ID); ok {
		t.Fatalf("expected element removed")
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Keep"}); err != nil {
			return err
		}
		_, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mill"})
		return err
	})
	mustNoErr(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProject(project.ID)
	})
	mustNoErr(t, err)

	if els := store.ListElements(project.ID); len(els) != 0 {
		t.Fatalf("expected cascade delete of elements, got %d", len(els))
	}
	if _, ok := store.GetProject(project.ID); ok {
		t.Fatalf("expected project removed")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Ghost"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if els := store.ListElements(project.ID); len(els) != 0 {
		t.Fatalf("aborted transaction must not commit, got %d elements", len(els))
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "block_all",
		Severity: domain.SeverityBlock,
		Message:  "no writes allowed",
	}}}, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	store := memory.NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "Nope"})
		return err
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	if _, ok := err.(domain.RuleViolationError); !ok {
		t.Fatalf("expected RuleViolationError, got %T: %v", err, err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violations in result")
	}
	if len(store.ListProjects()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestCloneIsolation(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")

	var el domain.Element
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		el, err = tx.CreateElement(domain.Element{
			ProjectID: project.ID,
			Name:      "Mira",
			Relationships: []domain.Relationship{
				{ID: "r1", FromID: "", ToID: "x", Type: "knows"},
			},
		})
		return err
	})
	// FromID mismatch is a rules concern; with no engine the raw store accepts it.
	mustNoErr(t, err)

	got, _ := store.GetElement(el.ID)
	got.Relationships[0].Type = "mutated"
	again, _ := store.GetElement(el.ID)
	if again.Relationships[0].Type != "knows" {
		t.Fatalf("store state mutated through returned clone")
	}
}

func TestExportImportState(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mira"})
		return err
	})
	mustNoErr(t, err)

	snap := store.ExportState()
	restored := memory.NewStore(nil)
	restored.ImportState(snap)

	if len(restored.ListProjects()) != 1 {
		t.Fatalf("expected restored project")
	}
	if len(restored.ListElements(project.ID)) != 1 {
		t.Fatalf("expected restored element")
	}

	// Snapshot maps are deep clones; mutating them does not touch the store.
	for k := range snap.Elements {
		e := snap.Elements[k]
		e.Name = "tampered"
		snap.Elements[k] = e
	}
	for _, e := range restored.ListElements(project.ID) {
		if e.Name == "tampered" {
			t.Fatalf("snapshot shares state with store")
		}
	}
}

func TestSnapshotSeesUncommittedWrites(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mira"})
		if err != nil {
			return err
		}
		view := tx.Snapshot()
		if _, ok := view.FindElement(created.ID); !ok {
			return fmt.Errorf("snapshot does not see pending element")
		}
		if got := view.ListElements(project.ID); len(got) != 1 {
			return fmt.Errorf("snapshot lists %d elements, want 1", len(got))
		}
		return nil
	})
	mustNoErr(t, err)
}

func TestViewReadsCommittedState(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	project := seedProject(t, store, "Aldermoor")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mira"})
		return err
	})
	mustNoErr(t, err)

	var listed []domain.Element
	mustNoErr(t, store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindProject(project.ID); !ok {
			return fmt.Errorf("view does not see committed project")
		}
		listed = v.ListElements(project.ID)
		return nil
	}))
	if len(listed) != 1 {
		t.Fatalf("view listed %d elements, want 1", len(listed))
	}

	// Views hand out clones of store state.
	listed[0].Name = "tampered"
	if got := store.ListElements(project.ID); got[0].Name != "Mira" {
		t.Fatalf("view shares state with store: %+v", got)
	}
}

func TestClockOverride(t *testing.T) {
	store := memory.NewStore(nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	project := seedProject(t, store, "Aldermoor")
	if !project.CreatedAt.Equal(fixed) || !project.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected fixed timestamps, got %+v", project.Base)
	}
}
