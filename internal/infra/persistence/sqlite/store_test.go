package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"lorecore/internal/infra/persistence/sqlite"
	"lorecore/pkg/domain"
)

func TestStorePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lore.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var project domain.Project
	var hero domain.Element
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		project, err = tx.CreateProject(domain.Project{Name: "Aldermoor"})
		if err != nil {
			return err
		}
		hero, err = tx.CreateElement(domain.Element{ProjectID: project.ID, Name: "Mira", Category: "character"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateElement(hero.ID, func(e *domain.Element) error {
			e.Relationships = append(e.Relationships, domain.Relationship{
				ID: "r1", FromID: hero.ID, ToID: "keep", Type: "guards",
			})
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.GetElement(hero.ID)
	if !ok {
		t.Fatalf("expected element after reload")
	}
	if len(got.Relationships) != 1 || got.Relationships[0].ID != "r1" {
		t.Fatalf("expected embedded relationship to survive reload, got %+v", got.Relationships)
	}
	if len(reopened.ListElements(project.ID)) != 1 {
		t.Fatalf("expected project elements after reload")
	}
}

func TestStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lore.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProject(domain.Project{Name: "Doomed"}); err != nil {
			return err
		}
		return context.Canceled
	}); err == nil {
		t.Fatalf("expected error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if len(reopened.ListProjects()) != 0 {
		t.Fatalf("aborted transaction leaked into snapshot")
	}
}

func TestStoreDefaultsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "lore.db")
	store, err := sqlite.NewStore(path, nil)
	if err != nil {
		t.Fatalf("expected nested dirs to be created: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %q", store.Path())
	}
	_ = store.Close()
}
