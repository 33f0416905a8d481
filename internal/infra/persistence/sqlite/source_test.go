package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"samledger/internal/infra/persistence/memory"
	"samledger/pkg/domain"
)

func TestSourceSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "seed.db")
	src, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	if src.Path() != path || src.DB() == nil {
		t.Fatalf("unexpected source accessors")
	}

	empty, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(empty.Pools) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", empty)
	}

	snapshot := memory.Snapshot{
		Vendors: []domain.Vendor{{Base: domain.Base{ID: "V1"}, Name: "Miro"}},
		People:  []domain.Person{{Base: domain.Base{ID: "P1"}, Email: "ana@x.com", DisplayName: "Ana"}},
	}
	if err := src.Save(ctx, snapshot); err != nil {
		t.Fatalf("save: %v", err)
	}
	snapshot.Vendors[0].Name = "Miro Inc"
	if err := src.Save(ctx, snapshot); err != nil {
		t.Fatalf("save again: %v", err)
	}

	var rows int
	if err := src.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != len(memory.Buckets) {
		t.Fatalf("expected one row per bucket, got %d", rows)
	}

	loaded, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Vendors) != 1 || loaded.Vendors[0].Name != "Miro Inc" {
		t.Fatalf("expected upserted vendor, got %+v", loaded.Vendors)
	}
	if len(loaded.People) != 1 || loaded.People[0].Email != "ana@x.com" {
		t.Fatalf("unexpected people %+v", loaded.People)
	}
}

func TestSourceReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.db")
	src, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := src.Save(ctx, memory.Snapshot{Departments: []domain.Department{{Base: domain.Base{ID: "D1"}, Name: "RH"}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Departments) != 1 || loaded.Departments[0].Name != "RH" {
		t.Fatalf("expected department persisted, got %+v", loaded.Departments)
	}
}

func TestSourceLoadRejectsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	src, err := Open(ctx, filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	if _, err := src.DB().ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?)`, "pools", []byte("{")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := src.Load(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}
