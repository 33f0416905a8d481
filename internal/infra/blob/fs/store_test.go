package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"samledger/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}
	info, err := store.Put(ctx, "inbox/export.csv", bytes.NewReader([]byte("a,b\n")), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "inbox/export.csv", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "inbox/export.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "a,b\n" || got.ContentType != "text/csv" || got.Metadata["k"] != "v" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}

	list, err := store.List(ctx, "inbox/")
	if err != nil || len(list) != 1 || list[0].Key != "inbox/export.csv" {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}

	if ok, err := store.Delete(ctx, "inbox/export.csv"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(root, "inbox", "export.csv.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	if ok, err := store.Delete(ctx, "inbox/export.csv"); err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	if _, _, err := store.Get(ctx, "inbox/export.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDescribesFilesWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "dropped.csv"), []byte("x,y"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, rc, err := store.Get(context.Background(), "dropped.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	if info.Size != 3 || info.ETag != "" {
		t.Fatalf("unexpected stat info %+v", info)
	}
	list, err := store.List(context.Background(), "")
	if err != nil || len(list) != 1 || list[0].Key != "dropped.csv" {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "/abs", "a/../b", "x.csv.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if k, err := sanitizeKey("inbox//a.csv"); err != nil || k != "inbox/a.csv" {
		t.Fatalf("unexpected clean key %q err=%v", k, err)
	}
}

func TestStoreCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	store, _ := New(root)
	if err := os.WriteFile(filepath.Join(root, "a.csv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.csv.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "a.csv"); err == nil {
		t.Fatalf("expected decode error")
	}
}
