package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"orderfeed/internal/model"
	"orderfeed/internal/state"
)

func TestWriteSnapshot_WritesOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := state.NewInMemoryStore()
	s.Insert(model.Order{OrderID: "A", Status: model.StatusPending})
	b := model.Order{OrderID: "B", Status: model.StatusDelivered}
	if err := b.Set("items", []map[string]any{{"name": "x", "quantity": 1, "price": 2}}); err != nil {
		t.Fatal(err)
	}
	s.Insert(b)

	snap := NewFilesystemSnapshotter(dir)
	n, err := snap.WriteSnapshot("sid", s)
	if err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d orders, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "sid", "orders.json")); err != nil {
		t.Fatalf("orders.json missing: %v", err)
	}

	got, err := snap.ReadSnapshot("sid")
	if err != nil {
		t.Fatalf("ReadSnapshot error: %v", err)
	}
	if len(got) != 2 || got[0].OrderID != "B" || got[1].OrderID != "A" {
		t.Fatalf("unexpected orders: %+v", got)
	}
	if string(got[0].Field("items")) != `[{"name":"x","price":2,"quantity":1}]` {
		t.Fatalf("items not preserved: %+v", got[0])
	}
}

func TestWriteSnapshot_EmptyStore(t *testing.T) {
	snap := NewFilesystemSnapshotter(t.TempDir())
	if _, err := snap.WriteSnapshot("empty", state.NewInMemoryStore()); err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}
	got, err := snap.ReadSnapshot("empty")
	if err != nil {
		t.Fatalf("ReadSnapshot error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil list, got %#v", got)
	}
}

func TestReadSnapshot_NotFound(t *testing.T) {
	snap := NewFilesystemSnapshotter(t.TempDir())
	if _, err := snap.ReadSnapshot("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
