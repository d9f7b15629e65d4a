package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"orderfeed/internal/model"
	"orderfeed/internal/state"
)

// ErrNotFound is returned by ReadSnapshot for an unknown snapshot id.
var ErrNotFound = errors.New("snapshot: not found")

const fileName = "orders.json"

type Snapshotter interface {
	WriteSnapshot(snapshotID string, st state.Store) (int, error)
}

type Loader interface {
	ReadSnapshot(snapshotID string) ([]model.Order, error)
}

// FilesystemSnapshotter dumps the order list newest first to
// <baseDir>/<snapshotID>/orders.json.
type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

// WriteSnapshot returns the number of orders written.
func (f *FilesystemSnapshotter) WriteSnapshot(snapshotID string, st state.Store) (int, error) {
	if err := os.MkdirAll(filepath.Join(f.baseDir, snapshotID), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	file := filepath.Join(f.baseDir, snapshotID, fileName)
	out, err := os.Create(file)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	dump := make([]model.Order, 0, st.Len())
	if err := st.Range(func(o model.Order) error {
		dump = append(dump, o)
		return nil
	}); err != nil {
		return 0, err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(dump), nil
}

func (f *FilesystemSnapshotter) ReadSnapshot(snapshotID string) ([]model.Order, error) {
	path := filepath.Join(f.baseDir, snapshotID, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var orders []model.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return orders, nil
}
