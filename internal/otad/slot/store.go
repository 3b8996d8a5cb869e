package slot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/autopeer-io/otad/pkg/log"
)

// BootStore persists the boot table. Store must be all-or-nothing: after a
// failed Store, Load still returns the previous table.
type BootStore interface {
	// Load returns the stored table, or ErrNoTable before the first Store.
	Load() (*Table, error)

	// Store atomically replaces the stored table.
	Store(t *Table) error
}

// FileBootStore keeps the table as a JSON document, replaced through a
// synced temporary file and a rename.
type FileBootStore struct {
	path string

	// syncDir flushes the directory entry after the rename.
	syncDir func(dir string) error
}

var _ BootStore = (*FileBootStore)(nil)

// DefaultBootFile is the boot table file name inside the slot directory.
const DefaultBootFile = "boot.json"

func NewFileBootStore(path string) *FileBootStore {
	return &FileBootStore{path: path, syncDir: syncDir}
}

func (s *FileBootStore) Path() string { return s.path }

func (s *FileBootStore) Load() (*Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("read boot table: %w", err)
	}

	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode boot table %s: %w", s.path, err)
	}
	if t.Version != TableVersion {
		return nil, fmt.Errorf("boot table %s has unsupported version %d", s.path, t.Version)
	}
	return &t, nil
}

func (s *FileBootStore) Store(t *Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode boot table: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("replace boot table: %w", err)
	}

	// The rename has landed: Load already returns t, so the store succeeded.
	// Only the durability of the directory entry is in doubt.
	if err := s.syncDir(filepath.Dir(s.path)); err != nil {
		log.Warn("Boot table replaced but its directory was not synced",
			"path", s.path, "boot", t.Boot, "generation", t.Generation, "error", err)
	}
	return nil
}

// syncDir makes the rename itself durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return nil
}

// MemBootStore keeps the table in memory.
type MemBootStore struct {
	mu    sync.Mutex
	table *Table

	// StoreErr, when set, makes Store fail without touching the table.
	StoreErr error

	// Stores counts successful Store calls.
	Stores int
}

var _ BootStore = (*MemBootStore)(nil)

func NewMemBootStore() *MemBootStore {
	return &MemBootStore{}
}

func (s *MemBootStore) Load() (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, ErrNoTable
	}
	return s.table.Clone(), nil
}

func (s *MemBootStore) Store(t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StoreErr != nil {
		return s.StoreErr
	}
	s.table = t.Clone()
	s.Stores++
	return nil
}
