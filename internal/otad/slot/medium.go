package slot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

// Medium is the raw storage behind the slots.
type Medium interface {
	// Erase prepares the slot for a fresh image, discarding its contents.
	Erase(ctx context.Context, id ID) error

	// WriteAt writes p at offset off of the slot.
	WriteAt(id ID, p []byte, off int64) (int, error)

	// Sync makes everything written to the slot durable.
	Sync(id ID) error

	// Close releases resources held for the slot. It is safe to call on a
	// slot that is not open.
	Close(id ID) error
}

// FileMedium keeps each slot in its own image file under a directory.
type FileMedium struct {
	dir string

	mu    sync.Mutex
	files map[ID]*os.File
}

var _ Medium = (*FileMedium)(nil)

// NewFileMedium creates dir if needed and returns a medium rooted there.
func NewFileMedium(dir string) (*FileMedium, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot directory %s: %w", dir, err)
	}
	return &FileMedium{dir: dir, files: make(map[ID]*os.File)}, nil
}

// Path returns the image file backing a slot.
func (m *FileMedium) Path(id ID) string {
	return filepath.Join(m.dir, "slot-"+string(id)+".img")
}

func (m *FileMedium) Erase(ctx context.Context, id ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.files[id]; ok {
		_ = f.Close()
		delete(m.files, id)
	}

	f, err := os.OpenFile(m.Path(id), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	m.files[id] = f
	return nil
}

func (m *FileMedium) WriteAt(id ID, p []byte, off int64) (int, error) {
	m.mu.Lock()
	f, ok := m.files[id]
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("slot %s is not open for writing", id)
	}
	return f.WriteAt(p, off)
}

func (m *FileMedium) Sync(id ID) error {
	m.mu.Lock()
	f, ok := m.files[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("slot %s is not open for writing", id)
	}
	return f.Sync()
}

func (m *FileMedium) Close(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok {
		return nil
	}
	delete(m.files, id)
	return f.Close()
}

// CloseAll releases every open slot file.
func (m *FileMedium) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for id, f := range m.files {
		err = multierr.Append(err, f.Close())
		delete(m.files, id)
	}
	return err
}
