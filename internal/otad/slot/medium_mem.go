package slot

import (
	"context"
	"errors"
	"sync"
)

// MemMedium keeps slots in memory. Its fault fields let callers simulate a
// misbehaving flash chip.
type MemMedium struct {
	mu   sync.Mutex
	data map[ID][]byte
	open map[ID]bool

	// EraseErr, WriteErr and SyncErr, when set, are returned by the
	// corresponding operation.
	EraseErr error
	WriteErr error
	SyncErr  error

	// FailWriteAt, when positive, makes a write that reaches this offset fail.
	FailWriteAt int64
}

var _ Medium = (*MemMedium)(nil)

// ErrInjected is the fault MemMedium reports for FailWriteAt.
var ErrInjected = errors.New("slot: injected medium fault")

func NewMemMedium() *MemMedium {
	return &MemMedium{data: make(map[ID][]byte), open: make(map[ID]bool)}
}

func (m *MemMedium) Erase(ctx context.Context, id ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EraseErr != nil {
		return m.EraseErr
	}
	m.data[id] = nil
	m.open[id] = true
	return nil
}

func (m *MemMedium) WriteAt(id ID, p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if m.FailWriteAt > 0 && off+int64(len(p)) >= m.FailWriteAt {
		return 0, ErrInjected
	}

	buf := m.data[id]
	if end := off + int64(len(p)); end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:], p)
	m.data[id] = buf
	return len(p), nil
}

func (m *MemMedium) Sync(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SyncErr
}

func (m *MemMedium) Close(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, id)
	return nil
}

// Bytes returns a copy of the slot contents.
func (m *MemMedium) Bytes(id ID) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data[id]...)
}

// IsOpen reports whether the slot was erased and not closed since.
func (m *MemMedium) IsOpen(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[id]
}
