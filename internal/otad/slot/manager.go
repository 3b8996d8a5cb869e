package slot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sync"

	units "github.com/docker/go-units"
	sha256 "github.com/minio/sha256-simd"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/otad/internal/pkg/metrics"
	"github.com/autopeer-io/otad/pkg/log"
)

// Manager owns the slot layout and the boot selector. All mutation of the
// boot selector goes through FinalizeAndSwitchBoot.
type Manager struct {
	medium Medium
	store  BootStore
	clock  clock.PassiveClock
	layout []Spec

	mu    sync.Mutex
	table *Table
	open  *WriteHandle
	// dirty marks slots erased since their image record was written.
	dirty map[ID]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to stamp committed images.
func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager loads the boot table from store. Before the first commit the
// first slot of the layout is the boot target, matching a factory-flashed
// device.
func NewManager(medium Medium, store BootStore, layout []Spec, opts ...Option) (*Manager, error) {
	seen := make(map[ID]struct{}, len(layout))
	for _, s := range layout {
		if s.ID == "" {
			return nil, errors.New("slot layout contains an empty id")
		}
		if s.Capacity <= 0 {
			return nil, fmt.Errorf("slot %s has non-positive capacity %d", s.ID, s.Capacity)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("slot %s appears twice in the layout", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	m := &Manager{
		medium: medium,
		store:  store,
		clock:  clock.RealClock{},
		layout: append([]Spec(nil), layout...),
		dirty:  make(map[ID]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	table, err := store.Load()
	switch {
	case errors.Is(err, ErrNoTable):
		table = &Table{Version: TableVersion, Images: map[ID]*Image{}}
		if len(layout) > 0 {
			table.Boot = layout[0].ID
		}
		log.Info("No boot table found, assuming factory layout", "boot", table.Boot)
	case err != nil:
		return nil, err
	}
	if table.Images == nil {
		table.Images = map[ID]*Image{}
	}
	m.table = table
	metrics.BootGeneration.Set(float64(table.Generation))

	return m, nil
}

// Generation returns the generation of the current boot table.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Generation
}

// Slots returns every slot in layout order.
func (m *Manager) Slots() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slot, 0, len(m.layout))
	for _, spec := range m.layout {
		out = append(out, m.slotLocked(spec))
	}
	return out
}

// BootTarget returns the slot the device boots from next.
func (m *Manager) BootTarget() (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.bootIndexLocked()
	if err != nil {
		return Slot{}, err
	}
	return m.slotLocked(m.layout[i]), nil
}

// NextTargetSlot returns the slot the next update must be written to: the
// slot following the boot target in layout order.
func (m *Manager) NextTargetSlot() (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.bootIndexLocked()
	if err != nil {
		return Slot{}, err
	}
	return m.slotLocked(m.layout[(i+1)%len(m.layout)]), nil
}

func (m *Manager) bootIndexLocked() (int, error) {
	if len(m.layout) < 2 {
		return 0, fmt.Errorf("%w: layout has %d slot(s)", ErrNoSpareSlot, len(m.layout))
	}
	if m.table.Boot == "" {
		return 0, fmt.Errorf("%w: boot selector names no slot", ErrNoSpareSlot)
	}
	for i, s := range m.layout {
		if s.ID == m.table.Boot {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: boot selector names unknown slot %q", ErrNoSpareSlot, m.table.Boot)
}

func (m *Manager) slotLocked(spec Spec) Slot {
	s := Slot{
		ID:         spec.ID,
		Capacity:   spec.Capacity,
		BootTarget: spec.ID == m.table.Boot,
		Writing:    m.open != nil && m.open.slot.ID == spec.ID,
	}
	if img, ok := m.table.Images[spec.ID]; ok && img != nil && !m.dirty[spec.ID] {
		cp := *img
		s.Image = &cp
	}
	return s
}

func (m *Manager) specLocked(id ID) (Spec, bool) {
	for _, s := range m.layout {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// WriteHandle is an open, erased slot accepting sequential appends.
type WriteHandle struct {
	slot    Slot
	written int64
	digest  hash.Hash
	closed  bool
}

// Slot returns the slot being written.
func (h *WriteHandle) Slot() Slot { return h.slot }

// OpenForWrite erases s and returns a handle positioned at offset zero.
// The boot target can never be opened, and only one handle may be open.
func (m *Manager) OpenForWrite(ctx context.Context, s Slot) (*WriteHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	spec, ok := m.specLocked(s.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, s.ID)
	}
	if spec.ID == m.table.Boot {
		return nil, fmt.Errorf("%w: %s", ErrBootTarget, spec.ID)
	}
	if m.open != nil {
		return nil, fmt.Errorf("%w: %s", ErrHandleOpen, m.open.slot.ID)
	}

	m.dirty[spec.ID] = true
	if err := m.medium.Erase(ctx, spec.ID); err != nil {
		return nil, &EraseError{Slot: spec.ID, Err: err}
	}

	h := &WriteHandle{
		slot:   Slot{ID: spec.ID, Capacity: spec.Capacity, Writing: true},
		digest: sha256.New(),
	}
	m.open = h

	log.Debug("Slot opened for writing", "slot", spec.ID, "capacity", units.BytesSize(float64(spec.Capacity)))
	return h, nil
}

// Append writes p at the handle's current offset. An append that would
// overflow the slot fails as a whole and writes nothing.
func (m *Manager) Append(h *WriteHandle, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHandleLocked(h); err != nil {
		return &WriteError{Slot: h.slot.ID, Offset: h.written, Err: err}
	}
	if len(p) == 0 {
		return nil
	}
	if h.written+int64(len(p)) > h.slot.Capacity {
		return &WriteError{
			Slot:   h.slot.ID,
			Offset: h.written,
			Err:    fmt.Errorf("%w: %d + %d > %d", ErrCapacityExceeded, h.written, len(p), h.slot.Capacity),
		}
	}

	n, err := m.medium.WriteAt(h.slot.ID, p, h.written)
	if err == nil && n < len(p) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(p))
	}
	if err != nil {
		return &WriteError{Slot: h.slot.ID, Offset: h.written, Err: err}
	}

	h.digest.Write(p)
	h.written += int64(n)
	metrics.BytesWritten.Add(float64(n))
	return nil
}

// FinalizeAndSwitchBoot makes the handle's image durable and then points the
// boot selector at it in one atomic store. On error the boot selector keeps
// its previous value. The handle is closed either way.
func (m *Manager) FinalizeAndSwitchBoot(ctx context.Context, h *WriteHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHandleLocked(h); err != nil {
		return &FinalizeError{Slot: h.slot.ID, Err: err}
	}
	defer m.closeLocked(h)

	if h.written == 0 {
		return &FinalizeError{Slot: h.slot.ID, Err: ErrEmptyImage}
	}
	if err := ctx.Err(); err != nil {
		return &FinalizeError{Slot: h.slot.ID, Err: err}
	}
	if err := m.medium.Sync(h.slot.ID); err != nil {
		return &FinalizeError{Slot: h.slot.ID, Err: fmt.Errorf("sync image: %w", err)}
	}

	next := m.table.Clone()
	next.Version = TableVersion
	next.Boot = h.slot.ID
	next.Generation++
	next.Images[h.slot.ID] = &Image{
		Size:        h.written,
		Digest:      "sha256:" + hex.EncodeToString(h.digest.Sum(nil)),
		Generation:  next.Generation,
		CommittedAt: m.clock.Now().UTC(),
	}

	if err := m.store.Store(next); err != nil {
		return &FinalizeError{Slot: h.slot.ID, Err: fmt.Errorf("store boot selector: %w", err)}
	}

	prev := m.table.Boot
	m.table = next
	delete(m.dirty, h.slot.ID)
	metrics.BootGeneration.Set(float64(next.Generation))

	log.Info("Boot selector switched",
		"from", prev,
		"to", next.Boot,
		"generation", next.Generation,
		"size", units.BytesSize(float64(h.written)),
		"digest", next.Images[h.slot.ID].Digest)
	return nil
}

// Abort discards the handle. The slot keeps whatever was written but can
// never become the boot target through this handle. Aborting a closed
// handle is a no-op.
func (m *Manager) Abort(h *WriteHandle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h.closed || m.open != h {
		return
	}
	m.closeLocked(h)
	log.Debug("Slot write aborted", "slot", h.slot.ID, "written", h.written)
}

func (m *Manager) checkHandleLocked(h *WriteHandle) error {
	if h == nil || h.closed || m.open != h {
		return ErrHandleClosed
	}
	return nil
}

func (m *Manager) closeLocked(h *WriteHandle) {
	h.closed = true
	if m.open == h {
		m.open = nil
	}
	if err := m.medium.Close(h.slot.ID); err != nil {
		log.Warn("Failed to release slot", "slot", h.slot.ID, "error", err)
	}
}
