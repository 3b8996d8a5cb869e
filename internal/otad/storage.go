package otad

import (
	"fmt"
	"path/filepath"

	"github.com/autopeer-io/otad/internal/otad/slot"
	"github.com/autopeer-io/otad/pkg/log"
	"github.com/autopeer-io/otad/pkg/options"
)

// OpenSlots builds the slot manager described by opts. The returned close
// function releases the medium.
func OpenSlots(opts *options.SlotOptions, mopts ...slot.Option) (*slot.Manager, func() error, error) {
	capacity, err := opts.CapacityBytes()
	if err != nil {
		return nil, nil, err
	}

	layout := make([]slot.Spec, 0, len(opts.IDs))
	for _, id := range opts.IDs {
		layout = append(layout, slot.Spec{ID: slot.ID(id), Capacity: capacity})
	}

	var (
		medium    slot.Medium
		store     slot.BootStore
		closeFunc = func() error { return nil }
	)
	switch opts.Medium {
	case options.MediumMemory:
		log.Warn("Using the in-memory slot medium, committed images do not survive a restart")
		medium = slot.NewMemMedium()
		store = slot.NewMemBootStore()
	case options.MediumFile:
		fm, err := slot.NewFileMedium(filepath.Join(opts.DataDir, "slots"))
		if err != nil {
			return nil, nil, err
		}
		medium = fm
		store = slot.NewFileBootStore(filepath.Join(opts.DataDir, slot.DefaultBootFile))
		closeFunc = fm.CloseAll
	default:
		return nil, nil, fmt.Errorf("unknown slot medium %q", opts.Medium)
	}

	m, err := slot.NewManager(medium, store, layout, mopts...)
	if err != nil {
		_ = closeFunc()
		return nil, nil, fmt.Errorf("failed to load slot table: %w", err)
	}
	return m, closeFunc, nil
}
