package options

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/pflag"
)

var _ IOptions = (*SlotOptions)(nil)

const (
	MediumFile   = "file"
	MediumMemory = "memory"
)

// SlotOptions describe the firmware slot layout and where it lives.
type SlotOptions struct {
	// Medium selects the storage backend: "file" or "memory".
	Medium string `json:"medium" mapstructure:"medium"`

	// DataDir holds one image file per slot plus the boot selector.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// IDs names the slots in rotation order. The first one is the factory
	// boot target when no boot selector exists yet.
	IDs []string `json:"ids" mapstructure:"ids"`

	// Capacity is the per-slot size limit, e.g. "1984KiB" or "4MiB".
	Capacity string `json:"capacity" mapstructure:"capacity"`
}

func NewSlotOptions() *SlotOptions {
	return &SlotOptions{
		Medium:   MediumFile,
		DataDir:  "/var/lib/otad",
		IDs:      []string{"a", "b"},
		Capacity: "1984KiB",
	}
}

// CapacityBytes parses Capacity.
func (o *SlotOptions) CapacityBytes() (int64, error) {
	n, err := units.RAMInBytes(o.Capacity)
	if err != nil {
		return 0, fmt.Errorf("invalid slot capacity %q: %w", o.Capacity, err)
	}
	return n, nil
}

func (o *SlotOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	switch o.Medium {
	case MediumFile:
		if o.DataDir == "" {
			errs = append(errs, fmt.Errorf("--slot.data-dir is required for the %q medium", MediumFile))
		}
	case MediumMemory:
	default:
		errs = append(errs, fmt.Errorf("--slot.medium must be %q or %q, got %q", MediumFile, MediumMemory, o.Medium))
	}

	if len(o.IDs) < 2 {
		errs = append(errs, fmt.Errorf("--slot.ids needs at least two slots, got %d", len(o.IDs)))
	}
	seen := make(map[string]struct{}, len(o.IDs))
	for _, id := range o.IDs {
		if id == "" {
			errs = append(errs, fmt.Errorf("--slot.ids contains an empty slot id"))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("--slot.ids contains %q twice", id))
		}
		seen[id] = struct{}{}
	}

	if n, err := o.CapacityBytes(); err != nil {
		errs = append(errs, err)
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("--slot.capacity must be positive"))
	}

	return errs
}

func (o *SlotOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Medium, "slot.medium", o.Medium, "Slot storage backend ('file' or 'memory').")
	fs.StringVar(&o.DataDir, "slot.data-dir", o.DataDir, "Directory holding slot images and the boot selector.")
	fs.StringSliceVar(&o.IDs, "slot.ids", o.IDs, "Slot identifiers in rotation order.")
	fs.StringVar(&o.Capacity, "slot.capacity", o.Capacity, "Maximum image size per slot (e.g. 1984KiB, 4MiB).")
}
