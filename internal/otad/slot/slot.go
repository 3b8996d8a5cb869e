package slot

import (
	"fmt"
	"time"
)

// ID names a slot, e.g. "a" or "b".
type ID string

func (id ID) String() string { return string(id) }

// Spec is the static description of one slot in the layout.
type Spec struct {
	ID       ID
	Capacity int64
}

// Slot is a point-in-time view of a slot.
type Slot struct {
	ID       ID    `json:"id"`
	Capacity int64 `json:"capacity"`

	// BootTarget reports whether the boot selector names this slot.
	BootTarget bool `json:"bootTarget"`

	// Writing is true while an update session holds the slot open.
	Writing bool `json:"writing"`

	// Image describes the last image committed into the slot, if any.
	Image *Image `json:"image,omitempty"`
}

func (s Slot) String() string {
	return fmt.Sprintf("slot %s", s.ID)
}

// Image records a committed firmware image.
type Image struct {
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	Generation  uint64    `json:"generation"`
	CommittedAt time.Time `json:"committedAt"`
}

// TableVersion is the on-medium format version of Table.
const TableVersion = 1

// Table is the persisted boot selector together with per-slot image records.
type Table struct {
	Version int `json:"version"`

	// Boot names the slot the device boots from after its next reset.
	Boot ID `json:"boot"`

	// Generation increases by one with every commit.
	Generation uint64 `json:"generation"`

	Images map[ID]*Image `json:"images,omitempty"`
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Version:    t.Version,
		Boot:       t.Boot,
		Generation: t.Generation,
		Images:     make(map[ID]*Image, len(t.Images)),
	}
	for id, img := range t.Images {
		if img == nil {
			continue
		}
		cp := *img
		c.Images[id] = &cp
	}
	return c
}
