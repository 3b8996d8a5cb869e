package slot

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSpareSlot means the layout or boot selector is inconsistent and no
	// slot can safely be written. It should not happen on a provisioned device.
	ErrNoSpareSlot = errors.New("slot: no spare slot available")

	// ErrCapacityExceeded is wrapped by WriteError when an append would
	// overflow the slot.
	ErrCapacityExceeded = errors.New("slot: image exceeds slot capacity")

	// ErrBootTarget is returned when asked to write the current boot target.
	ErrBootTarget = errors.New("slot: refusing to write the boot target")

	// ErrHandleOpen is returned when a second write handle is requested.
	ErrHandleOpen = errors.New("slot: another write handle is open")

	// ErrHandleClosed is returned when a finished or foreign handle is used.
	ErrHandleClosed = errors.New("slot: write handle is closed")

	// ErrEmptyImage is wrapped by FinalizeError when nothing was written.
	ErrEmptyImage = errors.New("slot: no image bytes written")

	// ErrUnknownSlot is returned for IDs outside the layout.
	ErrUnknownSlot = errors.New("slot: unknown slot")

	// ErrNoTable is returned by BootStore.Load before the first commit.
	ErrNoTable = errors.New("slot: no boot table stored")
)

// EraseError reports that the medium rejected preparing a slot for writing.
type EraseError struct {
	Slot ID
	Err  error
}

func (e *EraseError) Error() string {
	return fmt.Sprintf("erase slot %s: %v", e.Slot, e.Err)
}

func (e *EraseError) Unwrap() error { return e.Err }

// WriteError reports a failed append, including capacity overflow.
type WriteError struct {
	Slot   ID
	Offset int64
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write slot %s at offset %d: %v", e.Slot, e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FinalizeError reports a failed commit. The boot selector is unchanged.
type FinalizeError struct {
	Slot ID
	Err  error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize slot %s: %v", e.Slot, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }
