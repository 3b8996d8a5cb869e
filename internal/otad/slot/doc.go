// Package slot manages the fixed-size firmware slots of an A/B (or N-way)
// update scheme and the persisted boot selector that names the slot the
// device boots from next.
//
// Writes only ever target a slot that is not the boot target, and the boot
// selector is replaced in a single atomic store once the new image is fully
// on the medium. An interrupted update therefore never leaves the device
// without a bootable image.
package slot
