package app

import (
	"fmt"
	"io"

	units "github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/otad/cmd/otad/app/options"
	"github.com/autopeer-io/otad/internal/otad"
	"github.com/autopeer-io/otad/internal/otad/slot"
)

func newSlotsCommand(opts *options.DaemonOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Print the slot table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeSlots, err := otad.OpenSlots(opts.SlotOptions)
			if err != nil {
				return err
			}
			defer func() { _ = closeSlots() }()

			return printSlots(cmd.OutOrStdout(), m.Generation(), m.Slots())
		},
	}
}

func printSlots(w io.Writer, generation uint64, slots []slot.Slot) error {
	table := uitable.New()
	table.MaxColWidth = 72
	table.AddRow("SLOT", "BOOT", "CAPACITY", "IMAGE", "DIGEST", "COMMITTED")

	for _, s := range slots {
		boot := ""
		if s.BootTarget {
			boot = "*"
		}
		size, digest, committed := "-", "-", "-"
		if s.Image != nil {
			size = units.BytesSize(float64(s.Image.Size))
			digest = s.Image.Digest
			committed = s.Image.CommittedAt.Format("2006-01-02 15:04:05")
		}
		table.AddRow(s.ID, boot, units.BytesSize(float64(s.Capacity)), size, digest, committed)
	}

	_, err := fmt.Fprintf(w, "%s\n\nGeneration: %d\n", table, generation)
	return err
}
