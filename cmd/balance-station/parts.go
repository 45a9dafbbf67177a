package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/reading"
)

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "Manage part codes and their tolerance limits",
}

var partsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all parts and their limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(cmd.Context())

		parts, err := db.ListParts(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list parts: %w", err)
		}
		if len(parts) == 0 {
			fmt.Println("No parts found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		header := []string{"CODE", "NAME"}
		for _, slot := range reading.Slots {
			header = append(header, strings.ToUpper(slot.Label()))
		}
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, p := range parts {
			row := []string{p.Code, p.Name}
			for _, slot := range reading.Slots {
				row = append(row, formatBounds(p.Bound(slot)))
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return w.Flush()
	},
}

var partsAddFlags struct {
	name   string
	bounds map[string]*float64
}

var partsAddCmd = &cobra.Command{
	Use:     "add <code>",
	Short:   "Add a part or replace its name and limits",
	Example: `  balance-station parts add A7 --name "Rotor A7" --weight1-max 4.5 --weight2-max 4.5`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		part := reading.PartLimits{
			Code:   strings.TrimSpace(args[0]),
			Name:   partsAddFlags.name,
			Limits: make(map[reading.Slot]reading.Bounds),
		}
		for _, slot := range reading.Slots {
			var b reading.Bounds
			if cmd.Flags().Changed(string(slot) + "-min") {
				b.Min = reading.Float(*partsAddFlags.bounds[string(slot)+"-min"])
			}
			if cmd.Flags().Changed(string(slot) + "-max") {
				b.Max = reading.Float(*partsAddFlags.bounds[string(slot)+"-max"])
			}
			if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
				return fmt.Errorf("%s: min %g is above max %g", slot, *b.Min, *b.Max)
			}
			part.Limits[slot] = b
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(cmd.Context())

		if err := db.UpsertPart(cmd.Context(), part); err != nil {
			return fmt.Errorf("failed to save part: %w", err)
		}
		fmt.Printf("Saved part %s\n", part.Code)
		return nil
	},
}

var partsDeleteCmd = &cobra.Command{
	Use:   "delete <code>",
	Short: "Delete a part. Stored readings are kept.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(cmd.Context())

		if err := db.DeletePart(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted part %s\n", args[0])
		return nil
	},
}

func init() {
	partsAddCmd.Flags().StringVar(&partsAddFlags.name, "name", "", "Part name")
	partsAddFlags.bounds = make(map[string]*float64)
	for _, slot := range reading.Slots {
		for _, side := range []string{"min", "max"} {
			name := string(slot) + "-" + side
			partsAddFlags.bounds[name] = partsAddCmd.Flags().Float64(name, 0, fmt.Sprintf("%s %s limit (unbounded if omitted)", slot.Label(), side))
		}
	}

	partsCmd.AddCommand(partsListCmd, partsAddCmd, partsDeleteCmd)
	rootCmd.AddCommand(partsCmd)
}

// formatBounds renders a range as "min..max", with "-" for an open side.
func formatBounds(b reading.Bounds) string {
	if b.Min == nil && b.Max == nil {
		return "-"
	}
	side := func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%g", *v)
	}
	return side(b.Min) + ".." + side(b.Max)
}
