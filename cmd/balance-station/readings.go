package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/store"
)

var readingsLimit int

var readingsCmd = &cobra.Command{
	Use:   "readings",
	Short: "List the most recent confirmed readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(cmd.Context())

		records, err := db.RecentReadings(cmd.Context(), readingsLimit)
		if err != nil {
			return fmt.Errorf("failed to list readings: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No readings found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		header := []string{"ID", "TIME", "SERIAL", "PART"}
		for _, slot := range reading.Slots {
			header = append(header, strings.ToUpper(slot.Label()))
		}
		header = append(header, "VALID")
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, r := range records {
			fmt.Fprintln(w, strings.Join(readingRow(r), "\t"))
		}
		return w.Flush()
	},
}

func init() {
	readingsCmd.Flags().IntVarP(&readingsLimit, "limit", "n", 50, "How many readings to show")
	rootCmd.AddCommand(readingsCmd)
}

func readingRow(r store.Record) []string {
	row := []string{
		fmt.Sprint(r.ID),
		r.Timestamp.Local().Format("2006-01-02 15:04:05"),
		r.Serial,
		r.PartCode,
	}
	for _, slot := range reading.Slots {
		row = append(row, slot.Format(r.Values[slot].Value))
	}
	valid := "yes"
	if !r.Valid {
		valid = "no"
		if r.Error != "" {
			valid = "no: " + r.Error
		}
	}
	return append(row, valid)
}
