package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/capture"
)

var resetFlags struct {
	tables bool
	files  bool
	yes    bool
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset station data (database tables, label archive, frame artifacts)",
	Long: `Clears stored data. By default it resets everything. Use flags to clear
specific components. The serial state file is never touched, so label
numbering continues where it left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetFlags.tables && !resetFlags.files {
			resetFlags.tables = true
			resetFlags.files = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetFlags.tables && (resetFlags.yes || confirm(reader, os.Stdout, "Drop the parts and readings tables?")) {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			fmt.Println("Clearing database...")
			if err := db.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
		}

		if resetFlags.files && (resetFlags.yes || confirm(reader, os.Stdout, "Delete the label archive and frame artifacts?")) {
			fmt.Println("Clearing files...")
			for _, path := range resetPaths() {
				if err := os.RemoveAll(path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", path, err)
				}
			}
		}

		fmt.Println("Reset complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetFlags.tables, "tables", false, "Drop the database tables")
	resetCmd.Flags().BoolVar(&resetFlags.files, "files", false, "Delete the label archive and frame artifacts")
	resetCmd.Flags().BoolVarP(&resetFlags.yes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// resetPaths lists the generated files reset removes.
func resetPaths() []string {
	return []string{
		cfg.Printer.OutputDir,
		filepath.Join(cfg.DataDir, capture.FrameArtifact),
		filepath.Join(cfg.DataDir, capture.OverlayArtifact),
	}
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
