package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/hwlink"
	"github.com/ironsheep/balance-station/internal/sequence"
)

var serialPorts bool

var serialCmd = &cobra.Command{
	Use:   "serial",
	Short: "Show the label serial state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serialPorts {
			ports, err := hwlink.Ports()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found.")
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		}

		seq := sequence.New(cfg.Storage.StateFile)
		st := seq.State()
		next := seq.Peek("")
		fmt.Printf("State file:  %s\n", cfg.Storage.StateFile)
		fmt.Printf("Month:       %s\n", st.Month)
		fmt.Printf("Last serial: %s\n", sequence.FormatSerial(st.Serial))
		fmt.Printf("Last part:   %s\n", st.LastPart)
		fmt.Printf("Next label:  %s%s\n", next.Number(), next.Part)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:              "version",
	Short:            "Print version information",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("balance-station %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
	},
}

func init() {
	serialCmd.Flags().BoolVar(&serialPorts, "ports", false, "List the serial ports present instead")
	rootCmd.AddCommand(serialCmd, versionCmd)
}
