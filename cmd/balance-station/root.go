package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/logging"
	"github.com/ironsheep/balance-station/internal/store"
)

// cfg is the configuration loaded for the running command.
var cfg config.Config

var rootFlags struct {
	configPath string
	dbURL      string
	dataDir    string
	serialPort string
	printer    string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:           "balance-station",
	Short:         "Balance machine reading, labelling and confirmation station",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logging.SetLevel(cfg.LogLevel)
		logging.Debugf("balance-station %s (built %s, commit %s)", Version, BuildTime, GitCommit)
		logging.Debugf("config: data dir %s, camera %d, printer %q, controller %s", cfg.DataDir, cfg.Camera.Index, cfg.Printer.Name, cfg.Hardware.Port)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootFlags.configPath, "config", "c", "", "Machine configuration file (YAML)")
	f.StringVar(&rootFlags.dbURL, "db", "", "PostgreSQL connection string (default: $BALANCE_DATABASE_URL or POSTGRES_*)")
	f.StringVar(&rootFlags.dataDir, "data-dir", "", "Directory for artifacts and the serial state file")
	f.StringVar(&rootFlags.serialPort, "serial-port", "", "Controller serial port")
	f.StringVar(&rootFlags.printer, "printer", "", "Label printer queue name")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (info or debug)")
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.Storage.DatabaseURL = rootFlags.dbURL
	}
	if flags.Changed("data-dir") {
		c.DataDir = rootFlags.dataDir
		c.Printer.OutputDir = filepath.Join(c.DataDir, "qr")
		c.Storage.StateFile = filepath.Join(c.DataDir, "serial_state.json")
	}
	if flags.Changed("serial-port") {
		c.Hardware.Port = rootFlags.serialPort
	}
	if flags.Changed("printer") {
		c.Printer.Name = rootFlags.printer
	}
	if flags.Changed("log-level") {
		c.LogLevel = rootFlags.logLevel
	}
}

// openStore connects to the readings database.
func openStore(ctx context.Context) (*store.Store, error) {
	url := cfg.Storage.DatabaseURL
	if url == "" {
		url = "postgres://localhost:5432/balance"
	}
	db, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
