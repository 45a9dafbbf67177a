package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/balance-station/internal/camera"
	"github.com/ironsheep/balance-station/internal/capture"
	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/console"
	"github.com/ironsheep/balance-station/internal/hwlink"
	"github.com/ironsheep/balance-station/internal/label"
	"github.com/ironsheep/balance-station/internal/ocr"
	"github.com/ironsheep/balance-station/internal/sequence"
)

var runFlags struct {
	noConsole bool
	grace     time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the station: camera, controller link, printer and operator console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStation(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.noConsole, "no-console", false, "Do not serve the operator console on stdin/stdout")
	runCmd.Flags().DurationVar(&runFlags.grace, "grace", 2*time.Second, "How long to wait for the controller link to close on shutdown")
	rootCmd.AddCommand(runCmd)
}

func runStation(ctx context.Context) error {
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	// Use Background here because ctx is already cancelled on shutdown.
	defer db.Close(context.Background())

	cam := camera.NewSource(camera.Settings{
		Index:       cfg.Camera.Index,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		StopTimeout: cfg.Camera.StopTimeout,
	}, camera.OpenGocv)
	if !cam.Start() {
		log.Printf("station: camera %d unavailable, cycles will report NO_FRAME", cfg.Camera.Index)
	}
	defer cam.Stop()

	engine := ocr.NewTesseractEngine(cfg.OCR.Language)
	defer engine.Close()
	if info := engine.Info(); !info.Available {
		log.Printf("station: OCR engine unavailable: %s", info.Error)
	}

	printer := label.NewPrinter(label.CUPSTransport{}, label.Settings{
		Name:          cfg.Printer.Name,
		OutputDir:     cfg.Printer.OutputDir,
		Timeout:       cfg.Printer.Timeout,
		RetentionDays: cfg.Printer.RetentionDays,
	})

	deps := capture.Deps{
		Frames:     cam,
		Recognizer: ocr.NewRecognizer(engine),
		Parts:      db,
		Readings:   db,
		Sequencer:  sequence.New(cfg.Storage.StateFile),
		Printer:    printer,
	}

	var triggers <-chan struct{}
	if link := openLink(cfg.Hardware); link != nil {
		defer link.Close(runFlags.grace)
		deps.Sink = link
		triggers = link.Triggers()
	}

	cfgStore := config.NewStore(cfg)
	orch, err := capture.New(cfgStore, deps)
	if err != nil {
		return err
	}

	if !runFlags.noConsole {
		con := console.New(orch, db, cfgStore)
		go func() {
			if err := con.Run(ctx, os.Stdin, os.Stdout); err != nil {
				log.Printf("station: console stopped: %v", err)
			}
		}()
	}

	log.Printf("station: ready, part %q", orch.Part())
	orch.Run(ctx, triggers)
	log.Printf("station: shutting down")
	return nil
}

// openLink opens the controller port. A station without a controller still
// runs; results are then only shown to the operator.
func openLink(hw config.HardwareConfig) *hwlink.Link {
	if !hw.Enabled {
		log.Printf("station: controller link disabled")
		return nil
	}
	link, err := hwlink.OpenSerial(hwlink.Settings{
		Port:     hw.Port,
		BaudRate: hw.BaudRate,
		DataBits: hw.DataBits,
		Parity:   hw.Parity,
		StopBits: hw.StopBits,
	})
	if err != nil {
		log.Printf("station: controller link unavailable: %v", err)
		return nil
	}
	log.Printf("station: controller link open on %s", link.Name())
	return link
}
