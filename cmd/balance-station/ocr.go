package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	imageproc "github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/ocr"
	"github.com/ironsheep/balance-station/internal/reading"
)

var ocrFlags struct {
	overlayDir string
	grid       int
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>...",
	Short: "Read the four display values from saved frames",
	Long: `Runs recognition on saved frames, for example latest_captured_frame.jpg,
using the configured regions and threshold. Frames are resized to the
configured camera resolution first so the regions line up.

With --grid, a copy of each frame with a labelled coordinate grid is also
written to the overlay directory, for adjusting region positions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := ocr.NewTesseractEngine(cfg.OCR.Language)
		defer engine.Close()
		if info := engine.Info(); !info.Available {
			return fmt.Errorf("OCR engine unavailable: %s", info.Error)
		}
		rec := ocr.NewRecognizer(engine)
		regions := cfg.RegionSpecs()
		settings := ocr.Settings{
			Threshold:    cfg.OCR.ConfidenceThreshold,
			Timeout:      cfg.OCR.Timeout,
			AllowedChars: cfg.OCR.AllowedChars,
		}

		var bar *progressbar.ProgressBar
		if len(args) > 1 {
			bar = progressbar.NewOptions(len(args),
				progressbar.OptionSetDescription("Reading frames"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		header := []string{"FILE"}
		for _, slot := range reading.Slots {
			header = append(header, strings.ToUpper(slot.Label()))
		}
		fmt.Fprintln(w, strings.Join(header, "\t"))

		failed := 0
		for _, path := range args {
			set, err := readFrame(cmd, rec, path, regions, settings)
			if bar != nil {
				bar.Add(1)
			}
			if err != nil {
				failed++
				fmt.Fprintf(w, "%s\terror: %v\n", path, err)
				continue
			}
			row := []string{path}
			for _, slot := range reading.Slots {
				r := set[slot]
				row = append(row, fmt.Sprintf("%s (%.2f)", slot.Format(r.Value), r.Confidence))
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d frames could not be read", failed, len(args))
		}
		return nil
	},
}

func init() {
	ocrCmd.Flags().StringVar(&ocrFlags.overlayDir, "overlay", "", "Write an annotated copy of each frame to this directory")
	ocrCmd.Flags().IntVar(&ocrFlags.grid, "grid", 0, "Also write a coordinate grid overlay with this spacing in pixels (needs --overlay)")
	rootCmd.AddCommand(ocrCmd)
}

func readFrame(cmd *cobra.Command, rec *ocr.Recognizer, path string, regions []imageproc.RegionSpec, s ocr.Settings) (reading.Set, error) {
	img, err := imageproc.LoadImage(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() != cfg.Camera.Width || b.Dy() != cfg.Camera.Height {
		img = imaging.Resize(img, cfg.Camera.Width, cfg.Camera.Height, imaging.Lanczos)
	}
	frame := imageproc.ToGray(img)
	set := rec.ExtractAll(cmd.Context(), frame, regions, s)

	if ocrFlags.overlayDir != "" {
		marks := make([]imageproc.Mark, 0, len(regions))
		for _, spec := range regions {
			r := set[reading.Slot(spec.Name)]
			status := imageproc.MarkUnchecked
			if !r.Present() {
				status = imageproc.MarkMissing
			}
			marks = append(marks, imageproc.Mark{Spec: spec, Status: status, Text: reading.Slot(spec.Name).Format(r.Value), Confidence: r.Confidence})
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_annotated.png"
		if err := imageproc.SaveArtifact(imageproc.Annotate(frame, marks), filepath.Join(ocrFlags.overlayDir, name)); err != nil {
			return set, err
		}
		if ocrFlags.grid > 0 {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_grid.png"
			if err := imageproc.SaveArtifact(imageproc.Grid(img, ocrFlags.grid), filepath.Join(ocrFlags.overlayDir, name)); err != nil {
				return set, err
			}
		}
	}
	return set, nil
}
