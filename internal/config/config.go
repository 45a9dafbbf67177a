// Package config loads the station's machine file and holds the live,
// versioned configuration snapshot shared by the capture pipeline.
//
// # Sources
//
// Values are layered, later sources winning:
//   - Defaults(), which match the station as shipped
//   - a YAML machine file (durations as Go duration strings, e.g. "60s")
//   - environment variables (BALANCE_*, and POSTGRES_* for the database DSN)
//   - command-line flags, applied by the caller
//
// # Snapshots
//
// Components never read a mutable global. A capture cycle takes one Snapshot
// from the Store when it starts and uses it until it ends; operator edits
// (ROI coordinates, thresholds) build a new Config and swap it in atomically.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/reading"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Mismatch policies for the scan confirmation step.
const (
	MismatchRetry = "retry"
	MismatchAbort = "abort"
)

// Results sent to the controller when a scan confirmation fails.
const (
	ScanFailureNone = "none"
	ScanFailureFail = "fail"
)

// Config is the complete machine configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	DataDir    string           `yaml:"data_dir"`
	Camera     CameraConfig     `yaml:"camera"`
	OCR        OCRConfig        `yaml:"ocr"`
	Regions    RegionsConfig    `yaml:"regions"`
	Validation ValidationConfig `yaml:"validation"`
	Printer    PrinterConfig    `yaml:"printer"`
	Confirm    ConfirmConfig    `yaml:"confirm"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Storage    StorageConfig    `yaml:"storage"`
}

// CameraConfig selects the capture device and the fixed frame geometry.
type CameraConfig struct {
	Index       int           `yaml:"index"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FPS         float64       `yaml:"fps"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// OCRConfig tunes recognition.
type OCRConfig struct {
	Language            string        `yaml:"language"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	Timeout             time.Duration `yaml:"timeout"`
	AllowedChars        string        `yaml:"allowed_chars"`
}

// Rect is a region in frame pixels.
type Rect struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// RegionsConfig holds the four display fields and the crop padding.
type RegionsConfig struct {
	Pad     int  `yaml:"pad"`
	Angle1  Rect `yaml:"angle1"`
	Weight1 Rect `yaml:"weight1"`
	Angle2  Rect `yaml:"angle2"`
	Weight2 Rect `yaml:"weight2"`
}

// ValidationConfig restricts limit checks to a subset of slots. Empty means all four.
type ValidationConfig struct {
	Slots []string `yaml:"slots"`
}

// PrinterConfig selects the label queue and where artifacts go.
type PrinterConfig struct {
	Name            string        `yaml:"name"`
	OutputDir       string        `yaml:"output_dir"`
	Timeout         time.Duration `yaml:"timeout"`
	RetentionDays   int           `yaml:"retention_days"`
	RequirePhysical bool          `yaml:"require_physical"`
}

// ConfirmConfig controls the operator scan-back step.
type ConfirmConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MismatchPolicy    string        `yaml:"mismatch_policy"`
	ScanFailureResult string        `yaml:"scan_failure_result"`
}

// HardwareConfig describes the controller's serial line.
type HardwareConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// StorageConfig points at the readings database and the serial state file.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
	StateFile   string `yaml:"state_file"`
}

// Defaults returns the configuration of the station as shipped.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "data",
		Camera: CameraConfig{
			Index:       0,
			Width:       640,
			Height:      640,
			FPS:         30,
			StopTimeout: 2 * time.Second,
		},
		OCR: OCRConfig{
			Language:            "eng",
			ConfidenceThreshold: 0.5,
			Timeout:             5 * time.Second,
			AllowedChars:        "0123456789.-",
		},
		Regions: RegionsConfig{
			Pad:     8,
			Angle1:  Rect{X: 101, Y: 434, W: 139, H: 81},
			Weight1: Rect{X: 56, Y: 333, W: 217, H: 90},
			Angle2:  Rect{X: 445, Y: 417, W: 106, H: 57},
			Weight2: Rect{X: 420, Y: 324, W: 165, H: 78},
		},
		Printer: PrinterConfig{
			Name:            "TSC TE210",
			OutputDir:       filepath.Join("data", "qr"),
			Timeout:         5 * time.Second,
			RetentionDays:   2,
			RequirePhysical: true,
		},
		Confirm: ConfirmConfig{
			Timeout:           60 * time.Second,
			MismatchPolicy:    MismatchRetry,
			ScanFailureResult: ScanFailureNone,
		},
		Hardware: HardwareConfig{
			Enabled:  true,
			Port:     "COM3",
			BaudRate: 115200,
			DataBits: 8,
			Parity:   "none",
			StopBits: 1,
		},
		Storage: StorageConfig{
			StateFile: filepath.Join("data", "serial_state.json"),
		},
	}
}

// Load reads a machine file on top of Defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BALANCE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("BALANCE_SERIAL_PORT"); v != "" {
		c.Hardware.Port = v
	}
	if v := getenv("BALANCE_PRINTER"); v != "" {
		c.Printer.Name = v
	}
	if v := getenv("BALANCE_DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
		return
	}
	if c.Storage.DatabaseURL != "" {
		return
	}
	if host := getenv("POSTGRES_HOST"); host != "" {
		port := getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		c.Storage.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		problems = append(problems, "camera width and height must be positive")
	}
	if c.Camera.FPS <= 0 {
		problems = append(problems, "camera fps must be positive")
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		problems = append(problems, "ocr confidence_threshold must be within [0,1]")
	}
	if c.Regions.Pad < 0 {
		problems = append(problems, "regions pad must not be negative")
	}
	if _, err := c.CheckedSlots(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Confirm.MismatchPolicy {
	case MismatchRetry, MismatchAbort:
	default:
		problems = append(problems, fmt.Sprintf("confirm mismatch_policy %q is not retry or abort", c.Confirm.MismatchPolicy))
	}
	switch c.Confirm.ScanFailureResult {
	case ScanFailureNone, ScanFailureFail:
	default:
		problems = append(problems, fmt.Sprintf("confirm scan_failure_result %q is not none or fail", c.Confirm.ScanFailureResult))
	}
	if c.Confirm.Timeout <= 0 {
		problems = append(problems, "confirm timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RegionSpecs returns the four crop rectangles in slot order.
func (c *Config) RegionSpecs() []imaging.RegionSpec {
	r := c.Regions
	spec := func(slot reading.Slot, rect Rect) imaging.RegionSpec {
		return imaging.RegionSpec{Name: string(slot), X: rect.X, Y: rect.Y, W: rect.W, H: rect.H, Pad: r.Pad}
	}
	return []imaging.RegionSpec{
		spec(reading.AngleLeft, r.Angle1),
		spec(reading.WeightLeft, r.Weight1),
		spec(reading.AngleRight, r.Angle2),
		spec(reading.WeightRight, r.Weight2),
	}
}

// Region returns a pointer to the rectangle configured for slot.
func (c *Config) Region(slot reading.Slot) *Rect {
	switch slot {
	case reading.AngleLeft:
		return &c.Regions.Angle1
	case reading.WeightLeft:
		return &c.Regions.Weight1
	case reading.AngleRight:
		return &c.Regions.Angle2
	case reading.WeightRight:
		return &c.Regions.Weight2
	}
	return nil
}

// CheckedSlots parses the validation subset. Nil means every slot.
func (c *Config) CheckedSlots() ([]reading.Slot, error) {
	if len(c.Validation.Slots) == 0 {
		return nil, nil
	}
	slots := make([]reading.Slot, 0, len(c.Validation.Slots))
	for _, name := range c.Validation.Slots {
		s, err := reading.ParseSlot(name)
		if err != nil {
			return nil, fmt.Errorf("validation slots: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	if c.Validation.Slots != nil {
		c.Validation.Slots = append([]string(nil), c.Validation.Slots...)
	}
	return c
}
