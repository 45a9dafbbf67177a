package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ironsheep/balance-station/internal/capture"
	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/store"
)

const (
	pingTimeout     = 2 * time.Second
	defaultReadings = 20
	maxReadings     = 500
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// paramsError marks a request whose parameters could not be used.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func asParamsError(err error, target **paramsError) bool {
	return errors.As(err, target)
}

// decode unmarshals params into v. Missing params decode as {}.
func decode(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &paramsError{err}
	}
	return nil
}

func (c *Console) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"status":           c.handleStatus,
		"parts/list":       c.handlePartsList,
		"readings/recent":  c.handleReadingsRecent,
		"part/select":      c.handlePartSelect,
		"capture":          c.handleCapture,
		"scan":             c.handleScan,
		"scan/cancel":      c.handleScanCancel,
		"config/get":       c.handleConfigGet,
		"config/region":    c.handleConfigRegion,
		"config/threshold": c.handleConfigThreshold,
	}
}

// === Station ===

// StatusResult is the station status plus the database health.
type StatusResult struct {
	capture.Status
	Database string `json:"database"`
}

func (c *Console) handleStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	res := StatusResult{Status: c.station.Status(), Database: "ok"}
	switch {
	case c.db == nil:
		res.Database = "not configured"
	default:
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := c.db.Ping(pingCtx); err != nil {
			res.Database = err.Error()
		}
	}
	return res, nil
}

func (c *Console) handlePartsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if c.db == nil {
		return nil, errors.New("no part store configured")
	}
	parts, err := c.db.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	if parts == nil {
		parts = []reading.PartLimits{}
	}
	return map[string]interface{}{
		"parts":    parts,
		"selected": c.station.Status().Part,
	}, nil
}

// ReadingsParams are the parameters of readings/recent.
type ReadingsParams struct {
	Limit int `json:"limit"`
}

func (c *Console) handleReadingsRecent(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ReadingsParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	switch {
	case p.Limit < 0 || p.Limit > maxReadings:
		return nil, &paramsError{fmt.Errorf("limit must be between 1 and %d", maxReadings)}
	case p.Limit == 0:
		p.Limit = defaultReadings
	}
	if c.db == nil {
		return nil, errors.New("no reading store configured")
	}
	records, err := c.db.RecentReadings(ctx, p.Limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []store.Record{}
	}
	return map[string]interface{}{"readings": records}, nil
}

// PartSelectParams are the parameters of part/select.
type PartSelectParams struct {
	Code string `json:"code"`
}

func (c *Console) handlePartSelect(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PartSelectParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Code == "" {
		return nil, &paramsError{errors.New("code is required")}
	}
	part, err := c.station.SelectPart(ctx, p.Code)
	if err != nil {
		return nil, err
	}
	return part, nil
}

func (c *Console) handleCapture(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if !c.station.Trigger(ctx) {
		return nil, errors.New("capture cycle already in progress")
	}
	return map[string]interface{}{"started": true}, nil
}

// ScanParams are the parameters of scan.
type ScanParams struct {
	Text string `json:"text"`
}

func (c *Console) handleScan(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ScanParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	outcome, open := c.station.Feed(p.Text)
	if !open {
		return nil, errors.New("no label is waiting for a scan")
	}
	return map[string]interface{}{"outcome": outcome.String()}, nil
}

func (c *Console) handleScanCancel(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"cancelled": c.station.CancelScan()}, nil
}

// === Configuration ===

func (c *Console) handleConfigGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	snap := c.cfg.Current()
	return map[string]interface{}{
		"version": snap.Version,
		"config":  snap.Config,
	}, nil
}

// RegionParams are the parameters of config/region. Omitted fields keep
// their current value.
type RegionParams struct {
	Slot string `json:"slot"`
	X    *int   `json:"x"`
	Y    *int   `json:"y"`
	W    *int   `json:"w"`
	H    *int   `json:"h"`
	Pad  *int   `json:"pad"`
}

func (c *Console) handleConfigRegion(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p RegionParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	slot, err := reading.ParseSlot(p.Slot)
	if err != nil {
		return nil, &paramsError{err}
	}
	for name, v := range map[string]*int{"x": p.X, "y": p.Y, "w": p.W, "h": p.H} {
		if v != nil && *v < 0 {
			return nil, &paramsError{fmt.Errorf("%s must not be negative", name)}
		}
	}

	snap, err := c.cfg.Update(func(cfg *config.Config) error {
		r := cfg.Region(slot)
		set := func(dst *int, v *int) {
			if v != nil {
				*dst = *v
			}
		}
		set(&r.X, p.X)
		set(&r.Y, p.Y)
		set(&r.W, p.W)
		set(&r.H, p.H)
		set(&cfg.Regions.Pad, p.Pad)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"version": snap.Version,
		"slot":    slot,
		"region":  *snap.Config.Region(slot),
		"pad":     snap.Config.Regions.Pad,
	}, nil
}

// ThresholdParams are the parameters of config/threshold.
type ThresholdParams struct {
	Threshold *float64 `json:"threshold"`
}

func (c *Console) handleConfigThreshold(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ThresholdParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.Threshold == nil {
		return nil, &paramsError{errors.New("threshold is required")}
	}

	snap, err := c.cfg.Update(func(cfg *config.Config) error {
		cfg.OCR.ConfidenceThreshold = *p.Threshold
		return nil
	})
	if err != nil {
		return nil, &paramsError{err}
	}
	return map[string]interface{}{
		"version":   snap.Version,
		"threshold": snap.Config.OCR.ConfidenceThreshold,
	}, nil
}
