package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/balance-station/internal/camera"
	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/hwlink"
	"github.com/ironsheep/balance-station/internal/imaging"
	"github.com/ironsheep/balance-station/internal/label"
	"github.com/ironsheep/balance-station/internal/ocr"
	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/sequence"
	"github.com/ironsheep/balance-station/internal/store"
)

const wantPayload = "00042A7;12.50;3.100;-7.46;0.250"

type fakeFrames struct {
	mu    sync.Mutex
	frame camera.Frame
	ok    bool
}

func (f *fakeFrames) Current() (camera.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.ok
}

type fakeRecognizer struct {
	mu       sync.Mutex
	set      reading.Set
	calls    int
	settings ocr.Settings
}

func (f *fakeRecognizer) ExtractAll(ctx context.Context, frame image.Image, regions []imaging.RegionSpec, s ocr.Settings) reading.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.settings = s
	out := make(reading.Set, len(f.set))
	for k, v := range f.set {
		out[k] = v
	}
	return out
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeParts map[string]reading.PartLimits

func (f fakeParts) GetPart(ctx context.Context, code string) (*reading.PartLimits, error) {
	p, ok := f[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPartNotFound, code)
	}
	return &p, nil
}

type fakeReadings struct {
	mu      sync.Mutex
	err     error
	records []store.Record
}

func (f *fakeReadings) SaveReading(ctx context.Context, r store.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.records = append(f.records, r)
	return int64(len(f.records)), nil
}

func (f *fakeReadings) saved() []store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Record(nil), f.records...)
}

type fakePrinter struct {
	mu     sync.Mutex
	result label.Result
	labels []*label.Label
}

func (f *fakePrinter) PrintAndSave(ctx context.Context, l *label.Label) label.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, l)
	return f.result
}

func (f *fakePrinter) printed() []*label.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*label.Label(nil), f.labels...)
}

type fakeSink struct {
	mu   sync.Mutex
	sent []hwlink.Result
}

func (f *fakeSink) SendResult(r hwlink.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r)
	return nil
}

func (f *fakeSink) results() []hwlink.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hwlink.Result(nil), f.sent...)
}

type harness struct {
	cfg      *config.Store
	frames   *fakeFrames
	ocr      *fakeRecognizer
	parts    fakeParts
	readings *fakeReadings
	seq      *sequence.Sequencer
	printer  *fakePrinter
	sink     *fakeSink
	dataDir  string
}

var clock = func() time.Time { return time.Date(2025, 2, 10, 9, 0, 0, 0, time.Local) }

func validSet() reading.Set {
	return reading.Set{
		reading.AngleLeft:   reading.Of(12.5, 0.92),
		reading.WeightLeft:  reading.Of(3.1, 0.95),
		reading.AngleRight:  reading.Of(-7.46, 0.88),
		reading.WeightRight: reading.Of(0.25, 0.9),
	}
}

// newHarness builds a station whose serial state is at 41 for February 2025
// with part A7 remembered, so the next label is wantPayload.
func newHarness(t *testing.T, edit func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.DataDir = dir
	cfg.Confirm.Timeout = 2 * time.Second
	if edit != nil {
		edit(&cfg)
	}

	statePath := filepath.Join(dir, "serial_state.json")
	if err := os.WriteFile(statePath, []byte(`{"month":"0225","serial":41,"last_part":"A7"}`), 0644); err != nil {
		t.Fatal(err)
	}

	return &harness{
		cfg:    config.NewStore(cfg),
		frames: &fakeFrames{frame: camera.Frame{Gray: image.NewGray(image.Rect(0, 0, 640, 640)), CapturedAt: clock()}, ok: true},
		ocr:    &fakeRecognizer{set: validSet()},
		parts: fakeParts{
			"A7": {Code: "A7", Name: "Rotor A7", Limits: map[reading.Slot]reading.Bounds{
				reading.WeightLeft:  {Min: reading.Float(0), Max: reading.Float(4.5)},
				reading.WeightRight: {Min: reading.Float(0), Max: reading.Float(4.5)},
			}},
			"B2": {Code: "B2", Name: "Rotor B2"},
		},
		readings: &fakeReadings{},
		seq:      sequence.New(statePath, sequence.WithClock(clock)),
		printer:  &fakePrinter{result: label.Result{Printed: true, Queue: "TSC TE210", ImagePath: filepath.Join(dir, "qr.png")}},
		sink:     &fakeSink{},
		dataDir:  dir,
	}
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(h.cfg, Deps{
		Frames:     h.frames,
		Recognizer: h.ocr,
		Parts:      h.parts,
		Readings:   h.readings,
		Sequencer:  h.seq,
		Printer:    h.printer,
		Sink:       h.sink,
	}, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func runCycle(t *testing.T, o *Orchestrator) Result {
	t.Helper()
	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	return res
}

func assertSent(t *testing.T, sink *fakeSink, want ...hwlink.Result) {
	t.Helper()
	if got := sink.results(); !slices.Equal(got, want) {
		t.Errorf("sent: got %v, want %v", got, want)
	}
}

func assertSerial(t *testing.T, seq *sequence.Sequencer, want int) {
	t.Helper()
	if got := seq.State().Serial; got != want {
		t.Errorf("stored serial: got %d, want %d", got, want)
	}
}

func TestCycle_NoFrame(t *testing.T) {
	h := newHarness(t, nil)
	h.frames.ok = false
	o := h.orchestrator(t)

	res := runCycle(t, o)
	if res.Outcome != NoFrame {
		t.Fatalf("outcome: got %v, want NoFrame", res.Outcome)
	}
	assertSent(t, h.sink, hwlink.NoFrame)
	assertSerial(t, h.seq, 41)
	if h.ocr.callCount() != 0 {
		t.Error("recognizer should not run without a frame")
	}
	if len(h.readings.saved()) != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestCycle_Committed(t *testing.T) {
	h := newHarness(t, nil)
	var o *Orchestrator
	var states []State
	var mu sync.Mutex
	o = h.orchestrator(t, WithObserver(func(ev Event) {
		mu.Lock()
		states = append(states, ev.State)
		mu.Unlock()
		if ev.State == AwaitingScan {
			o.Feed(strings.ToLower(wantPayload) + "\r\n")
		}
	}))

	res := runCycle(t, o)
	if res.Outcome != Committed {
		t.Fatalf("outcome: got %v (%v), want Committed", res.Outcome, res.Reasons)
	}
	if res.Payload != wantPayload {
		t.Errorf("payload: got %q, want %q", res.Payload, wantPayload)
	}
	assertSent(t, h.sink, hwlink.Pass)
	assertSerial(t, h.seq, 42)
	if res.Scan != "matched" || res.Signal != "PASS" {
		t.Errorf("scan %q signal %q", res.Scan, res.Signal)
	}

	recs := h.readings.saved()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if r := recs[0]; r.Serial != "00042" || r.PartCode != "A7" || r.PartName != "Rotor A7" || !r.Valid || r.CycleID != res.CycleID {
		t.Errorf("record: %+v", r)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{Capturing, Extracting, Validating, Printing, AwaitingScan, Idle}
	if !slices.Equal(states, want) {
		t.Errorf("states: got %v, want %v", states, want)
	}
	if st := o.Status(); st.State != Idle || st.Busy || st.Last == nil || st.Last.CycleID != res.CycleID {
		t.Errorf("status after cycle: %+v", st)
	}
}

func TestCycle_PayloadIdentity(t *testing.T) {
	h := newHarness(t, nil)
	var o *Orchestrator
	var expected string
	o = h.orchestrator(t, WithObserver(func(ev Event) {
		if ev.State == AwaitingScan {
			expected = o.Status().ExpectedScan
			o.Feed(expected)
		}
	}))

	res := runCycle(t, o)
	labels := h.printer.printed()
	if len(labels) != 1 {
		t.Fatalf("printed %d labels, want 1", len(labels))
	}
	l := labels[0]
	for name, got := range map[string]string{
		"label":  l.Payload,
		"qr":     l.QR.Content,
		"scan":   expected,
		"result": res.Payload,
		"record": h.readings.saved()[0].Payload,
	} {
		if got != wantPayload {
			t.Errorf("%s payload: got %q, want %q", name, got, wantPayload)
		}
	}
	if strings.Count(l.ZPL, wantPayload) != 1 {
		t.Errorf("ZPL should carry the payload once:\n%s", l.ZPL)
	}
}

func TestCycle_InvalidReading(t *testing.T) {
	h := newHarness(t, nil)
	h.ocr.set[reading.WeightLeft] = reading.Of(5.2, 0.95)
	o := h.orchestrator(t)

	res := runCycle(t, o)
	if res.Outcome != Invalid {
		t.Fatalf("outcome: got %v, want Invalid", res.Outcome)
	}
	if !slices.Contains(res.Reasons, "weight1 too high") {
		t.Errorf("reasons: got %v", res.Reasons)
	}
	assertSent(t, h.sink, hwlink.Fail)
	assertSerial(t, h.seq, 41)
	if len(h.printer.printed()) != 0 {
		t.Error("invalid reading must not be printed")
	}
	if len(h.readings.saved()) != 0 {
		t.Error("invalid reading must not be persisted")
	}

	for _, name := range []string{FrameArtifact, OverlayArtifact} {
		if _, err := os.Stat(filepath.Join(h.dataDir, name)); err != nil {
			t.Errorf("artifact %s not saved: %v", name, err)
		}
	}
}

func TestCycle_MissingSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.ocr.set[reading.AngleRight] = reading.Missing(0.3)
	o := h.orchestrator(t)

	res := runCycle(t, o)
	if res.Outcome != Invalid || !slices.Contains(res.Reasons, "angle2 missing") {
		t.Errorf("got %v %v", res.Outcome, res.Reasons)
	}
	assertSent(t, h.sink, hwlink.Fail)
}

func TestCycle_ScanTimeout(t *testing.T) {
	tests := []struct {
		name        string
		onScanFail  string
		wantSignals []hwlink.Result
	}{
		{"send nothing", config.ScanFailureNone, nil},
		{"send fail", config.ScanFailureFail, []hwlink.Result{hwlink.Fail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *config.Config) {
				c.Confirm.Timeout = 50 * time.Millisecond
				c.Confirm.ScanFailureResult = tt.onScanFail
			})
			o := h.orchestrator(t)

			res := runCycle(t, o)
			if res.Outcome != ScanFailed || res.Scan != "timed_out" {
				t.Fatalf("got %v scan %q, want ScanFailed timed_out", res.Outcome, res.Scan)
			}
			assertSent(t, h.sink, tt.wantSignals...)
			assertSerial(t, h.seq, 41)
			if len(h.readings.saved()) != 0 {
				t.Error("unconfirmed reading must not be persisted")
			}
			if _, open := o.Feed(wantPayload); open {
				t.Error("gate left open after the cycle ended")
			}
		})
	}
}

func TestCycle_ScanMismatch(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		inputs []string
		want   Outcome
	}{
		{"abort", config.MismatchAbort, []string{"00041A7;1;2;3;4\n"}, ScanFailed},
		{"retry", config.MismatchRetry, []string{"00041A7;1;2;3;4\n", wantPayload}, Committed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *config.Config) {
				c.Confirm.MismatchPolicy = tt.policy
				c.Confirm.Timeout = 500 * time.Millisecond
			})
			var o *Orchestrator
			o = h.orchestrator(t, WithObserver(func(ev Event) {
				if ev.State == AwaitingScan {
					for _, in := range tt.inputs {
						o.Feed(in)
					}
				}
			}))
			if res := runCycle(t, o); res.Outcome != tt.want {
				t.Errorf("got %v (%s), want %v", res.Outcome, res.Scan, tt.want)
			}
		})
	}
}

func TestCycle_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"no part selected", func(h *harness) {
			os.Remove(filepath.Join(h.dataDir, "serial_state.json"))
		}},
		{"unknown part", func(h *harness) {
			h.seq.RememberPart("Z9")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.setup(h)
			o := h.orchestrator(t)

			res := runCycle(t, o)
			if res.Outcome != Invalid {
				t.Fatalf("outcome: got %v, want Invalid", res.Outcome)
			}
			if len(res.Reasons) != 1 || !strings.HasPrefix(res.Reasons[0], "configuration:") {
				t.Errorf("reasons: got %v", res.Reasons)
			}
			if res.Validation != nil {
				t.Error("no validation should run without limits")
			}
			assertSent(t, h.sink, hwlink.Fail)
		})
	}
}

func TestCycle_PrintFailure(t *testing.T) {
	tests := []struct {
		name            string
		requirePhysical bool
		result          label.Result
		want            Outcome
	}{
		{"archive only", true, label.Result{ImagePath: "qr.png", Err: errors.New("queue offline")}, PrintFailed},
		{"nothing produced", false, label.Result{Err: errors.New("disk full")}, PrintFailed},
		{"archive only, best effort", false, label.Result{ImagePath: "qr.png", Err: errors.New("queue offline")}, Committed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *config.Config) {
				c.Printer.RequirePhysical = tt.requirePhysical
			})
			h.printer.result = tt.result
			var o *Orchestrator
			o = h.orchestrator(t, WithObserver(func(ev Event) {
				if ev.State == AwaitingScan {
					o.Feed(wantPayload)
				}
			}))

			res := runCycle(t, o)
			if res.Outcome != tt.want {
				t.Fatalf("outcome: got %v (%v), want %v", res.Outcome, res.Reasons, tt.want)
			}
			if tt.want == PrintFailed {
				assertSent(t, h.sink, hwlink.Fail)
				assertSerial(t, h.seq, 41)
			}
		})
	}
}

func TestCycle_PersistFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.readings.err = errors.New("connection reset")
	o := h.orchestrator(t)
	o.Observe(func(ev Event) {
		if ev.State == AwaitingScan {
			o.Feed(wantPayload)
		}
	})

	res := runCycle(t, o)
	if res.Outcome != PersistFailed {
		t.Fatalf("outcome: got %v, want PersistFailed", res.Outcome)
	}
	assertSent(t, h.sink, hwlink.Fail)
	assertSerial(t, h.seq, 42)
}

func TestCycle_NoController(t *testing.T) {
	h := newHarness(t, nil)
	h.frames.ok = false
	o, err := New(h.cfg, Deps{
		Frames:     h.frames,
		Recognizer: h.ocr,
		Parts:      h.parts,
		Readings:   h.readings,
		Sequencer:  h.seq,
		Printer:    h.printer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res := runCycle(t, o); res.Outcome != NoFrame || res.Signal != "NO_FRAME" {
		t.Errorf("got %v signal %q", res.Outcome, res.Signal)
	}
}

func TestCycle_UsesSnapshotAtStart(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Confirm.Timeout = 20 * time.Millisecond
	})
	o := h.orchestrator(t)
	o.Observe(func(ev Event) {
		if ev.State == Extracting {
			h.cfg.Update(func(c *config.Config) error {
				c.OCR.ConfidenceThreshold = 0.9
				return nil
			})
		}
	})

	threshold := func() float64 {
		h.ocr.mu.Lock()
		defer h.ocr.mu.Unlock()
		return h.ocr.settings.Threshold
	}

	first := runCycle(t, o)
	if first.ConfigVersion != 1 || threshold() != 0.5 {
		t.Errorf("first cycle: version %d threshold %v, want 1 and 0.5", first.ConfigVersion, threshold())
	}
	second := runCycle(t, o)
	if second.ConfigVersion != 2 || threshold() != 0.9 {
		t.Errorf("second cycle: version %d threshold %v, want 2 and 0.9", second.ConfigVersion, threshold())
	}
}

func TestOrchestrator_OneCycleAtATime(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Confirm.Timeout = 5 * time.Second
	})
	o := h.orchestrator(t)
	waiting := make(chan struct{})
	var once sync.Once
	o.Observe(func(ev Event) {
		if ev.State == AwaitingScan {
			once.Do(func() { close(waiting) })
		}
	})

	if !o.Trigger(context.Background()) {
		t.Fatal("first trigger refused")
	}
	select {
	case <-waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle never reached the scan prompt")
	}

	if o.Trigger(context.Background()) {
		t.Error("trigger accepted while busy")
	}
	if _, err := o.RunCycle(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("RunCycle while busy: got %v", err)
	}
	if st := o.Status(); !st.Busy || st.State != AwaitingScan || st.ExpectedScan != wantPayload {
		t.Errorf("status while waiting: %+v", st)
	}

	if !o.CancelScan() {
		t.Fatal("no scan to cancel")
	}
	o.Wait()
	last := o.Status().Last
	if last == nil || last.Outcome != ScanFailed || last.Scan != "cancelled" {
		t.Fatalf("last result: %+v", last)
	}
	if o.CancelScan() {
		t.Error("CancelScan with nothing open should report false")
	}
	if len(h.printer.printed()) != 1 {
		t.Errorf("printed %d labels, want 1", len(h.printer.printed()))
	}
}

func TestOrchestrator_Run(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Confirm.Timeout = time.Minute
	})
	o := h.orchestrator(t)
	waiting := make(chan struct{}, 1)
	o.Observe(func(ev Event) {
		if ev.State == AwaitingScan {
			waiting <- struct{}{}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	triggers := make(chan struct{})
	done := make(chan struct{})
	go func() {
		o.Run(ctx, triggers)
		close(done)
	}()

	triggers <- struct{}{}
	select {
	case <-waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered cycle never reached the scan prompt")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if last := o.Status().Last; last == nil || last.Scan != "cancelled" {
		t.Errorf("last result: %+v", last)
	}
	assertSerial(t, h.seq, 41)
}

func TestOrchestrator_SelectPart(t *testing.T) {
	h := newHarness(t, nil)
	o := h.orchestrator(t)
	if o.Part() != "A7" {
		t.Errorf("resumed part: got %q, want A7", o.Part())
	}

	if _, err := o.SelectPart(context.Background(), "Z9"); !errors.Is(err, store.ErrPartNotFound) {
		t.Errorf("unknown part: got %v", err)
	}
	if _, err := o.SelectPart(context.Background(), " "); err == nil {
		t.Error("blank part should be rejected")
	}
	if o.Part() != "A7" {
		t.Error("failed selection changed the part")
	}

	p, err := o.SelectPart(context.Background(), "B2")
	if err != nil {
		t.Fatalf("SelectPart failed: %v", err)
	}
	if p.Name != "Rotor B2" || o.Part() != "B2" || h.seq.LastPart() != "B2" {
		t.Errorf("selection not applied: %q %q %q", p.Name, o.Part(), h.seq.LastPart())
	}

	again := h.orchestrator(t)
	if again.Part() != "B2" {
		t.Errorf("restart resumed %q, want B2", again.Part())
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := New(nil, Deps{}); err == nil {
		t.Error("nil config store accepted")
	}
	if _, err := New(h.cfg, Deps{Frames: h.frames}); err == nil {
		t.Error("missing collaborators accepted")
	}
}

func TestMarks(t *testing.T) {
	h := newHarness(t, nil)
	cfg := h.cfg.Current().Config
	regions := cfg.RegionSpecs()

	set := validSet()
	set[reading.WeightLeft] = reading.Of(5.2, 0.95)
	set[reading.AngleRight] = reading.Missing(0.1)
	set[reading.WeightRight] = reading.Of(0.25, 0.55)
	limits := h.parts["A7"]
	v := reading.Validate(set, &limits, []reading.Slot{reading.WeightLeft, reading.WeightRight})

	got := marks(regions, set, &v)
	want := map[reading.Slot]imaging.MarkStatus{
		reading.AngleLeft:   imaging.MarkUnchecked,
		reading.WeightLeft:  imaging.MarkOutOfLimits,
		reading.AngleRight:  imaging.MarkMissing,
		reading.WeightRight: imaging.MarkLowConfidence,
	}
	for _, m := range got {
		if w := want[reading.Slot(m.Spec.Name)]; m.Status != w {
			t.Errorf("%s: got status %v, want %v", m.Spec.Name, m.Status, w)
		}
	}
	if got[1].Text != "5.200" || got[2].Text != "N/A" {
		t.Errorf("texts: %q %q", got[1].Text, got[2].Text)
	}

	for _, m := range marks(regions, validSet(), nil) {
		if m.Status != imaging.MarkUnchecked {
			t.Errorf("%s without validation: got %v", m.Spec.Name, m.Status)
		}
	}
}

func TestStateAndOutcomeNames(t *testing.T) {
	if AwaitingScan.String() != "awaiting_scan" || PersistFailed.String() != "persist_failed" {
		t.Error("unexpected names")
	}
	b, _ := NoFrame.MarshalText()
	if string(b) != "no_frame" {
		t.Errorf("MarshalText: %s", b)
	}
}
