package capture

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/confirm"
	"github.com/ironsheep/balance-station/internal/logging"
	"github.com/ironsheep/balance-station/internal/reading"
)

// Orchestrator owns the capture cycle.
type Orchestrator struct {
	cfg  *config.Store
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	state     State
	busy      bool
	cycleID   string
	part      string
	gate      *confirm.Gate
	last      *Result
	observers []Observer

	inflight sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now for cycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver registers an observer at construction.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// New creates an orchestrator. The part remembered by the sequencer, if
// any, becomes the selected part.
func New(cfg *config.Store, deps Deps, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("capture: configuration store is required")
	}
	if err := deps.check(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.part = deps.Sequencer.LastPart()
	if o.part != "" {
		log.Printf("capture: resuming part %s", o.part)
	}
	return o, nil
}

// Observe registers fn for every later event.
func (o *Orchestrator) Observe(fn Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// SelectPart makes code the active part after checking it exists, and
// remembers it across restarts.
func (o *Orchestrator) SelectPart(ctx context.Context, code string) (*reading.PartLimits, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("part code is required")
	}
	part, err := o.deps.Parts.GetPart(ctx, code)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.part = part.Code
	o.mu.Unlock()

	if err := o.deps.Sequencer.RememberPart(part.Code); err != nil {
		log.Printf("capture: failed to remember part %s: %v", part.Code, err)
	}
	log.Printf("capture: selected part %s (%s)", part.Code, part.Name)
	return part, nil
}

// Part returns the selected part code, or "".
func (o *Orchestrator) Part() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.part
}

// Status is a point-in-time view for the operator surface.
type Status struct {
	State         State   `json:"state"`
	Busy          bool    `json:"busy"`
	CycleID       string  `json:"cycle_id,omitempty"`
	Part          string  `json:"part,omitempty"`
	ExpectedScan  string  `json:"expected_scan,omitempty"`
	ConfigVersion uint64  `json:"config_version"`
	Last          *Result `json:"last,omitempty"`
}

// Status reports the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:         o.state,
		Busy:          o.busy,
		CycleID:       o.cycleID,
		Part:          o.part,
		ConfigVersion: o.cfg.Current().Version,
		Last:          o.last,
	}
	if o.gate != nil {
		st.ExpectedScan = o.gate.Expected()
	}
	return st
}

// Trigger starts a cycle in the background and returns true, or returns
// false if one is already running.
func (o *Orchestrator) Trigger(ctx context.Context) bool {
	if !o.claim() {
		log.Printf("capture: trigger ignored, cycle in progress")
		return false
	}
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.cycle(ctx)
	}()
	return true
}

// RunCycle runs one cycle to completion on the calling goroutine. It
// returns ErrBusy without doing anything while another cycle is in flight.
func (o *Orchestrator) RunCycle(ctx context.Context) (Result, error) {
	if !o.claim() {
		return Result{}, ErrBusy
	}
	o.inflight.Add(1)
	defer o.inflight.Done()
	return o.cycle(ctx), nil
}

// Run starts a cycle for every value on triggers until ctx is done, then
// waits for the cycle in flight to end. A cancelled ctx also cancels an
// open scan confirmation.
func (o *Orchestrator) Run(ctx context.Context, triggers <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			o.Wait()
			return
		case _, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			o.Trigger(ctx)
		}
	}
}

// Wait blocks until no cycle is running.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Feed routes scanner input to the open confirmation. It returns false
// when no cycle is waiting for a scan.
func (o *Orchestrator) Feed(text string) (confirm.Outcome, bool) {
	o.mu.Lock()
	gate := o.gate
	o.mu.Unlock()
	if gate == nil {
		logging.Debugf("capture: scan input %q with no label waiting", text)
		return confirm.Waiting, false
	}
	outcome := gate.Feed(text)
	logging.Debugf("capture: scan input %q, gate %s", text, outcome)
	return outcome, true
}

// CancelScan closes the open confirmation as cancelled. It returns false
// when none is open.
func (o *Orchestrator) CancelScan() bool {
	o.mu.Lock()
	gate := o.gate
	o.mu.Unlock()
	if gate == nil {
		return false
	}
	gate.Cancel()
	return true
}

func (o *Orchestrator) claim() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	return true
}

// setState records st and notifies observers outside the lock.
func (o *Orchestrator) setState(id string, st State) {
	o.mu.Lock()
	o.state = st
	o.cycleID = id
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	logging.Debugf("capture %s: %s", short(id), st)
	o.notify(observers, Event{CycleID: id, State: st})
}

func (o *Orchestrator) openGate(g *confirm.Gate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = g
}

// closeGate detaches g and makes sure it is no longer open.
func (o *Orchestrator) closeGate(g *confirm.Gate) {
	g.Cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gate == g {
		o.gate = nil
	}
}

// release returns the orchestrator to Idle with res as the last result.
func (o *Orchestrator) release(res *Result) {
	o.mu.Lock()
	o.state = Idle
	o.cycleID = ""
	o.busy = false
	o.last = res
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	o.notify(observers, Event{CycleID: res.CycleID, State: Idle, Result: res})
}

func (o *Orchestrator) notify(observers []Observer, ev Event) {
	for _, fn := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("capture: observer panicked: %v", p)
				}
			}()
			fn(ev)
		}()
	}
}
