// Package confirm implements the operator scan-back step.
//
// A Gate is opened with the payload printed on a label. Scanner input is fed
// to it as text, a character or a line at a time, from whatever surface owns
// the scanner. After every change the accumulated input, trimmed and
// compared case-insensitively, is checked against the payload; a match
// closes the gate. A line terminator ends an attempt: a completed attempt
// that did not match is cleared and retried, or fails the gate, depending on
// the mismatch policy.
//
// The gate closes exactly once, as Matched, Mismatched, TimedOut or
// Cancelled. Input fed after that is ignored.
package confirm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Outcome is the state of a gate.
type Outcome int

const (
	Waiting Outcome = iota
	Matched
	Mismatched
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Waiting:
		return "waiting"
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Policy decides what a completed, non-matching attempt does.
type Policy int

const (
	// Retry clears the input and keeps waiting.
	Retry Policy = iota
	// Abort closes the gate as Mismatched.
	Abort
)

// ParsePolicy accepts "retry" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retry", "":
		return Retry, nil
	case "abort":
		return Abort, nil
	}
	return Retry, fmt.Errorf("unknown mismatch policy %q", s)
}

// Gate is one scan confirmation.
type Gate struct {
	expected string
	policy   Policy

	mu         sync.Mutex
	buf        strings.Builder
	outcome    Outcome
	mismatches []string
	done       chan struct{}
}

// NewGate opens a gate expecting payload.
func NewGate(payload string, policy Policy) *Gate {
	return &Gate{
		expected: strings.TrimSpace(payload),
		policy:   policy,
		done:     make(chan struct{}),
	}
}

// Expected returns the payload the gate waits for.
func (g *Gate) Expected() string {
	return g.expected
}

// Feed appends scanner input and returns the gate's state afterwards.
func (g *Gate) Feed(text string) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range text {
		if g.outcome != Waiting {
			break
		}
		if r == '\r' || r == '\n' {
			g.completeLocked()
			continue
		}
		g.buf.WriteRune(r)
		if g.matchesLocked() {
			g.finishLocked(Matched)
		}
	}
	return g.outcome
}

// completeLocked ends the current attempt at a line terminator.
func (g *Gate) completeLocked() {
	attempt := strings.TrimSpace(g.buf.String())
	g.buf.Reset()
	if attempt == "" {
		return
	}
	g.mismatches = append(g.mismatches, attempt)
	if g.policy == Abort {
		g.finishLocked(Mismatched)
	}
}

func (g *Gate) matchesLocked() bool {
	return strings.EqualFold(strings.TrimSpace(g.buf.String()), g.expected)
}

func (g *Gate) finishLocked(o Outcome) bool {
	if g.outcome != Waiting {
		return false
	}
	g.outcome = o
	close(g.done)
	return true
}

func (g *Gate) finish(o Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finishLocked(o)
}

// Wait blocks until the gate closes, timeout elapses or ctx is done, and
// returns the final outcome. A zero timeout waits without a deadline.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) Outcome {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-g.done:
	case <-expired:
		g.finish(TimedOut)
	case <-ctx.Done():
		g.finish(Cancelled)
	}
	return g.Outcome()
}

// Cancel closes an open gate as Cancelled. It is a no-op on a closed gate.
func (g *Gate) Cancel() {
	g.finish(Cancelled)
}

// Done is closed when the gate closes.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Outcome returns the current state.
func (g *Gate) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// Mismatches returns the completed attempts that did not match.
func (g *Gate) Mismatches() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.mismatches...)
}
