// Package sequence issues the per-month label serial numbers.
//
// The counter lives in a small JSON file, {"month":"MMYY","serial":N,
// "last_part":"CODE"}, which is the single source of truth for numbering.
// Peek computes the next serial without writing and returns it as a Ticket;
// Commit, called once that label has been confirmed, stores the ticket as
// issued. The serial restarts at 1 whenever the month token changes.
//
// Durability is best effort. A missing or unreadable file starts a fresh
// month at zero; write failures are returned for the caller to log. A crash
// between printing and Commit can reuse a serial.
package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPart is used when neither a hint nor a remembered part exists.
const DefaultPart = "X"

// State is the persisted record.
type State struct {
	Month    string `json:"month"`
	Serial   int    `json:"serial"`
	LastPart string `json:"last_part"`
}

// Ticket is a serial reported by Peek. It carries the month it was issued
// in, so a label printed before midnight on the last day of a month is
// committed against that month.
type Ticket struct {
	Month  string
	Serial int
	Part   string
}

// Number returns the zero-padded serial printed on the label.
func (t Ticket) Number() string {
	return FormatSerial(t.Serial)
}

// MonthToken formats t as MMYY.
func MonthToken(t time.Time) string {
	return t.Format("0106")
}

// FormatSerial zero-pads n to five digits.
func FormatSerial(n int) string {
	return fmt.Sprintf("%05d", n)
}

// Sequencer guards the state file. Every read-modify-write holds one mutex.
type Sequencer struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// New creates a sequencer backed by the file at path.
func New(path string, opts ...Option) *Sequencer {
	s := &Sequencer{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Peek returns the serial the next committed label will carry and the part
// code to print with it. It never writes.
//
// The part is the trimmed, upper-cased hint; with no hint it is the last
// remembered part, and failing that DefaultPart.
func (s *Sequencer) Peek(hint string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	month := MonthToken(s.now())
	return Ticket{
		Month:  month,
		Serial: next(st, month),
		Part:   resolvePart(hint, st.LastPart),
	}
}

// Commit stores the ticket Peek reported and records its part as the last
// active part. The counter never moves backwards: a ticket at or below the
// stored serial of its month only updates the part.
func (s *Sequencer) Commit(t Ticket) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	if t.Month == "" {
		t.Month = MonthToken(s.now())
	}
	next := State{
		Month:    t.Month,
		Serial:   t.Serial,
		LastPart: resolvePart(t.Part, st.LastPart),
	}
	if st.Month == t.Month && st.Serial >= t.Serial {
		log.Printf("sequence: serial %s/%s already issued, keeping %s", t.Month, t.Number(), FormatSerial(st.Serial))
		next.Serial = st.Serial
	}
	err := s.save(next)
	return next, err
}

// RememberPart records the operator's part selection without touching the
// counter.
func (s *Sequencer) RememberPart(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	st.LastPart = resolvePart(code, st.LastPart)
	return s.save(st)
}

// LastPart returns the remembered part, or "" if none.
func (s *Sequencer) LastPart() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().LastPart
}

// State returns the stored record.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// next computes the serial following st in month.
func next(st State, month string) int {
	if st.Month != month {
		return 1
	}
	return st.Serial + 1
}

// load reads the state file, falling back to a fresh zeroed state for the
// current month.
func (s *Sequencer) load() State {
	fresh := State{Month: MonthToken(s.now())}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("sequence: cannot read %s, starting fresh: %v", s.path, err)
		}
		return fresh
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("sequence: corrupt state file %s, starting fresh: %v", s.path, err)
		return fresh
	}
	if st.Serial < 0 {
		st.Serial = 0
	}
	return st
}

// save writes st atomically: a temp file in the same directory renamed over
// the target.
func (s *Sequencer) save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode serial state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".serial_state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write serial state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write serial state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync serial state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write serial state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace serial state: %w", err)
	}
	return nil
}

func resolvePart(hint, last string) string {
	if p := strings.ToUpper(strings.TrimSpace(hint)); p != "" {
		return p
	}
	if last != "" {
		return last
	}
	return DefaultPart
}
