package confirm

import (
	"context"
	"testing"
	"time"
)

const payload = "00042A7;12.50;3.100;-7.46;0.250"

func TestGate_Feed(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		inputs []string
		want   Outcome
	}{
		{"exact line", Retry, []string{payload + "\r\n"}, Matched},
		{"no terminator needed", Retry, []string{payload}, Matched},
		{"case and spaces ignored", Retry, []string{"  00042a7;12.50;3.100;-7.46;0.250 "}, Matched},
		{"character by character", Retry, splitRunes(payload), Matched},
		{"prefix keeps waiting", Retry, []string{"00042A7;12.50"}, Waiting},
		{"retry after mismatch", Retry, []string{"00041A7;1;2;3;4\n", payload}, Matched},
		{"retry keeps waiting", Retry, []string{"garbage\r\n"}, Waiting},
		{"abort on mismatch", Abort, []string{"garbage\n", payload}, Mismatched},
		{"blank lines are not attempts", Abort, []string{"\r\n", "  \n", payload}, Matched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(payload, tt.policy)
			var got Outcome
			for _, in := range tt.inputs {
				got = g.Feed(in)
			}
			if got != tt.want {
				t.Errorf("outcome: got %v, want %v", got, tt.want)
			}
			if g.Outcome() != got {
				t.Errorf("Outcome() %v disagrees with Feed %v", g.Outcome(), got)
			}
		})
	}
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func TestGate_MismatchesRecorded(t *testing.T) {
	g := NewGate(payload, Retry)
	g.Feed("first\n")
	g.Feed("second\r")
	if got := g.Mismatches(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("mismatches: got %v", got)
	}
}

func TestGate_ClosedGateIgnoresInput(t *testing.T) {
	g := NewGate(payload, Abort)
	g.Feed("wrong\n")
	if got := g.Feed(payload); got != Mismatched {
		t.Errorf("got %v, want Mismatched to stick", got)
	}

	c := NewGate(payload, Retry)
	c.Cancel()
	if got := c.Feed(payload); got != Cancelled {
		t.Errorf("got %v, want Cancelled to stick", got)
	}
}

func TestGate_WaitMatched(t *testing.T) {
	g := NewGate(payload, Retry)
	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, r := range splitRunes(payload + "\r\n") {
			g.Feed(r)
		}
	}()
	if got := g.Wait(context.Background(), 2*time.Second); got != Matched {
		t.Errorf("got %v, want Matched", got)
	}
}

func TestGate_WaitTimeout(t *testing.T) {
	g := NewGate(payload, Retry)
	g.Feed("wrong\n")

	start := time.Now()
	if got := g.Wait(context.Background(), 30*time.Millisecond); got != TimedOut {
		t.Errorf("got %v, want TimedOut", got)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not honoured")
	}
	if got := g.Feed(payload); got != TimedOut {
		t.Errorf("late scan changed the outcome to %v", got)
	}
}

func TestGate_WaitCancelled(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		g := NewGate(payload, Retry)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		if got := g.Wait(ctx, time.Minute); got != Cancelled {
			t.Errorf("got %v, want Cancelled", got)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		g := NewGate(payload, Retry)
		go func() {
			time.Sleep(10 * time.Millisecond)
			g.Cancel()
		}()
		if got := g.Wait(context.Background(), time.Minute); got != Cancelled {
			t.Errorf("got %v, want Cancelled", got)
		}
		select {
		case <-g.Done():
		default:
			t.Error("Done not closed")
		}
		g.Cancel()
	})
}

func TestGate_AbortEndsWait(t *testing.T) {
	g := NewGate(payload, Abort)
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Feed("00042A7;12.50;3.100;-7.46;0.251\n")
	}()
	if got := g.Wait(context.Background(), time.Minute); got != Mismatched {
		t.Errorf("got %v, want Mismatched", got)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"retry", Retry, false},
		{"ABORT", Abort, false},
		{"", Retry, false},
		{"sometimes", Retry, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestOutcome_String(t *testing.T) {
	if Matched.String() != "matched" || TimedOut.String() != "timed_out" {
		t.Error("unexpected outcome names")
	}
}
