package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/balance-station/internal/reading"
)

func TestPartColumns(t *testing.T) {
	want := []string{
		"angle1_min", "angle1_max", "weight1_min", "weight1_max",
		"angle2_min", "angle2_max", "weight2_min", "weight2_max",
	}
	if strings.Join(partColumns, ",") != strings.Join(want, ",") {
		t.Errorf("columns: got %v", partColumns)
	}
	if !strings.HasPrefix(selectParts, "SELECT code, name, angle1_min") {
		t.Errorf("select: got %q", selectParts)
	}
}

func TestBoundArgs(t *testing.T) {
	p := &reading.PartLimits{
		Code: "A7",
		Limits: map[reading.Slot]reading.Bounds{
			reading.WeightLeft: {Max: reading.Float(4.5)},
		},
	}
	args := boundArgs(p)
	if len(args) != len(partColumns) {
		t.Fatalf("got %d args, want %d", len(args), len(partColumns))
	}
	for i, a := range args {
		v := a.(*float64)
		if i == 3 {
			if v == nil || *v != 4.5 {
				t.Errorf("weight1_max: got %v", v)
			}
			continue
		}
		if v != nil {
			t.Errorf("arg %d (%s): got %v, want NULL", i, partColumns[i], *v)
		}
	}

	if got := boundArgs(nil); len(got) != len(partColumns) {
		t.Errorf("nil part: got %d args", len(got))
	}
}

// TestStoreIntegration runs against a real database. Set
// BALANCE_TEST_DATABASE_URL to a disposable database to enable it.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("BALANCE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BALANCE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer s.Close(context.Background())

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := initSchema(ctx, s.conn); err != nil {
		t.Fatalf("Failed to recreate schema: %v", err)
	}

	t.Run("parts", func(t *testing.T) {
		part := reading.PartLimits{
			Code: "A7",
			Name: "Rotor A7",
			Limits: map[reading.Slot]reading.Bounds{
				reading.WeightLeft:  {Max: reading.Float(4.5)},
				reading.WeightRight: {Min: reading.Float(0.1), Max: reading.Float(4.5)},
			},
		}
		if err := s.UpsertPart(ctx, part); err != nil {
			t.Fatalf("UpsertPart failed: %v", err)
		}

		got, err := s.GetPart(ctx, "A7")
		if err != nil {
			t.Fatalf("GetPart failed: %v", err)
		}
		if got.Name != "Rotor A7" {
			t.Errorf("name: got %q", got.Name)
		}
		if b := got.Bound(reading.WeightLeft); b.Min != nil || b.Max == nil || *b.Max != 4.5 {
			t.Errorf("weight1 bounds: got %+v", b)
		}
		if b := got.Bound(reading.AngleLeft); b.Min != nil || b.Max != nil {
			t.Errorf("angle1 should be unbounded, got %+v", b)
		}

		part.Name = "Rotor A7 rev B"
		if err := s.UpsertPart(ctx, part); err != nil {
			t.Fatalf("second UpsertPart failed: %v", err)
		}
		parts, err := s.ListParts(ctx)
		if err != nil {
			t.Fatalf("ListParts failed: %v", err)
		}
		if len(parts) != 1 || parts[0].Name != "Rotor A7 rev B" {
			t.Errorf("parts: got %+v", parts)
		}

		if err := s.UpsertPart(ctx, reading.PartLimits{Code: "  "}); err == nil {
			t.Error("blank code should be rejected")
		}

		if err := s.DeletePart(ctx, "A7"); err != nil {
			t.Fatalf("DeletePart failed: %v", err)
		}
		if _, err := s.GetPart(ctx, "A7"); !errors.Is(err, ErrPartNotFound) {
			t.Errorf("GetPart after delete: got %v", err)
		}
		if err := s.DeletePart(ctx, "A7"); !errors.Is(err, ErrPartNotFound) {
			t.Errorf("second DeletePart: got %v", err)
		}
	})

	t.Run("readings", func(t *testing.T) {
		set := reading.Set{
			reading.AngleLeft:   reading.Of(12.5, 0.9),
			reading.WeightLeft:  reading.Of(3.1, 0.9),
			reading.AngleRight:  reading.Missing(0.2),
			reading.WeightRight: reading.Of(0.25, 0.9),
		}
		base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
		for i, serial := range []string{"00001", "00002"} {
			_, err := s.SaveReading(ctx, Record{
				Timestamp: base.Add(time.Duration(i) * time.Second),
				CycleID:   "cycle-" + serial,
				PartCode:  "A7",
				PartName:  "Rotor A7",
				Serial:    serial,
				Payload:   serial + "A7;12.50;3.100;N/A;0.250",
				Values:    set,
				Valid:     true,
			})
			if err != nil {
				t.Fatalf("SaveReading failed: %v", err)
			}
		}

		recs, err := s.RecentReadings(ctx, 10)
		if err != nil {
			t.Fatalf("RecentReadings failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("got %d readings, want 2", len(recs))
		}
		if recs[0].Serial != "00002" {
			t.Errorf("newest first: got %s", recs[0].Serial)
		}
		if v := recs[0].Values.Value(reading.WeightLeft); v == nil || *v != 3.1 {
			t.Errorf("weight1: got %v", v)
		}
		if recs[0].Values.Value(reading.AngleRight) != nil {
			t.Error("angle2 should be NULL")
		}

		one, err := s.RecentReadings(ctx, 1)
		if err != nil || len(one) != 1 {
			t.Errorf("limit 1: got %d, %v", len(one), err)
		}
	})
}
