package reading

import (
	"reflect"
	"testing"
)

func testPart() *PartLimits {
	return &PartLimits{
		Code: "TEST001",
		Name: "Test Part",
		Limits: map[Slot]Bounds{
			AngleLeft:   {Min: Float(5.0), Max: Float(15.0)},
			WeightLeft:  {Min: Float(2.5), Max: Float(4.5)},
			AngleRight:  {Min: Float(5.0), Max: Float(15.0)},
			WeightRight: {Min: Float(2.5), Max: Float(4.5)},
		},
	}
}

func fullSet(a1, w1, a2, w2 float64) Set {
	return Set{
		AngleLeft:   Of(a1, 0.9),
		WeightLeft:  Of(w1, 0.9),
		AngleRight:  Of(a2, 0.9),
		WeightRight: Of(w2, 0.9),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		set          Set
		wantValid    bool
		wantFailures []string
	}{
		{"all within limits", fullSet(10, 3, 10, 3.5), true, []string{}},
		{"angle1 too low", fullSet(3, 3, 10, 3.5), false, []string{"angle1 too low"}},
		{"weight1 too high", fullSet(10, 5.2, 10, 3.5), false, []string{"weight1 too high"}},
		{"on the bounds", fullSet(5, 2.5, 15, 4.5), true, []string{}},
		{"two failures", fullSet(16, 3, 10, 2.0), false, []string{"angle1 too high", "weight2 too low"}},
		{
			"missing slot",
			Set{AngleLeft: Of(10, 0.9), WeightLeft: Missing(0.3), AngleRight: Of(10, 0.9), WeightRight: Of(3, 0.9)},
			false,
			[]string{"weight1 missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.set, testPart(), nil)
			if got.Valid != tt.wantValid {
				t.Errorf("Valid: got %v, want %v", got.Valid, tt.wantValid)
			}
			if !reflect.DeepEqual(got.Failures, tt.wantFailures) {
				t.Errorf("Failures: got %v, want %v", got.Failures, tt.wantFailures)
			}
		})
	}
}

func TestValidate_UnboundedSides(t *testing.T) {
	part := &PartLimits{
		Code: "P1",
		Limits: map[Slot]Bounds{
			WeightLeft: {Max: Float(1.0)},
		},
	}

	got := Validate(fullSet(-400, 0.5, 999, -3), part, nil)
	if !got.Valid {
		t.Errorf("expected valid with only weight1 max set, got failures %v", got.Failures)
	}
}

func TestValidate_InvertedBoundsTripBoth(t *testing.T) {
	part := &PartLimits{
		Code:   "P1",
		Limits: map[Slot]Bounds{AngleLeft: {Min: Float(10), Max: Float(5)}},
	}

	got := Validate(fullSet(7, 1, 1, 1), part, nil)
	res := got.Slots[AngleLeft]
	if len(res.Violations) != 2 {
		t.Errorf("Violations: got %v, want both bounds", res.Violations)
	}
}

func TestValidate_WeightOnlySubset(t *testing.T) {
	checked := []Slot{WeightLeft, WeightRight}

	// Angles far outside their limits are reported but not validated.
	got := Validate(fullSet(100, 3, -100, 3), testPart(), checked)
	if !got.Valid {
		t.Fatalf("expected valid, got failures %v", got.Failures)
	}

	angle := got.Slots[AngleLeft]
	if angle.Checked {
		t.Error("angle1 should not be checked")
	}
	if angle.OK() {
		t.Error("unchecked slot must not report OK")
	}
	if !got.Slots[WeightLeft].OK() {
		t.Error("weight1 should be OK")
	}
}

func TestValidate_SubsetStillRequiresAllValues(t *testing.T) {
	set := fullSet(10, 3, 10, 3)
	set[AngleRight] = Missing(0.2)

	got := Validate(set, testPart(), []Slot{WeightLeft, WeightRight})
	if got.Valid {
		t.Fatal("missing angle2 should invalidate the reading")
	}
	if len(got.Missing) != 1 || got.Missing[0] != AngleRight {
		t.Errorf("Missing: got %v, want [angle2]", got.Missing)
	}
}

func TestValidate_NilPart(t *testing.T) {
	got := Validate(fullSet(1, 2, 3, 4), nil, nil)
	if !got.Valid {
		t.Errorf("nil limits should mean unbounded, got %v", got.Failures)
	}
}

func TestValidate_Pure(t *testing.T) {
	set := fullSet(3, 5.2, 10, 3.5)
	part := testPart()

	first := Validate(set, part, nil)
	for i := 0; i < 5; i++ {
		again := Validate(set, part, nil)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestValidation_Note(t *testing.T) {
	set := fullSet(10, 5.2, 10, 3)
	set[AngleLeft] = Missing(0)

	got := Validate(set, testPart(), nil).Note()
	want := "Missing: angle1; Limits: weight1 too high"
	if got != want {
		t.Errorf("Note: got %q, want %q", got, want)
	}

	if note := Validate(fullSet(10, 3, 10, 3), testPart(), nil).Note(); note != "" {
		t.Errorf("valid Note: got %q, want empty", note)
	}
}

func TestValidation_Details(t *testing.T) {
	got := Validate(fullSet(10, 5.2, 10, 3), testPart(), nil)
	want := []string{"Weight L: 5.200 > 4.5"}
	if !reflect.DeepEqual(got.Details, want) {
		t.Errorf("Details: got %v, want %v", got.Details, want)
	}
}
