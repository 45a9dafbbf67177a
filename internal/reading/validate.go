package reading

import (
	"fmt"
	"strings"
)

// SlotResult describes how one slot fared during validation.
type SlotResult struct {
	// Checked is false for slots outside the validated subset. Such slots
	// are still reported but are "not validated", which is not "valid".
	Checked bool `json:"checked"`

	// Missing is true when the slot has no value. Missing values fail the
	// reading whether or not the slot is checked against limits.
	Missing bool `json:"missing"`

	// Violations lists "too low" and/or "too high".
	Violations []string `json:"violations,omitempty"`
}

// OK reports whether the slot was checked and passed.
func (r SlotResult) OK() bool {
	return r.Checked && !r.Missing && len(r.Violations) == 0
}

// Validation is the outcome of comparing a reading set against part limits.
type Validation struct {
	Valid    bool                `json:"valid"`
	Failures []string            `json:"failures"`
	Missing  []Slot              `json:"missing,omitempty"`
	Details  []string            `json:"details,omitempty"`
	Slots    map[Slot]SlotResult `json:"slots"`
}

// Validate checks every slot for presence and every slot in checked against
// the part's bounds. A nil or empty checked list means all four slots.
//
// Failures use the slot storage key: "weight2 missing", "angle1 too low",
// "weight1 too high". Both bounds are tested independently. Validate has no
// side effects; identical inputs give identical results.
func Validate(set Set, limits *PartLimits, checked []Slot) Validation {
	if len(checked) == 0 {
		checked = Slots
	}
	inSubset := make(map[Slot]bool, len(checked))
	for _, s := range checked {
		inSubset[s] = true
	}

	v := Validation{
		Failures: []string{},
		Slots:    make(map[Slot]SlotResult, len(Slots)),
	}

	for _, slot := range Slots {
		res := SlotResult{Checked: inSubset[slot]}
		value := set[slot].Value
		if value == nil {
			res.Missing = true
			v.Missing = append(v.Missing, slot)
			v.Failures = append(v.Failures, fmt.Sprintf("%s missing", slot))
			v.Slots[slot] = res
			continue
		}
		if res.Checked {
			b := limits.Bound(slot)
			if b.Min != nil && *value < *b.Min {
				res.Violations = append(res.Violations, "too low")
				v.Failures = append(v.Failures, fmt.Sprintf("%s too low", slot))
				v.Details = append(v.Details, fmt.Sprintf("%s: %s < %g", slot.Label(), slot.Format(value), *b.Min))
			}
			if b.Max != nil && *value > *b.Max {
				res.Violations = append(res.Violations, "too high")
				v.Failures = append(v.Failures, fmt.Sprintf("%s too high", slot))
				v.Details = append(v.Details, fmt.Sprintf("%s: %s > %g", slot.Label(), slot.Format(value), *b.Max))
			}
		}
		v.Slots[slot] = res
	}

	v.Valid = len(v.Failures) == 0
	return v
}

// Note summarizes the failures the way they are stored alongside a reading,
// e.g. "Missing: angle1; Limits: weight1 too high". It is empty for a valid set.
func (v Validation) Note() string {
	var parts []string
	if len(v.Missing) > 0 {
		names := make([]string, len(v.Missing))
		for i, s := range v.Missing {
			names[i] = string(s)
		}
		parts = append(parts, "Missing: "+strings.Join(names, ", "))
	}
	var limits []string
	for _, f := range v.Failures {
		if !strings.HasSuffix(f, " missing") {
			limits = append(limits, f)
		}
	}
	if len(limits) > 0 {
		parts = append(parts, "Limits: "+strings.Join(limits, ", "))
	}
	return strings.Join(parts, "; ")
}
