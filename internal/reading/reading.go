package reading

import (
	"fmt"
	"strings"
)

// Slot names one of the four measurements shown on the balance display.
type Slot string

const (
	AngleLeft   Slot = "angle1"
	WeightLeft  Slot = "weight1"
	AngleRight  Slot = "angle2"
	WeightRight Slot = "weight2"
)

// Slots lists every slot in label order: left angle, left weight, right angle, right weight.
var Slots = []Slot{AngleLeft, WeightLeft, AngleRight, WeightRight}

// ParseSlot accepts either the storage key ("weight1") or the camel-case
// name used in machine files ("weightLeft").
func ParseSlot(name string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "angle1", "angleleft":
		return AngleLeft, nil
	case "weight1", "weightleft":
		return WeightLeft, nil
	case "angle2", "angleright":
		return AngleRight, nil
	case "weight2", "weightright":
		return WeightRight, nil
	}
	return "", fmt.Errorf("unknown slot %q", name)
}

// IsWeight reports whether the slot carries a correction weight.
func (s Slot) IsWeight() bool {
	return s == WeightLeft || s == WeightRight
}

// Label returns the operator-facing name, e.g. "Weight L".
func (s Slot) Label() string {
	switch s {
	case AngleLeft:
		return "Angle L"
	case WeightLeft:
		return "Weight L"
	case AngleRight:
		return "Angle R"
	case WeightRight:
		return "Weight R"
	}
	return string(s)
}

// Format renders a value with the slot's fixed precision: angles use two
// decimals, weights three. A nil value renders as "N/A".
func (s Slot) Format(v *float64) string {
	if v == nil {
		return "N/A"
	}
	if s.IsWeight() {
		return fmt.Sprintf("%.3f", *v)
	}
	return fmt.Sprintf("%.2f", *v)
}

// Reading is one recognized measurement. Value is nil when nothing usable
// was read; Confidence is still reported so callers can tell a low-confidence
// read from an empty one.
type Reading struct {
	Value      *float64 `json:"value"`
	Confidence float64  `json:"confidence"`
}

// Of builds a present reading.
func Of(v, confidence float64) Reading {
	return Reading{Value: &v, Confidence: confidence}
}

// Missing builds an absent reading with the given confidence.
func Missing(confidence float64) Reading {
	return Reading{Confidence: confidence}
}

// Present reports whether the reading carries a value.
func (r Reading) Present() bool {
	return r.Value != nil
}

// Set holds the four readings of one capture keyed by slot.
type Set map[Slot]Reading

// EmptySet returns a set with every slot missing at zero confidence.
func EmptySet() Set {
	s := make(Set, len(Slots))
	for _, slot := range Slots {
		s[slot] = Missing(0)
	}
	return s
}

// Complete reports whether all four slots have a value.
func (s Set) Complete() bool {
	for _, slot := range Slots {
		if !s[slot].Present() {
			return false
		}
	}
	return true
}

// Value returns the slot's value, or nil.
func (s Set) Value(slot Slot) *float64 {
	return s[slot].Value
}

// Bounds is an optional [Min, Max] range; a nil side is unbounded.
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// PartLimits is the tolerance record of one part, keyed by its unique code.
type PartLimits struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Limits map[Slot]Bounds `json:"limits"`
}

// Bound returns the bounds for a slot, unbounded if none are configured.
func (p *PartLimits) Bound(slot Slot) Bounds {
	if p == nil || p.Limits == nil {
		return Bounds{}
	}
	return p.Limits[slot]
}

// Float is a convenience for building optional bounds and values.
func Float(v float64) *float64 {
	return &v
}
