package domain

import "fmt"

// Metadata is the opaque diagnostics map attached to decisions, orders and
// reports. Values must be JSON-encodable.
type Metadata map[string]any

// Float reads a numeric value. Integers are widened.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case *float64:
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Bool reads a boolean value.
func (m Metadata) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// String reads a string value; other scalar types are formatted.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StrategyDecision is one strategy's read of a market for a tick.
type StrategyDecision struct {
	Bias       float64 // [-1,1]: negativo favorece NO, positivo YES
	Confidence float64 // [0,1]
	SizeHint   float64 // [0,1]
	Reason     string
	Metadata   Metadata
}

// Clamp devuelve la decisión con bias, confidence y size hint dentro de sus
// intervalos cerrados. NaN se trata como 0.
func (d StrategyDecision) Clamp() StrategyDecision {
	d.Bias = Clamp(d.Bias, -1, 1)
	d.Confidence = Clamp(d.Confidence, 0, 1)
	d.SizeHint = Clamp(d.SizeHint, 0, 1)
	if d.Metadata == nil {
		d.Metadata = Metadata{}
	}
	return d
}

// Exclusive reports whether the strategy flagged this decision as exclusive.
func (d StrategyDecision) Exclusive() bool {
	return d.Metadata.Bool("exclusive")
}

// Clamp limita v a [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
