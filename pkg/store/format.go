package store

import "strconv"

// Numeric cells are serialized in fixed-point form so downstream consumers
// never see exponential notation and repeated runs stay byte-stable.

// FormatFloat renders a float with twelve decimal places, never
// exponential.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 12, 64)
}

// FormatOptionalFloat renders a possibly-absent float; nil becomes the
// empty cell, which the reconciler treats as "not provided".
func FormatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

// FormatOptionalInt renders a possibly-absent integral value.
func FormatOptionalInt(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*v), 10)
}
