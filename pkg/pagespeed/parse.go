package pagespeed

import (
	"math"
	"strconv"
	"strings"
)

// ParseDisplayValue turns a human-readable audit display string like
// "2.3 s", "150 ms" or "1,230 ms" into its numeric magnitude. Every
// rune that is not a digit or decimal point is stripped before
// parsing. The sentinel and anything unparseable yield 0 — a
// malformed upstream string must never abort a request. The result is
// always a finite, non-negative float.
func ParseDisplayValue(s string) float64 {
	if s == Sentinel {
		return 0
	}

	var b strings.Builder

	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}

	return v
}
