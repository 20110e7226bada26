package engine

import (
	"math"
	"strconv"
	"strings"
)

// IsSentinel reports whether an item state means "the middleware has no
// current value". OpenHAB reports this as "NULL" (never initialised) or
// "UNDEF" (binding lost the value); an empty state is treated the same way.
// Sentinel states are a normal steady-state condition, not a sync error.
func IsSentinel(state string) bool {
	return state == "" || state == "NULL" || state == "UNDEF"
}

// ParseState extracts the numeric value from an item state. Dimensioned
// items append a unit after a space ("23.5 °C"), so only the leading
// whitespace-separated token is parsed. Returns false for anything that is
// not a finite number; such states are skipped, not treated as errors.
func ParseState(state string) (float64, bool) {
	fields := strings.Fields(state)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
