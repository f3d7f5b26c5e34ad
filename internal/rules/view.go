// Package rules implements the height-gated, composable validation
// rules of spec.md §4.1: ordered, short-circuiting rulesets for
// headers, transactions, and blocks. Grounded on the teacher's
// ordered-checklist validator shape (services/validator/TxValidator.go,
// services/validator/Validator.go) generalized into a reusable
// Rule/Ruleset pair gated by BIP activation height.
package rules

import "sort"

// View is the read-only ancestor-timestamp window a rule needs to
// evaluate median-time-past and difficulty transitions, implemented by
// the header timechain's ValidationView (spec.md §4.3). Defined here,
// rather than imported from the timechain package, so rules has no
// dependency on the timechain's concrete forest/chain types; any type
// with this shape satisfies it.
type View interface {
	// Length reports how many ancestor heights the view can answer for.
	Length() int
	// TimestampAt returns the header timestamp recorded at height, and
	// whether that height is within the view's bounds.
	TimestampAt(height int32) (uint32, bool)
	// LastNTimestamps returns the last up-to-n ancestor timestamps,
	// oldest-to-newest, ending at (and excluding) the header under
	// validation.
	LastNTimestamps(n int) []uint32
}

// MedianTimePast returns the middle element of the sorted last-11
// ancestor timestamps (spec.md §4.1 "Median-time-past"). Callers must
// never invoke this against the genesis view (it has zero ancestors).
func MedianTimePast(v View) uint32 {
	ts := v.LastNTimestamps(11)
	if len(ts) == 0 {
		panic("rules: MedianTimePast called with no ancestor timestamps")
	}
	sorted := append([]uint32(nil), ts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// LocktimeReference picks the timestamp used for transaction finality
// checks: MedianTimePast once BIP113 is active, otherwise the
// candidate header's own timestamp (spec.md §4.1 "Median-time-past").
func LocktimeReference(bip113Active bool, v View, headerTimestamp uint32) uint32 {
	if bip113Active {
		return MedianTimePast(v)
	}
	return headerTimestamp
}
