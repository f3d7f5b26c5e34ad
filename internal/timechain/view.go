package timechain

import "github.com/chainforge/core/internal/chainparams"

// ValidationView implements internal/rules.View: a bounded read-only
// window over ancestor timestamps ending at (and excluding) the
// header under validation, pinned at tip (spec.md §4.3
// "ValidationView"). It is constructed under the Timechain's read
// lock and must not outlive the validation call that requested it —
// it re-reads through the Timechain on every method call rather than
// caching, matching spec.md §4.3's concurrency note that views must
// remain consistent with concurrent adds only because add itself
// takes an exclusive lock.
type ValidationView struct {
	tc  *Timechain
	tip Position
}

// Length reports how many ancestor heights the view can answer for.
func (v *ValidationView) Length() int {
	ctx := v.tipContext()
	if ctx.Height < 0 {
		return 0
	}
	return int(ctx.Height) + 1
}

// TimestampAt returns the timestamp recorded at height within this view.
func (v *ValidationView) TimestampAt(height int32) (uint32, bool) {
	ctx, ok := v.tc.GetAncestorAtHeight(v.tip, height)
	if !ok {
		return 0, false
	}
	return ctx.Header.Timestamp, true
}

// LastNTimestamps returns up to the last n ancestor timestamps ending
// at the pinned tip, oldest-to-newest.
func (v *ValidationView) LastNTimestamps(n int) []uint32 {
	tipCtx := v.tipContext()
	start := tipCtx.Height - int32(n) + 1
	if start < 0 {
		start = 0
	}
	out := make([]uint32, 0, tipCtx.Height-start+1)
	for h := start; h <= tipCtx.Height; h++ {
		ts, ok := v.TimestampAt(h)
		if !ok {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Tip returns the position this view is pinned at.
func (v *ValidationView) Tip() Position { return v.tip }

// Advance returns a new ValidationView pinned at the position just
// added, so a header-sync batch can advance its view's tip after each
// successfully validated and added header (spec.md §4.3 "advance the
// view's tip to the newly added node").
func (v *ValidationView) Advance(newTip Position) *ValidationView {
	return &ValidationView{tc: v.tc, tip: newTip}
}

func (v *ValidationView) tipContext() chainparams.HeaderContext {
	return v.tc.ContextAt(v.tip)
}
