// Package trigger decides when the fabric has advanced far enough for a new
// frame capture.
package trigger

import "math"

// Target returns the index of the frame the fabric has reached: how many
// whole frame heights fit into total. A displacement exactly on a boundary
// counts as reaching that frame. A non-positive fov yields 0.
func Target(total, fov float64) int64 {
	if fov <= 0 || total <= 0 {
		return 0
	}
	return int64(math.Floor(total / fov))
}

// Decide reports whether a capture should be issued given the displacement
// and the last frame already dispatched. When fire is true, next is last+1:
// the frame index advances by one per decision, so a tick that jumps several
// boundaries leaves a backlog that later ticks drain one frame at a time. The
// caller must record next as the new last frame before the capture runs, so a
// slow capture cannot re-fire the same boundary.
func Decide(total, fov float64, last int64) (next int64, fire bool) {
	if Target(total, fov) <= last {
		return last, false
	}
	return last + 1, true
}
