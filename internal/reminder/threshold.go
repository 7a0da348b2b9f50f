// Package reminder implements the notification scheduler: the lead-time
// window evaluator, the per-threshold dedup ledger, and the polling loop
// that drives dispatch.
package reminder

import "time"

// Threshold identifies one of the fixed lead-time windows before an event's
// start at which a single reminder is due.
type Threshold int

const (
	ThresholdNone Threshold = iota
	ThresholdThreeHour
	ThresholdOneDay
	ThresholdOneWeek
)

func (t Threshold) String() string {
	switch t {
	case ThresholdThreeHour:
		return "3h"
	case ThresholdOneDay:
		return "1d"
	case ThresholdOneWeek:
		return "1w"
	default:
		return "none"
	}
}

// Tolerance is the width of the three-hour detection band. It must stay
// matched to the polling interval so a 60-second cadence cannot skip the
// window.
const Tolerance = time.Minute

// Each window carries its own band width. The three-hour band is matched to
// the poll cadence; the day and week bands are wide (23h-24h and 6d-7d) so
// an event first observed mid-band, after a restart or a late creation,
// still gets its reminder.
var windows = []struct {
	lead time.Duration
	band time.Duration
	tag  Threshold
}{
	{lead: 3 * time.Hour, band: Tolerance, tag: ThresholdThreeHour},
	{lead: 24 * time.Hour, band: time.Hour, tag: ThresholdOneDay},
	{lead: 7 * 24 * time.Hour, band: 24 * time.Hour, tag: ThresholdOneWeek},
}

// Active reports which threshold, if any, is currently active for an event
// starting at start when observed at now. A threshold with lead L and band
// width B is active iff L-B < start-now <= L. Past events never match. The
// windows do not overlap, so at most one threshold is active.
func Active(start, now time.Time) Threshold {
	diff := start.Sub(now)
	if diff <= 0 {
		return ThresholdNone
	}
	for _, w := range windows {
		if w.lead-w.band < diff && diff <= w.lead {
			return w.tag
		}
	}
	return ThresholdNone
}
