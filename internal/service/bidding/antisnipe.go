package bidding

import (
	"time"

	"github.com/driveline/auto-auction-backend/internal/domain/listing"
)

// extendedEnd computes the listing end time that must be committed together
// with an admitted bid at the given instant. A bid landing inside the
// trailing anti-snipe window pushes the end out to now + window so the
// auction always offers a fair last call. The number of extensions is
// unbounded; liability is bounded instead by clamping the end time to
// startAt + MaxTotalDuration. The returned time never precedes the current
// end time.
func (e *engine) extendedEnd(l *listing.Listing, now time.Time) (time.Time, bool) {
	if l.EndAt.Sub(now) > e.cfg.AntiSnipeWindow {
		return l.EndAt, false
	}

	candidate := now.Add(e.cfg.AntiSnipeWindow)

	ceiling := l.StartAt.Add(e.cfg.MaxTotalDuration)
	if candidate.After(ceiling) {
		candidate = ceiling
	}

	if !candidate.After(l.EndAt) {
		return l.EndAt, false
	}

	return candidate, true
}
