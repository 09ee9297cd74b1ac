package planner

import (
	"time"

	"studyplanner/internal/model"
)

// grid discretizes [origin, end) into fixed-size units. origin is now
// rounded up to the next unit boundary of the local day.
type grid struct {
	origin   time.Time
	unit     time.Duration
	loc      *time.Location
	open     []bool
	occupied []bool
}

func newGrid(now, end time.Time, unit time.Duration, loc *time.Location, profile EnergyProfile) *grid {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	steps := (now.Sub(midnight) + unit - 1) / unit
	origin := midnight.Add(steps * unit)

	n := 0
	if end.After(origin) {
		n = int((end.Sub(origin) + unit - 1) / unit)
	}

	g := &grid{
		origin:   origin,
		unit:     unit,
		loc:      loc,
		open:     make([]bool, n),
		occupied: make([]bool, n),
	}
	for i := range g.open {
		g.open[i] = profile.Weight(g.at(i).In(loc).Hour()) > 0
	}
	return g
}

func (g *grid) at(i int) time.Time {
	return g.origin.Add(time.Duration(i) * g.unit)
}

func (g *grid) index(t time.Time) int {
	return int(t.Sub(g.origin) / g.unit)
}

// occupy marks every unit overlapping iv. Zero-length intervals claim the
// unit they start in.
func (g *grid) occupy(iv model.Interval) {
	if len(g.occupied) == 0 {
		return
	}
	from := iv.Start.Sub(g.origin)
	to := iv.End.Sub(g.origin)
	if to <= from {
		to = from + 1
	}
	if to <= 0 {
		return
	}
	first := 0
	if from > 0 {
		first = int(from / g.unit)
	}
	last := int((to + g.unit - 1) / g.unit)
	for i := first; i < last && i < len(g.occupied); i++ {
		g.occupied[i] = true
	}
}

func (g *grid) occupyUnits(start time.Time, n int) {
	first := g.index(start)
	for i := first; i < first+n && i < len(g.occupied); i++ {
		g.occupied[i] = true
	}
}

func (g *grid) free(first, n int) bool {
	for i := first; i < first+n; i++ {
		if !g.open[i] || g.occupied[i] {
			return false
		}
	}
	return true
}

// find returns the earliest start for sess that ends by windowEnd.
func (g *grid) find(sess model.Session, windowEnd time.Time, used map[string]int, maxPerDay int) (time.Time, bool) {
	need := unitsFor(sess, int(g.unit/time.Minute))
	dur := sess.Duration()
	minutes := max(sess.EstimatedMinutes, 0)

	for i := 0; i+need <= len(g.open); i++ {
		start := g.at(i)
		if !start.Before(windowEnd) || start.Add(dur).After(windowEnd) {
			break
		}
		if !g.free(i, need) {
			continue
		}
		if maxPerDay > 0 && used[dayKey(start, g.loc)]+minutes > maxPerDay {
			continue
		}
		return start, true
	}
	return time.Time{}, false
}
