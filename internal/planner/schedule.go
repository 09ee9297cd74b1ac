package planner

import (
	"sort"
	"time"

	"studyplanner/internal/model"
)

// Request is the input of one scheduling pass. Now anchors the pass; its
// Location decides hours of day and day boundaries.
type Request struct {
	Sessions []model.Session

	// Pinned sessions come from user-edited or locked calendar entries and
	// from planner entries already under way. They keep their interval and
	// are not re-scored.
	Pinned []model.ScheduledSession

	// Busy intervals are never scheduled over (the user's own events,
	// blackout windows).
	Busy []model.Interval

	Now time.Time
}

// Result partitions the input sessions. Scheduled is ordered by start time;
// Overflow keeps placement order.
type Result struct {
	Scheduled []model.ScheduledSession `json:"scheduled"`
	Overflow  []model.Session          `json:"overflow"`
}

// ScheduleSessions is Schedule without pinned sessions or busy time.
func ScheduleSessions(sessions []model.Session, settings Settings, profile EnergyProfile, now time.Time) Result {
	return Schedule(Request{Sessions: sessions, Now: now}, settings, profile)
}

// Schedule places sessions into non-overlapping slots.
//
// Sessions are processed in descending Score order, ties broken by earlier
// due date, then lower session index, then input order. Each session takes
// the earliest run of open, unoccupied grid units that ends before its
// window closes and keeps the day within MaxStudyMinutesPerDay. A session
// that cannot be placed whole goes to Overflow.
//
// The window of a session is [now, due] capped by the horizon. Items not
// locked to their due date may extend it by OverdueGraceMinutes. A locked
// item due in the past has an empty window and always overflows.
func Schedule(req Request, settings Settings, profile EnergyProfile) Result {
	s := settings.Normalize()
	profile = profile.orDefault()

	now := req.Now
	loc := now.Location()
	unit := time.Duration(s.UnitMinutes) * time.Minute
	horizonEnd := now.AddDate(0, 0, s.HorizonDays)

	var res Result

	pinned, pinnedKeys, demoted := acceptPinned(req.Pinned)

	candidates := make([]model.Session, 0, len(req.Sessions)+len(demoted))
	for _, sess := range req.Sessions {
		if _, ok := pinnedKeys[sess.Key()]; ok {
			continue
		}
		candidates = append(candidates, sess)
	}
	candidates = append(candidates, demoted...)

	windows := make([]time.Time, len(candidates))
	latest := now
	for i, sess := range candidates {
		windows[i] = windowEnd(sess, now, horizonEnd, s)
		if windows[i].After(latest) {
			latest = windows[i]
		}
	}

	g := newGrid(now, latest, unit, loc, profile)
	used := make(map[string]int)

	for _, b := range req.Busy {
		g.occupy(b)
	}
	for _, p := range pinned {
		g.occupy(model.Interval{Start: p.Start, End: p.End})
		used[dayKey(p.Start, loc)] += p.Session.EstimatedMinutes
		res.Scheduled = append(res.Scheduled, p)
	}

	for _, i := range placementOrder(candidates, now) {
		sess := candidates[i]
		start, ok := g.find(sess, windows[i], used, s.MaxStudyMinutesPerDay)
		if !ok {
			res.Overflow = append(res.Overflow, sess)
			continue
		}
		end := start.Add(sess.Duration())
		g.occupyUnits(start, unitsFor(sess, s.UnitMinutes))
		used[dayKey(start, loc)] += max(sess.EstimatedMinutes, 0)
		res.Scheduled = append(res.Scheduled, model.ScheduledSession{
			Session: sess,
			Start:   start,
			End:     end,
		})
	}

	sort.SliceStable(res.Scheduled, func(a, b int) bool {
		x, y := res.Scheduled[a], res.Scheduled[b]
		if !x.Start.Equal(y.Start) {
			return x.Start.Before(y.Start)
		}
		if x.Session.WorkItemID != y.Session.WorkItemID {
			return x.Session.WorkItemID < y.Session.WorkItemID
		}
		return x.Session.SessionIndex < y.Session.SessionIndex
	})

	return res
}

// acceptPinned keeps pinned sessions that do not overlap an earlier pinned
// one. Rejected entries are returned for regular placement.
func acceptPinned(in []model.ScheduledSession) ([]model.ScheduledSession, map[model.SessionKey]struct{}, []model.Session) {
	sorted := make([]model.ScheduledSession, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Start.Before(sorted[b].Start)
	})

	keys := make(map[model.SessionKey]struct{}, len(sorted))
	var kept []model.ScheduledSession
	var demoted []model.Session
	for _, p := range sorted {
		if _, dup := keys[p.Session.Key()]; dup {
			continue
		}
		iv := model.Interval{Start: p.Start, End: p.End}
		clash := false
		for _, k := range kept {
			if iv.Overlaps(model.Interval{Start: k.Start, End: k.End}) {
				clash = true
				break
			}
		}
		if clash {
			demoted = append(demoted, p.Session)
			continue
		}
		p.Pinned = true
		keys[p.Session.Key()] = struct{}{}
		kept = append(kept, p)
	}
	for _, d := range demoted {
		keys[d.Key()] = struct{}{}
	}
	// Demoted keys are in the set so that their duplicates in
	// Request.Sessions are skipped; the demoted copy is placed instead.
	return kept, keys, demoted
}

func windowEnd(sess model.Session, now, horizonEnd time.Time, s Settings) time.Time {
	end := sess.Due
	if !sess.IsLockedToDueDate && s.OverdueGraceMinutes > 0 {
		grace := now.Add(time.Duration(s.OverdueGraceMinutes) * time.Minute)
		if grace.After(end) {
			end = grace
		}
	}
	if end.After(horizonEnd) {
		end = horizonEnd
	}
	return end
}

func placementOrder(sessions []model.Session, now time.Time) []int {
	scores := make([]float64, len(sessions))
	order := make([]int, len(sessions))
	for i, sess := range sessions {
		scores[i] = Score(sess, now)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := order[a], order[b]
		if scores[x] != scores[y] {
			return scores[x] > scores[y]
		}
		if !sessions[x].Due.Equal(sessions[y].Due) {
			return sessions[x].Due.Before(sessions[y].Due)
		}
		if sessions[x].SessionIndex != sessions[y].SessionIndex {
			return sessions[x].SessionIndex < sessions[y].SessionIndex
		}
		return x < y
	})
	return order
}

func unitsFor(sess model.Session, unitMinutes int) int {
	n := ceilDiv(max(sess.EstimatedMinutes, 0), unitMinutes)
	if n < 1 {
		// Zero-length advisory sessions still claim their slot.
		n = 1
	}
	return n
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
