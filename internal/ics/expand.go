package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studyplanner/internal/log"
	"studyplanner/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandResult holds the busy intervals of a set of events.
type ExpandResult struct {
	Busy []model.Interval
	// TruncatedEvents records UIDs that hit the occurrence cap.
	TruncatedEvents []string
}

// ExpandBusy turns parsed events into concrete busy intervals overlapping
// window. It handles single events, RRULE recurrence with EXDATE, and
// RECURRENCE-ID overrides. Transparent events are ignored.
func ExpandBusy(events []ParsedEvent, window model.Interval, maxPerEvent int) (ExpandResult, error) {
	var result ExpandResult
	if window.End.Before(window.Start) {
		return result, errors.New("ics: window end is before start")
	}
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	uids := make([]string, 0)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, ok := baseByUID[ev.UID]; !ok {
			uids = append(uids, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		overrides := overridesByUID[uid]
		used := make([]bool, len(overrides))
		truncated := false

		for _, ev := range baseByUID[uid] {
			starts, hitCap := occurrenceStarts(ev, window, maxPerEvent)
			truncated = truncated || hitCap
			dur := ev.End.Sub(ev.Start)

			for _, start := range starts {
				occ := model.Interval{Start: start, End: start.Add(dur)}
				free := ev.Free
				if i, ok := findOverride(overrides, start); ok {
					used[i] = true
					occ = model.Interval{Start: overrides[i].Start, End: overrides[i].End}
					free = overrides[i].Free
				}
				if !free && occ.Overlaps(window) {
					result.Busy = append(result.Busy, occ)
				}
			}
		}

		// Overrides moved into the window from an instance outside it.
		for i, ov := range overrides {
			occ := model.Interval{Start: ov.Start, End: ov.End}
			if !used[i] && !ov.Free && occ.Overlaps(window) {
				result.Busy = append(result.Busy, occ)
			}
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("ics: occurrences truncated", "uid", uid, "cap", maxPerEvent)
		}
	}

	sortIntervals(result.Busy)
	return result, nil
}

func occurrenceStarts(ev ParsedEvent, window model.Interval, maxPerEvent int) ([]time.Time, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Start early enough to catch an occurrence already running at
	// window.Start.
	from := window.Start.Add(-ev.End.Sub(ev.Start)).In(ev.Start.Location())
	to := window.End.In(ev.Start.Location())
	starts := set.Between(from, to, true)
	if len(starts) > maxPerEvent {
		return starts[:maxPerEvent], true
	}
	return starts, false
}

func findOverride(overrides []ParsedEvent, start time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return i, true
		}
	}
	return 0, false
}

// ExpandRule expands a recurring window such as a configured blackout.
// dtstart anchors the rule and each occurrence lasts dur.
func ExpandRule(rule string, dtstart time.Time, dur time.Duration, window model.Interval) ([]model.Interval, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, err
	}
	r.DTStart(dtstart)

	starts := r.Between(window.Start.Add(-dur), window.End, true)
	out := make([]model.Interval, 0, len(starts))
	for _, s := range starts {
		iv := model.Interval{Start: s, End: s.Add(dur)}
		if iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func sortIntervals(ivs []model.Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].Start.Before(ivs[j].Start)
		}
		return ivs[i].End.Before(ivs[j].End)
	})
}
