// Package pipeline runs one planning pass: load work items, gather busy
// time, read the planner calendar, schedule, build blocks, reconcile and
// optionally apply. Collaborators are passed in explicitly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"studyplanner/internal/blocks"
	"studyplanner/internal/calstore"
	"studyplanner/internal/config"
	"studyplanner/internal/ics"
	appLog "studyplanner/internal/log"
	"studyplanner/internal/model"
	"studyplanner/internal/planner"
	"studyplanner/internal/reconcile"
	"studyplanner/internal/workitems"
)

// Calendar is the external store the planner writes into.
type Calendar interface {
	Snapshot(window model.Interval) ([]model.ExternalEvent, error)
	Apply(plan model.SyncPlan) (calstore.ApplyResult, error)
}

// BusyFetcher loads busy calendars.
type BusyFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error)
}

// ItemSource returns the current work items.
type ItemSource func() ([]model.WorkItem, error)

// Report is the outcome of one pass.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Window      model.Interval `json:"window"`
	WorkItems   int            `json:"work_items"`
	Sessions    int            `json:"sessions"`

	Scheduled []model.ScheduledSession `json:"scheduled"`
	Overflow  []model.Session          `json:"overflow"`
	Blocks    []model.Block            `json:"blocks"`
	Plan      model.SyncPlan           `json:"plan"`

	Applied *calstore.ApplyResult `json:"applied,omitempty"`

	// Warnings collects non-fatal problems such as an unreachable busy
	// calendar.
	Warnings []string `json:"warnings,omitempty"`
}

// Runner holds the collaborators of a planning pass. Run calls are
// serialized so two passes never apply plans concurrently.
type Runner struct {
	Items     ItemSource
	Fetcher   BusyFetcher
	Calendar  Calendar
	Sources   []ics.Source
	Blackouts []config.Blackout
	Settings  planner.Settings
	Profile   planner.EnergyProfile
	Location  *time.Location
	Now       func() time.Time

	mu sync.Mutex
}

// New wires a Runner from configuration.
func New(cfg *config.Config) (*Runner, error) {
	if cfg == nil {
		return nil, config.ErrNilConfig
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(cfg.BusySources))
	for _, s := range cfg.BusySources {
		sources = append(sources, ics.Source{ID: s.ID, URL: s.URL, Path: s.Path})
	}
	itemsPath := cfg.WorkItemsPath

	return &Runner{
		Items: func() ([]model.WorkItem, error) {
			return workitems.Load(itemsPath, loc)
		},
		Fetcher:   ics.NewFetcher(cfg.CacheDir, nil),
		Calendar:  calstore.New(cfg.CalendarPath, loc),
		Sources:   sources,
		Blackouts: cfg.Blackouts,
		Settings:  cfg.Planner,
		Profile:   cfg.EnergyProfile,
		Location:  loc,
		Now:       time.Now,
	}, nil
}

// Run executes one pass. With apply unset the sync plan is computed but not
// executed.
func (r *Runner) Run(ctx context.Context, apply bool) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	clock := r.Now
	if clock == nil {
		clock = time.Now
	}
	settings := r.Settings.Normalize()

	now := clock().In(loc)
	window := model.Interval{Start: now, End: now.AddDate(0, 0, settings.HorizonDays)}
	rep := &Report{GeneratedAt: now, Window: window}

	items, err := r.Items()
	if err != nil {
		return nil, fmt.Errorf("pipeline: load work items: %w", err)
	}
	rep.WorkItems = len(items)

	var sessions []model.Session
	for _, it := range items {
		sessions = append(sessions, planner.GenerateSessions(it, settings)...)
	}
	rep.Sessions = len(sessions)

	busy, warnings := r.busy(ctx, window, loc)
	rep.Warnings = append(rep.Warnings, warnings...)

	snapshot, err := r.Calendar.Snapshot(window)
	if err != nil {
		return nil, fmt.Errorf("pipeline: calendar snapshot: %w", err)
	}
	pinned, extraBusy := pinnedFrom(snapshot, sessions, now)
	busy = append(busy, extraBusy...)

	res := planner.Schedule(planner.Request{
		Sessions: sessions,
		Pinned:   pinned,
		Busy:     busy,
		Now:      now,
	}, settings, r.Profile)
	rep.Scheduled = res.Scheduled
	rep.Overflow = res.Overflow

	// Pinned sessions already have their calendar entry; reconcile reports
	// it as preserved.
	free := make([]model.ScheduledSession, 0, len(res.Scheduled))
	for _, s := range res.Scheduled {
		if !s.Pinned {
			free = append(free, s)
		}
	}
	rep.Blocks = blocks.Build(free, settings.MergeGapMinutes)
	rep.Plan = reconcile.Plan(rep.Blocks, snapshot, window)

	appLog.Info("planning pass",
		"items", rep.WorkItems,
		"sessions", rep.Sessions,
		"scheduled", len(rep.Scheduled),
		"overflow", len(rep.Overflow),
		"blocks", len(rep.Blocks),
		"upserts", len(rep.Plan.Upserts),
		"deletions", len(rep.Plan.Deletions),
		"preserved", len(rep.Plan.Preserved),
	)

	if apply && !rep.Plan.Empty() {
		applied, err := r.Calendar.Apply(rep.Plan)
		if err != nil {
			return rep, fmt.Errorf("pipeline: apply: %w", err)
		}
		rep.Applied = &applied
	}
	return rep, nil
}

// busy gathers busy intervals from subscribed calendars and blackout rules.
// Failures degrade to warnings; the pass continues with what was loaded.
func (r *Runner) busy(ctx context.Context, window model.Interval, loc *time.Location) ([]model.Interval, []string) {
	var (
		out      []model.Interval
		warnings []string
	)

	if len(r.Sources) > 0 && r.Fetcher != nil {
		results, err := r.Fetcher.FetchAll(ctx, r.Sources)
		if err != nil {
			warnings = append(warnings, splitJoined(err)...)
		}
		for _, fr := range results {
			events, err := ics.Parse(fr.Source.ID, fr.Body, loc)
			if err != nil {
				appLog.Error("busy calendar parse failed", err, "id", fr.Source.ID)
				warnings = append(warnings, fmt.Sprintf("%s: %v", fr.Source.ID, err))
				continue
			}
			exp, err := ics.ExpandBusy(events, window, 0)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", fr.Source.ID, err))
				continue
			}
			for _, uid := range exp.TruncatedEvents {
				warnings = append(warnings, fmt.Sprintf("%s: recurrence of %s truncated", fr.Source.ID, uid))
			}
			out = append(out, exp.Busy...)
		}
	}

	for _, b := range r.Blackouts {
		start, err := time.ParseInLocation(config.BlackoutLayout, b.Start, loc)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("blackout %q: %v", b.Label, err))
			continue
		}
		ivs, err := ics.ExpandRule(b.RRule, start, time.Duration(b.DurationMinutes)*time.Minute, window)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("blackout %q: %v", b.Label, err))
			continue
		}
		out = append(out, ivs...)
	}

	return out, warnings
}

// pinnedFrom turns user-owned planner entries, and planner entries already
// under way at now, back into pinned sessions. Their sessions are laid out
// in order from the entry's start and clipped to its end. An entry naming
// sessions that no longer exist only blocks its time. Foreign entries in the
// planner calendar are busy time.
func pinnedFrom(snapshot []model.ExternalEvent, sessions []model.Session, now time.Time) ([]model.ScheduledSession, []model.Interval) {
	byKey := make(map[model.SessionKey]model.Session, len(sessions))
	for _, s := range sessions {
		byKey[s.Key()] = s
	}

	ordered := make([]model.ExternalEvent, len(snapshot))
	copy(ordered, snapshot)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Identifier < ordered[j].Identifier
	})

	var (
		pinned []model.ScheduledSession
		busy   []model.Interval
	)
	for _, ev := range ordered {
		iv := model.Interval{Start: ev.Start, End: ev.End}
		meta, ok := blocks.Parse(ev)
		if !ok || !meta.PlannerOwned() {
			busy = append(busy, iv)
			continue
		}
		inProgress := ev.Start.Before(now) && ev.End.After(now)
		if !ev.UserOwned() && !inProgress {
			continue
		}

		members := make([]model.Session, 0, len(meta.Items))
		for _, k := range meta.Items {
			s, ok := byKey[k]
			if !ok {
				members = nil
				break
			}
			members = append(members, s)
		}
		if len(members) == 0 {
			busy = append(busy, iv)
			continue
		}

		cursor := ev.Start
		for _, s := range members {
			start := minTime(cursor, ev.End)
			end := minTime(start.Add(s.Duration()), ev.End)
			pinned = append(pinned, model.ScheduledSession{Session: s, Start: start, End: end, Pinned: true})
			cursor = end
		}
	}
	return pinned, busy
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
