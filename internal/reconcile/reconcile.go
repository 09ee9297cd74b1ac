// Package reconcile diffs desired calendar blocks against a snapshot of the
// external calendar and emits the minimal create/update/delete plan.
package reconcile

import (
	"sort"

	"studyplanner/internal/blocks"
	"studyplanner/internal/model"
)

// Plan computes the operations that make the planner-owned part of the
// external calendar inside window match desired.
//
// Only events whose identity parses as planner-owned and whose start lies in
// window are candidates; every other event is left alone. Candidates that a
// user edited or locked are never updated or deleted: they are reported in
// Preserved and satisfy their block. Blocks starting outside window are
// skipped. The result does not depend on the order of existing, and applying
// it then planning again yields an empty plan.
func Plan(desired []model.Block, existing []model.ExternalEvent, window model.Interval) model.SyncPlan {
	candidates := make(map[string][]model.ExternalEvent)
	for _, ev := range existing {
		meta, ok := blocks.Parse(ev)
		if !ok || !meta.PlannerOwned() {
			continue
		}
		if !window.Contains(ev.Start) {
			continue
		}
		candidates[meta.BlockID] = append(candidates[meta.BlockID], ev)
	}

	var plan model.SyncPlan
	seen := make(map[string]struct{}, len(desired))

	for _, b := range desired {
		if _, dup := seen[b.ID]; dup {
			continue
		}
		if !window.Contains(b.Start) {
			continue
		}
		seen[b.ID] = struct{}{}

		matches := candidates[b.ID]
		if len(matches) == 0 {
			plan.Upserts = append(plan.Upserts, model.Upsert{Block: b})
			continue
		}

		var owned, free []model.ExternalEvent
		for _, ev := range matches {
			if ev.UserOwned() {
				owned = append(owned, ev)
			} else {
				free = append(free, ev)
			}
		}

		if len(owned) > 0 {
			// The user's copy wins; planner-owned duplicates go.
			for _, ev := range owned {
				plan.Preserved = append(plan.Preserved, ev.Identifier)
			}
			for _, ev := range free {
				plan.Deletions = append(plan.Deletions, ev.Identifier)
			}
			continue
		}

		keep := canonical(b, free)
		for _, ev := range free {
			if ev.Identifier != keep.Identifier {
				plan.Deletions = append(plan.Deletions, ev.Identifier)
			}
		}
		if !same(b, keep) {
			plan.Upserts = append(plan.Upserts, model.Upsert{Block: b, ExistingIdentifier: keep.Identifier})
		}
	}

	for id, evs := range candidates {
		if _, ok := seen[id]; ok {
			continue
		}
		for _, ev := range evs {
			if ev.UserOwned() {
				plan.Preserved = append(plan.Preserved, ev.Identifier)
				continue
			}
			plan.Deletions = append(plan.Deletions, ev.Identifier)
		}
	}

	sort.Strings(plan.Deletions)
	sort.Strings(plan.Preserved)
	return plan
}

// canonical picks the event to keep among duplicates: an identical one if
// present, otherwise the lowest identifier.
func canonical(b model.Block, evs []model.ExternalEvent) model.ExternalEvent {
	sorted := make([]model.ExternalEvent, len(evs))
	copy(sorted, evs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Identifier < sorted[j].Identifier
	})
	for _, ev := range sorted {
		if same(b, ev) {
			return ev
		}
	}
	return sorted[0]
}

func same(b model.Block, ev model.ExternalEvent) bool {
	return b.Title == ev.Title && b.Start.Equal(ev.Start) && b.End.Equal(ev.End)
}
