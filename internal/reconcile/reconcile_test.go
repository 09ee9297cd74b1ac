package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"studyplanner/internal/blocks"
	"studyplanner/internal/model"
	"studyplanner/internal/planner"
)

var now = time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)

var window = model.Interval{Start: now, End: now.AddDate(0, 0, 14)}

func desiredBlocks(t *testing.T) []model.Block {
	t.Helper()
	items := []model.WorkItem{
		{ID: "exam", Title: "Physics Final", Category: model.CategoryExam, Due: now.AddDate(0, 0, 4), EstimatedMinutes: 240, Urgency: model.UrgencyHigh},
		{ID: "hw", Title: "Problem Set 7", Category: model.CategoryHomework, Due: now.AddDate(0, 0, 2), EstimatedMinutes: 120, Urgency: model.UrgencyMedium},
		{ID: "read", Title: "Chapter 4", Category: model.CategoryReading, Due: now.AddDate(0, 0, 3), EstimatedMinutes: 45, Urgency: model.UrgencyLow},
	}
	var sessions []model.Session
	for _, it := range items {
		sessions = append(sessions, planner.GenerateSessions(it, planner.DefaultSettings())...)
	}
	res := planner.ScheduleSessions(sessions, planner.DefaultSettings(), nil, now)
	out := blocks.Build(res.Scheduled, 15)
	if len(out) == 0 {
		t.Fatal("no blocks built")
	}
	return out
}

// apply mimics a calendar adapter executing the plan.
func apply(existing []model.ExternalEvent, plan model.SyncPlan) []model.ExternalEvent {
	deleted := make(map[string]bool)
	for _, id := range plan.Deletions {
		deleted[id] = true
	}
	updates := make(map[string]model.Block)
	var out []model.ExternalEvent
	for i, u := range plan.Upserts {
		if u.ExistingIdentifier != "" {
			updates[u.ExistingIdentifier] = u.Block
			continue
		}
		out = append(out, fromBlock(fmt.Sprintf("new-%d-%s", i, u.Block.ID[:8]), u.Block))
	}
	for _, ev := range existing {
		if deleted[ev.Identifier] {
			continue
		}
		if b, ok := updates[ev.Identifier]; ok {
			ev = fromBlock(ev.Identifier, b)
		}
		out = append(out, ev)
	}
	return out
}

func fromBlock(id string, b model.Block) model.ExternalEvent {
	return model.ExternalEvent{Identifier: id, Title: b.Title, Start: b.Start, End: b.End, Notes: b.Notes}
}

func TestPlanAgainstEmptySnapshotCreatesEverything(t *testing.T) {
	desired := desiredBlocks(t)
	plan := Plan(desired, nil, window)
	if len(plan.Upserts) != len(desired) {
		t.Fatalf("got %d upserts, want %d", len(plan.Upserts), len(desired))
	}
	for _, u := range plan.Upserts {
		if u.ExistingIdentifier != "" {
			t.Fatalf("create carries identifier %q", u.ExistingIdentifier)
		}
	}
	if len(plan.Deletions) != 0 {
		t.Fatalf("got %d deletions", len(plan.Deletions))
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	desired := desiredBlocks(t)
	first := Plan(desired, nil, window)
	applied := apply(nil, first)

	second := Plan(desired, applied, window)
	if !second.Empty() {
		t.Fatalf("second pass not empty: %d upserts, %d deletions", len(second.Upserts), len(second.Deletions))
	}
}

func TestPlanUpdatesMovedBlockInPlace(t *testing.T) {
	desired := desiredBlocks(t)
	applied := apply(nil, Plan(desired, nil, window))

	moved := make([]model.Block, len(desired))
	copy(moved, desired)
	moved[0].Start = moved[0].Start.Add(24 * time.Hour)
	moved[0].End = moved[0].End.Add(24 * time.Hour)

	plan := Plan(moved, applied, window)
	if len(plan.Upserts) != 1 || len(plan.Deletions) != 0 {
		t.Fatalf("got %d upserts, %d deletions", len(plan.Upserts), len(plan.Deletions))
	}
	if plan.Upserts[0].ExistingIdentifier == "" || plan.Upserts[0].Block.ID != moved[0].ID {
		t.Fatalf("expected in-place update, got %+v", plan.Upserts[0])
	}

	if again := Plan(moved, apply(applied, plan), window); !again.Empty() {
		t.Fatal("update was not idempotent")
	}
}

func TestPlanDeletesOrphans(t *testing.T) {
	desired := desiredBlocks(t)
	applied := apply(nil, Plan(desired, nil, window))

	plan := Plan(desired[1:], applied, window)
	if len(plan.Deletions) != 1 || len(plan.Upserts) != 0 {
		t.Fatalf("got %d deletions, %d upserts", len(plan.Deletions), len(plan.Upserts))
	}
}

func TestPlanNeverTouchesUserEdited(t *testing.T) {
	desired := desiredBlocks(t)
	applied := apply(nil, Plan(desired, nil, window))
	for i := range applied {
		applied[i].UserEdited = true
	}

	plan := Plan(nil, applied, window)
	if len(plan.Deletions) != 0 {
		t.Fatalf("user-edited events deleted: %v", plan.Deletions)
	}
	if len(plan.Preserved) != len(applied) {
		t.Fatalf("got %d preserved, want %d", len(plan.Preserved), len(applied))
	}

	moved := make([]model.Block, len(desired))
	copy(moved, desired)
	moved[0].Start = moved[0].Start.Add(time.Hour)
	plan = Plan(moved, applied, window)
	if len(plan.Upserts) != 0 {
		t.Fatalf("user-edited event updated: %+v", plan.Upserts)
	}
}

func TestPlanConflictWithUserEventStillCreates(t *testing.T) {
	desired := desiredBlocks(t)
	userEvent := model.ExternalEvent{
		Identifier: "user-1",
		Title:      "Dentist",
		Start:      desired[0].Start,
		End:        desired[0].End,
		Notes:      "bring insurance card",
	}
	plan := Plan(desired, []model.ExternalEvent{userEvent}, window)
	if len(plan.Upserts) != len(desired) {
		t.Fatalf("got %d upserts", len(plan.Upserts))
	}
	for _, id := range plan.Deletions {
		if id == "user-1" {
			t.Fatal("foreign event scheduled for deletion")
		}
	}
}

func TestPlanIgnoresOutOfRangeAndForeign(t *testing.T) {
	orphan := blocks.Metadata{BlockID: "gone", Source: blocks.Source}
	foreign := blocks.Metadata{BlockID: "other", Source: "someone-else"}
	existing := []model.ExternalEvent{
		{Identifier: "old", Title: "Exam Session", Start: now.AddDate(0, 0, -3), End: now.AddDate(0, 0, -3).Add(time.Hour), Notes: blocks.EncodeNotes(orphan, nil)},
		{Identifier: "foreign", Title: "Synced", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Notes: blocks.EncodeNotes(foreign, nil)},
	}
	plan := Plan(nil, existing, window)
	if !plan.Empty() {
		t.Fatalf("expected no operations, got %+v", plan)
	}
}

func TestPlanRemovesDuplicates(t *testing.T) {
	desired := desiredBlocks(t)[:1]
	applied := apply(nil, Plan(desired, nil, window))
	dup := applied[0]
	dup.Identifier = "zz-duplicate"
	applied = append(applied, dup)

	plan := Plan(desired, applied, window)
	if len(plan.Deletions) != 1 || plan.Deletions[0] != "zz-duplicate" {
		t.Fatalf("deletions %v", plan.Deletions)
	}
	if len(plan.Upserts) != 0 {
		t.Fatalf("upserts %v", plan.Upserts)
	}
}

func TestPlanOrderIndependent(t *testing.T) {
	desired := desiredBlocks(t)
	applied := apply(nil, Plan(desired, nil, window))
	reference := Plan(desired[1:], applied, window)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]model.ExternalEvent, len(applied))
		copy(shuffled, applied)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Plan(desired[1:], shuffled, window)
		if fmt.Sprint(got.Deletions) != fmt.Sprint(reference.Deletions) || len(got.Upserts) != len(reference.Upserts) {
			t.Fatalf("plan depends on snapshot order: %v vs %v", got.Deletions, reference.Deletions)
		}
	}
}
