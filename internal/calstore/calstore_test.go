package calstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"studyplanner/internal/blocks"
	"studyplanner/internal/model"
	"studyplanner/internal/reconcile"
)

var refNow = time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "planner.ics"), time.UTC)
	s.now = func() time.Time { return refNow }
	return s
}

func testWindow() model.Interval {
	return model.Interval{Start: refNow, End: refNow.AddDate(0, 0, 14)}
}

func testBlocks() []model.Block {
	sess := func(id string, idx int, cat model.Category, start time.Time, minutes int) model.ScheduledSession {
		return model.ScheduledSession{
			Session: model.Session{
				WorkItemID:       id,
				SessionIndex:     idx,
				SessionCount:     2,
				Title:            id + ", part",
				Due:              refNow.AddDate(0, 0, 3),
				EstimatedMinutes: minutes,
				Category:         cat,
			},
			Start: start,
			End:   start.Add(time.Duration(minutes) * time.Minute),
		}
	}
	return blocks.Build([]model.ScheduledSession{
		sess("exam-1", 0, model.CategoryExam, refNow, 60),
		sess("exam-1", 1, model.CategoryExam, refNow.Add(time.Hour), 60),
		sess("essay", 0, model.CategoryHomework, refNow.Add(4*time.Hour), 90),
	}, 15)
}

func applyPlan(t *testing.T, s *Store, desired []model.Block) ApplyResult {
	t.Helper()
	existing, err := s.Snapshot(testWindow())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	res, err := s.Apply(reconcile.Plan(desired, existing, testWindow()))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return res
}

// editEvent changes an entry the way a calendar app would, leaving the
// planner's fingerprint behind.
func editEvent(t *testing.T, s *Store, uid string, edit func(start, end time.Time) (time.Time, time.Time)) {
	t.Helper()
	cal, err := s.load()
	if err != nil {
		t.Fatal(err)
	}
	for _, ve := range cal.Events() {
		if uidOf(ve) != uid {
			continue
		}
		start, _ := ve.GetStartAt()
		end, _ := ve.GetEndAt()
		ns, ne := edit(start, end)
		ve.SetStartAt(ns)
		ve.SetEndAt(ne)
	}
	if err := s.save(cal); err != nil {
		t.Fatal(err)
	}
}

func TestApplyThenSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	desired := testBlocks()
	if len(desired) != 2 {
		t.Fatalf("got %d blocks, want 2", len(desired))
	}

	res := applyPlan(t, s, desired)
	if len(res.Created) != 2 || res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("first apply: %+v", res)
	}

	events, err := s.Snapshot(testWindow())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for i, ev := range events {
		b := desired[i]
		if ev.Title != b.Title || !ev.Start.Equal(b.Start) || !ev.End.Equal(b.End) {
			t.Fatalf("event %d = %+v, want block %+v", i, ev, b)
		}
		if ev.Notes != b.Notes {
			t.Fatalf("notes did not survive the file:\n%q\nwant\n%q", ev.Notes, b.Notes)
		}
		if ev.UserEdited || ev.Locked {
			t.Fatalf("fresh event flagged: %+v", ev)
		}
		meta, ok := blocks.Parse(ev)
		if !ok || meta.BlockID != b.ID || len(meta.Items) != len(b.Sessions) {
			t.Fatalf("metadata %+v ok=%v", meta, ok)
		}
		if res.Created[b.ID] != ev.Identifier {
			t.Fatalf("created id %q, snapshot id %q", res.Created[b.ID], ev.Identifier)
		}
	}

	again := applyPlan(t, s, desired)
	if len(again.Created) != 0 || again.Updated != 0 || again.Deleted != 0 {
		t.Fatalf("second apply was not a no-op: %+v", again)
	}
}

func TestSnapshotMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	events, err := s.Snapshot(testWindow())
	if err != nil || len(events) != 0 {
		t.Fatalf("events=%v err=%v", events, err)
	}
}

func TestUserEditDetectedAndPreserved(t *testing.T) {
	s := newTestStore(t)
	desired := testBlocks()
	res := applyPlan(t, s, desired)

	uid := res.Created[desired[0].ID]
	editEvent(t, s, uid, func(start, end time.Time) (time.Time, time.Time) {
		return start.Add(2 * time.Hour), end.Add(2 * time.Hour)
	})

	events, err := s.Snapshot(testWindow())
	if err != nil {
		t.Fatal(err)
	}
	var edited bool
	for _, ev := range events {
		if ev.Identifier == uid {
			edited = ev.UserEdited
		} else if ev.UserEdited {
			t.Fatalf("untouched event flagged: %+v", ev)
		}
	}
	if !edited {
		t.Fatal("moved event not reported as user edited")
	}

	plan := reconcile.Plan(desired, events, testWindow())
	if len(plan.Preserved) != 1 || plan.Preserved[0] != uid {
		t.Fatalf("preserved %v, want [%s]", plan.Preserved, uid)
	}
	for _, u := range plan.Upserts {
		if u.ExistingIdentifier == uid {
			t.Fatal("user edited event scheduled for update")
		}
	}
	for _, d := range plan.Deletions {
		if d == uid {
			t.Fatal("user edited event scheduled for deletion")
		}
	}
}

func TestLockedProperty(t *testing.T) {
	s := newTestStore(t)
	desired := testBlocks()
	res := applyPlan(t, s, desired)
	uid := res.Created[desired[1].ID]

	cal, err := s.load()
	if err != nil {
		t.Fatal(err)
	}
	for _, ve := range cal.Events() {
		if uidOf(ve) == uid {
			ve.SetProperty(propLocked, "TRUE")
		}
	}
	if err := s.save(cal); err != nil {
		t.Fatal(err)
	}

	events, err := s.Snapshot(testWindow())
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		if ev.Identifier == uid && (!ev.Locked || !ev.UserOwned()) {
			t.Fatalf("lock not read: %+v", ev)
		}
	}
}

func TestApplyUpdateUnknownFails(t *testing.T) {
	s := newTestStore(t)
	desired := testBlocks()
	plan := model.SyncPlan{Upserts: []model.Upsert{{Block: desired[0], ExistingIdentifier: "nope"}}}
	if _, err := s.Apply(plan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyDeletesAndIgnoresUnknown(t *testing.T) {
	s := newTestStore(t)
	desired := testBlocks()
	res := applyPlan(t, s, desired)

	var ids []string
	for _, id := range res.Created {
		ids = append(ids, id)
	}
	out, err := s.Apply(model.SyncPlan{Deletions: append(ids, "gone")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Deleted != len(ids) {
		t.Fatalf("deleted %d, want %d", out.Deleted, len(ids))
	}
	events, _ := s.Snapshot(testWindow())
	if len(events) != 0 {
		t.Fatalf("events left: %v", events)
	}
}

func TestTextIsEscapedOnceInFile(t *testing.T) {
	s := newTestStore(t)
	b := testBlocks()[0]
	b.Title = "A, B; C"

	if _, err := s.Apply(model.SyncPlan{Upserts: []model.Upsert{{Block: b}}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	file := string(raw)
	for _, want := range []string{
		`SUMMARY:A\, B\; C`,
		`DESCRIPTION:[StudyPlanner]\nv: 1\nsource: planner\n`,
	} {
		if !strings.Contains(file, want) {
			t.Fatalf("file missing %q:\n%s", want, file)
		}
	}
	if strings.Contains(file, `\\`) {
		t.Fatalf("file has doubled escapes:\n%s", file)
	}

	events, err := s.Snapshot(testWindow())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(events) != 1 || events[0].Title != b.Title || events[0].Notes != b.Notes {
		t.Fatalf("round trip = %+v", events)
	}
	if events[0].UserEdited {
		t.Fatal("escaped title read back as a user edit")
	}
}
