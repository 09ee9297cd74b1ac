package planner

import (
	"testing"
	"time"

	"studyplanner/internal/model"
)

var refNow = time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)

func item(id string, c model.Category, minutes int, due time.Time) model.WorkItem {
	return model.WorkItem{
		ID:               id,
		Title:            "Item " + id,
		Category:         c,
		Due:              due,
		EstimatedMinutes: minutes,
		Urgency:          model.UrgencyMedium,
	}
}

func assertIndices(t *testing.T, sessions []model.Session) {
	t.Helper()
	for i, s := range sessions {
		if s.SessionIndex != i {
			t.Fatalf("session %d has index %d", i, s.SessionIndex)
		}
		if s.SessionCount != len(sessions) {
			t.Fatalf("session %d has count %d, want %d", i, s.SessionCount, len(sessions))
		}
	}
}

func totalMinutes(sessions []model.Session) int {
	n := 0
	for _, s := range sessions {
		n += s.EstimatedMinutes
	}
	return n
}

func TestExamAlwaysAtLeastThreeSessions(t *testing.T) {
	for _, minutes := range []int{10, 60, 240, 600} {
		sessions := GenerateSessions(item("e", model.CategoryExam, minutes, refNow.AddDate(0, 0, 7)), DefaultSettings())
		if len(sessions) < 3 {
			t.Fatalf("%d min exam: got %d sessions, want >= 3", minutes, len(sessions))
		}
		assertIndices(t, sessions)
		if got := totalMinutes(sessions); got != minutes {
			t.Fatalf("%d min exam: minutes sum to %d", minutes, got)
		}
	}
}

func TestExamBoundsCannotDropBelowThree(t *testing.T) {
	s := DefaultSettings()
	s.CategoryBounds = map[model.Category]CountBounds{model.CategoryExam: {Min: 1, Max: 1}}
	sessions := GenerateSessions(item("e", model.CategoryExam, 60, refNow.AddDate(0, 0, 3)), s)
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
}

func TestQuizAtMostTwoSessions(t *testing.T) {
	for _, minutes := range []int{20, 90, 180, 500} {
		sessions := GenerateSessions(item("q", model.CategoryQuiz, minutes, refNow.AddDate(0, 0, 3)), DefaultSettings())
		if len(sessions) < 1 || len(sessions) > 2 {
			t.Fatalf("%d min quiz: got %d sessions", minutes, len(sessions))
		}
		assertIndices(t, sessions)
	}
}

func TestHomeworkSplit(t *testing.T) {
	short := GenerateSessions(item("h1", model.CategoryHomework, 45, refNow.AddDate(0, 0, 2)), DefaultSettings())
	if len(short) != 1 || short[0].EstimatedMinutes != 45 {
		t.Fatalf("short homework: got %+v", short)
	}

	long := GenerateSessions(item("h2", model.CategoryHomework, 120, refNow.AddDate(0, 0, 2)), DefaultSettings())
	if len(long) <= 1 {
		t.Fatalf("120 min homework: got %d sessions, want > 1", len(long))
	}
	assertIndices(t, long)
	s := DefaultSettings().Normalize()
	for _, sess := range long {
		if sess.EstimatedMinutes < s.MinSessionMinutes || sess.EstimatedMinutes > s.MaxSessionMinutes {
			t.Fatalf("session of %d min outside [%d, %d]", sess.EstimatedMinutes, s.MinSessionMinutes, s.MaxSessionMinutes)
		}
	}
	if got := totalMinutes(long); got != 120 {
		t.Fatalf("minutes sum to %d", got)
	}
}

func TestReadingSplitsOnlyAboveMax(t *testing.T) {
	one := GenerateSessions(item("r1", model.CategoryReading, 90, refNow.AddDate(0, 0, 2)), DefaultSettings())
	if len(one) != 1 {
		t.Fatalf("90 min reading: got %d sessions", len(one))
	}
	many := GenerateSessions(item("r2", model.CategoryReading, 200, refNow.AddDate(0, 0, 2)), DefaultSettings())
	if len(many) != 3 {
		t.Fatalf("200 min reading: got %d sessions, want 3", len(many))
	}
	if many[2].EstimatedMinutes != 200-2*66 {
		t.Fatalf("remainder not on last session: %+v", many)
	}
}

func TestCustomBreakdownTakesPrecedence(t *testing.T) {
	target := refNow.AddDate(0, 0, 4)
	it := item("p", model.CategoryExam, 270, refNow.AddDate(0, 0, 14))
	it.Breakdown = []model.BreakdownStep{
		{Title: "Research", ExpectedMinutes: 60},
		{Title: "Design", ExpectedMinutes: 90, TargetDate: &target},
		{Title: "Build", ExpectedMinutes: 120},
	}
	sessions := GenerateSessions(it, DefaultSettings())
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
	assertIndices(t, sessions)
	for i, want := range []string{"Research", "Design", "Build"} {
		if sessions[i].Title != want {
			t.Fatalf("session %d title %q, want %q", i, sessions[i].Title, want)
		}
	}
	if !sessions[1].Due.Equal(target) {
		t.Fatalf("target date not applied: %v", sessions[1].Due)
	}
	if !sessions[0].Due.Equal(it.Due) {
		t.Fatalf("due not inherited: %v", sessions[0].Due)
	}
}

func TestZeroEffortYieldsAdvisorySession(t *testing.T) {
	for _, minutes := range []int{0, -30} {
		sessions := GenerateSessions(item("z", model.CategoryExam, minutes, refNow.AddDate(0, 0, 1)), DefaultSettings())
		if len(sessions) != 1 {
			t.Fatalf("%d min: got %d sessions, want 1", minutes, len(sessions))
		}
		if sessions[0].EstimatedMinutes != 0 || sessions[0].SessionCount != 1 {
			t.Fatalf("unexpected advisory session %+v", sessions[0])
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	it := item("d", model.CategoryExam, 240, refNow.AddDate(0, 0, 7))
	a := GenerateSessions(it, DefaultSettings())
	b := GenerateSessions(it, DefaultSettings())
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("session %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
