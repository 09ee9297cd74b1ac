package planner

import (
	"fmt"

	"studyplanner/internal/model"
)

// GenerateSessions decomposes one work item into ordered study sessions.
//
//   - A non-empty custom breakdown always wins: one session per step.
//   - Zero or negative effort yields a single zero-length advisory session
//     so the item still has a due-date anchor downstream.
//   - Otherwise the category policy decides the session count and the
//     effort is spread evenly, with the rounding remainder on the last one.
//
// The returned sessions always carry SessionIndex 0..n-1 and SessionCount n.
func GenerateSessions(item model.WorkItem, settings Settings) []model.Session {
	s := settings.Normalize()

	if len(item.Breakdown) > 0 {
		return fromBreakdown(item)
	}

	if item.EstimatedMinutes <= 0 {
		return []model.Session{newSession(item, 0, 1, item.Title, 0)}
	}

	n := sessionCount(item.Category, item.EstimatedMinutes, s)
	return split(item, n)
}

func fromBreakdown(item model.WorkItem) []model.Session {
	n := len(item.Breakdown)
	out := make([]model.Session, 0, n)
	for i, step := range item.Breakdown {
		title := step.Title
		if title == "" {
			title = fmt.Sprintf("%s (Step %d/%d)", item.Title, i+1, n)
		}
		minutes := step.ExpectedMinutes
		if minutes < 0 {
			minutes = 0
		}
		sess := newSession(item, i, n, title, minutes)
		if step.TargetDate != nil && !step.TargetDate.IsZero() {
			sess.Due = *step.TargetDate
		}
		out = append(out, sess)
	}
	return out
}

// sessionCount applies the category policy. Every category must be listed;
// unknown values fall through to the reading rules.
func sessionCount(c model.Category, total int, s Settings) int {
	bySize := ceilDiv(total, s.MaxSessionMinutes)

	var n int
	switch c {
	case model.CategoryExam:
		// Review is spread across passes even for short exams.
		n = max(bySize, minExamSessions)
	case model.CategoryQuiz:
		n = min(bySize, maxQuizSessions)
	case model.CategoryHomework, model.CategoryPracticeTest:
		if total < s.HomeworkSplitThresholdMinutes {
			n = 1
			break
		}
		n = max(bySize, 2)
		// Keep every part at least MinSessionMinutes long.
		n = min(n, total/s.MinSessionMinutes)
	case model.CategoryReading, model.CategoryReview, model.CategoryProject:
		n = readingCount(total, s)
	default:
		n = readingCount(total, s)
	}

	b := s.bounds(c)
	if b.Min > 0 && n < b.Min {
		n = b.Min
	}
	if b.Max > 0 && n > b.Max {
		n = b.Max
	}
	if n < 1 {
		n = 1
	}
	return n
}

func readingCount(total int, s Settings) int {
	if total <= s.MaxSessionMinutes {
		return 1
	}
	return ceilDiv(total, s.MaxSessionMinutes)
}

func split(item model.WorkItem, n int) []model.Session {
	base := item.EstimatedMinutes / n
	out := make([]model.Session, 0, n)
	for i := 0; i < n; i++ {
		minutes := base
		if i == n-1 {
			minutes = item.EstimatedMinutes - base*(n-1)
		}
		title := item.Title
		if n > 1 {
			title = fmt.Sprintf("%s (%s %d/%d)", item.Title, passLabel(item.Category), i+1, n)
		}
		out = append(out, newSession(item, i, n, title, minutes))
	}
	return out
}

func passLabel(c model.Category) string {
	switch c {
	case model.CategoryExam, model.CategoryQuiz, model.CategoryReview:
		return "Review"
	case model.CategoryPracticeTest:
		return "Practice"
	case model.CategoryReading:
		return "Reading"
	case model.CategoryHomework, model.CategoryProject:
		return "Part"
	default:
		return "Part"
	}
}

func newSession(item model.WorkItem, index, count int, title string, minutes int) model.Session {
	return model.Session{
		WorkItemID:        item.ID,
		SessionIndex:      index,
		SessionCount:      count,
		Title:             title,
		Due:               item.Due,
		EstimatedMinutes:  minutes,
		IsLockedToDueDate: item.IsLockedToDueDate,
		Category:          item.Category,
		Urgency:           item.Urgency,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 1
	}
	return (a + b - 1) / b
}
