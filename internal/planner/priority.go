package planner

import (
	"time"

	"studyplanner/internal/model"
)

// Score weights. Due-date proximity dominates, then category, then urgency.
const (
	proximityWeight = 0.5
	categoryWeight  = 0.3
	urgencyWeight   = 0.2
)

// Score returns the placement priority of a session at time now. Higher
// scores are placed first.
func Score(s model.Session, now time.Time) float64 {
	return proximityWeight*proximity(s.Due, now) +
		categoryWeight*categoryScore(s.Category) +
		urgencyWeight*urgencyScore(s.Urgency)
}

// proximity is 1 for work due now or overdue and decays with days left.
func proximity(due, now time.Time) float64 {
	days := due.Sub(now).Hours() / 24
	if days < 0 {
		days = 0
	}
	return 1 / (1 + days)
}

func categoryScore(c model.Category) float64 {
	switch c {
	case model.CategoryExam:
		return 1.0
	case model.CategoryPracticeTest:
		return 0.9
	case model.CategoryProject:
		return 0.8
	case model.CategoryQuiz:
		return 0.7
	case model.CategoryReview:
		return 0.6
	case model.CategoryHomework:
		return 0.5
	case model.CategoryReading:
		return 0.4
	default:
		return 0.4
	}
}

func urgencyScore(u model.Urgency) float64 {
	switch u {
	case model.UrgencyCritical:
		return 1.0
	case model.UrgencyHigh:
		return 0.75
	case model.UrgencyMedium:
		return 0.5
	case model.UrgencyLow:
		return 0.25
	default:
		return 0.5
	}
}
