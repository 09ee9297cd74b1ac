package planner

import (
	"studyplanner/internal/model"
)

// CountBounds limits how many sessions a category may be split into.
// Max <= 0 means unbounded.
type CountBounds struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Settings is the study plan configuration (StudyPlanSettings). Zero values
// are replaced with defaults by the engine; see DefaultSettings.
type Settings struct {
	MinSessionMinutes int `yaml:"min_session_minutes" json:"min_session_minutes"`
	MaxSessionMinutes int `yaml:"max_session_minutes" json:"max_session_minutes"`

	// CategoryBounds overrides per-category session count bounds. Exams
	// always get at least 3 sessions and quizzes at most 2.
	CategoryBounds map[model.Category]CountBounds `yaml:"category_bounds,omitempty" json:"category_bounds,omitempty"`

	// HomeworkSplitThresholdMinutes is the effort at or above which homework
	// and practice work is split into several sessions.
	HomeworkSplitThresholdMinutes int `yaml:"homework_split_threshold_minutes" json:"homework_split_threshold_minutes"`

	// MergeGapMinutes is the largest gap between two sessions that the block
	// builder still merges into one calendar entry.
	MergeGapMinutes int `yaml:"merge_gap_minutes" json:"merge_gap_minutes"`

	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// UnitMinutes is the scheduling grid size. It must divide 60.
	UnitMinutes int `yaml:"unit_minutes" json:"unit_minutes"`

	// MaxStudyMinutesPerDay caps placed study time per calendar day.
	// Negative disables the cap.
	MaxStudyMinutesPerDay int `yaml:"max_study_minutes_per_day" json:"max_study_minutes_per_day"`

	// OverdueGraceMinutes lets work items that are not locked to their due
	// date be placed up to this long after it.
	OverdueGraceMinutes int `yaml:"overdue_grace_minutes" json:"overdue_grace_minutes"`
}

const (
	defaultMinSessionMinutes      = 30
	defaultMaxSessionMinutes      = 90
	defaultHomeworkSplitThreshold = 60
	defaultMergeGapMinutes        = 15
	defaultHorizonDays            = 14
	defaultUnitMinutes            = 30
	defaultMaxStudyMinutesPerDay  = 360

	minExamSessions = 3
	maxQuizSessions = 2
)

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MinSessionMinutes:             defaultMinSessionMinutes,
		MaxSessionMinutes:             defaultMaxSessionMinutes,
		CategoryBounds:                defaultBounds(),
		HomeworkSplitThresholdMinutes: defaultHomeworkSplitThreshold,
		MergeGapMinutes:               defaultMergeGapMinutes,
		HorizonDays:                   defaultHorizonDays,
		UnitMinutes:                   defaultUnitMinutes,
		MaxStudyMinutesPerDay:         defaultMaxStudyMinutesPerDay,
	}
}

func defaultBounds() map[model.Category]CountBounds {
	return map[model.Category]CountBounds{
		model.CategoryExam: {Min: minExamSessions},
		model.CategoryQuiz: {Min: 1, Max: maxQuizSessions},
	}
}

// Normalize returns a copy with zero or inconsistent values replaced. The
// receiver is not modified.
func (s Settings) Normalize() Settings {
	out := s
	if out.MinSessionMinutes <= 0 {
		out.MinSessionMinutes = defaultMinSessionMinutes
	}
	if out.MaxSessionMinutes <= 0 {
		out.MaxSessionMinutes = defaultMaxSessionMinutes
	}
	if out.MaxSessionMinutes < out.MinSessionMinutes {
		out.MaxSessionMinutes = out.MinSessionMinutes
	}
	if out.HomeworkSplitThresholdMinutes <= 0 {
		out.HomeworkSplitThresholdMinutes = defaultHomeworkSplitThreshold
	}
	// A split must leave every part at least MinSessionMinutes long.
	if out.HomeworkSplitThresholdMinutes < 2*out.MinSessionMinutes {
		out.HomeworkSplitThresholdMinutes = 2 * out.MinSessionMinutes
	}
	if out.MergeGapMinutes < 0 {
		out.MergeGapMinutes = 0
	}
	if out.HorizonDays <= 0 {
		out.HorizonDays = defaultHorizonDays
	}
	if out.UnitMinutes <= 0 || out.UnitMinutes > 60 || 60%out.UnitMinutes != 0 {
		out.UnitMinutes = defaultUnitMinutes
	}
	if out.MaxStudyMinutesPerDay == 0 {
		out.MaxStudyMinutesPerDay = defaultMaxStudyMinutesPerDay
	}
	if out.OverdueGraceMinutes < 0 {
		out.OverdueGraceMinutes = 0
	}

	bounds := defaultBounds()
	for c, b := range s.CategoryBounds {
		bounds[c] = b
	}
	exam := bounds[model.CategoryExam]
	if exam.Min < minExamSessions {
		exam.Min = minExamSessions
	}
	if exam.Max > 0 && exam.Max < exam.Min {
		exam.Max = exam.Min
	}
	bounds[model.CategoryExam] = exam
	quiz := bounds[model.CategoryQuiz]
	if quiz.Max <= 0 || quiz.Max > maxQuizSessions {
		quiz.Max = maxQuizSessions
	}
	if quiz.Min > quiz.Max {
		quiz.Min = quiz.Max
	}
	bounds[model.CategoryQuiz] = quiz
	out.CategoryBounds = bounds

	return out
}

func (s Settings) bounds(c model.Category) CountBounds {
	return s.CategoryBounds[c]
}
