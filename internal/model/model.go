package model

import (
	"strconv"
	"strings"
	"time"
)

// Category is the closed set of work item kinds the planner understands.
type Category string

const (
	CategoryExam         Category = "exam"
	CategoryPracticeTest Category = "practice_test"
	CategoryProject      Category = "project"
	CategoryQuiz         Category = "quiz"
	CategoryReview       Category = "review"
	CategoryHomework     Category = "homework"
	CategoryReading      Category = "reading"
)

// Categories lists every known category in descending planning weight.
var Categories = []Category{
	CategoryExam,
	CategoryPracticeTest,
	CategoryProject,
	CategoryQuiz,
	CategoryReview,
	CategoryHomework,
	CategoryReading,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Label is the generic, title-independent name used for calendar entries.
func (c Category) Label() string {
	switch c {
	case CategoryExam:
		return "Exam"
	case CategoryPracticeTest:
		return "Practice Test"
	case CategoryProject:
		return "Project"
	case CategoryQuiz:
		return "Quiz"
	case CategoryReview:
		return "Review"
	case CategoryHomework:
		return "Homework"
	case CategoryReading:
		return "Reading"
	default:
		return "Coursework"
	}
}

// Urgency is the caller-assigned urgency tier of a work item.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// BreakdownStep is one caller-supplied step of a custom session breakdown.
type BreakdownStep struct {
	Title           string     `yaml:"title" json:"title"`
	ExpectedMinutes int        `yaml:"expected_minutes" json:"expected_minutes"`
	TargetDate      *time.Time `yaml:"target_date,omitempty" json:"target_date,omitempty"`
}

// WorkItem is a due, effort-estimated piece of work. The planner never
// mutates it.
type WorkItem struct {
	ID                string          `yaml:"id" json:"id"`
	Title             string          `yaml:"title" json:"title"`
	Category          Category        `yaml:"category" json:"category"`
	Due               time.Time       `yaml:"due" json:"due"`
	EstimatedMinutes  int             `yaml:"estimated_minutes" json:"estimated_minutes"`
	Urgency           Urgency         `yaml:"urgency" json:"urgency"`
	IsLockedToDueDate bool            `yaml:"locked_to_due_date" json:"locked_to_due_date"`
	Breakdown         []BreakdownStep `yaml:"breakdown,omitempty" json:"breakdown,omitempty"`
}

// SessionKey identifies one session of one work item across planning passes.
type SessionKey struct {
	WorkItemID   string
	SessionIndex int
}

// String renders the key as "<work item id>#<index>", the form used inside
// calendar notes. Work item ids must not contain ',' or '#'.
func (k SessionKey) String() string {
	return k.WorkItemID + "#" + strconv.Itoa(k.SessionIndex)
}

// ParseSessionKey is the inverse of SessionKey.String.
func ParseSessionKey(s string) (SessionKey, bool) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return SessionKey{}, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return SessionKey{}, false
	}
	return SessionKey{WorkItemID: s[:i], SessionIndex: n}, true
}

// Session is one generated unit of study work, before placement.
type Session struct {
	WorkItemID        string    `json:"work_item_id"`
	SessionIndex      int       `json:"session_index"`
	SessionCount      int       `json:"session_count"`
	Title             string    `json:"title"`
	Due               time.Time `json:"due"`
	EstimatedMinutes  int       `json:"estimated_minutes"`
	IsLockedToDueDate bool      `json:"locked_to_due_date"`
	Category          Category  `json:"category"`
	Urgency           Urgency   `json:"urgency"`
}

// Key returns the stable identity of the session.
func (s Session) Key() SessionKey {
	return SessionKey{WorkItemID: s.WorkItemID, SessionIndex: s.SessionIndex}
}

// Duration is the session length; negative estimates count as zero.
func (s Session) Duration() time.Duration {
	if s.EstimatedMinutes <= 0 {
		return 0
	}
	return time.Duration(s.EstimatedMinutes) * time.Minute
}

// ScheduledSession binds a Session to a concrete [Start, End) interval.
type ScheduledSession struct {
	Session Session   `json:"session"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Pinned marks a session carried over from a user-edited, locked or
	// running calendar entry. Pinned sessions are never re-placed.
	Pinned bool `json:"pinned,omitempty"`
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether t lies within the closed range [Start, End].
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// Block is the calendar-facing unit produced from one or more scheduled
// sessions. Blocks are rebuilt on every pass and never persisted here.
type Block struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Notes  string    `json:"notes"`
	DayKey string    `json:"day_key"`

	Category Category     `json:"category"`
	Sessions []SessionKey `json:"-"`
	Pinned   bool         `json:"pinned,omitempty"`
}

// ExternalEvent is a read-only snapshot of one entry in the external
// calendar store.
type ExternalEvent struct {
	Identifier string
	Title      string
	Start      time.Time
	End        time.Time
	Notes      string
	URL        string

	// UserEdited is set when the store detects a human change since the
	// planner last wrote the entry. Locked is an explicit user lock.
	UserEdited bool
	Locked     bool
}

// UserOwned reports whether the planner must leave the event alone.
func (e ExternalEvent) UserOwned() bool {
	return e.UserEdited || e.Locked
}

// Upsert creates (ExistingIdentifier == "") or updates a calendar entry.
type Upsert struct {
	Block              Block  `json:"block"`
	ExistingIdentifier string `json:"existing_identifier,omitempty"`
}

// SyncPlan is the minimal operation set that makes the external store match
// the desired blocks.
type SyncPlan struct {
	Upserts   []Upsert `json:"upserts"`
	Deletions []string `json:"deletions"`

	// Preserved lists planner-owned entries left untouched because a user
	// edited or locked them.
	Preserved []string `json:"preserved,omitempty"`
}

// Empty reports whether applying the plan would change nothing.
func (p SyncPlan) Empty() bool {
	return len(p.Upserts) == 0 && len(p.Deletions) == 0
}
