// Package workitems loads work items from a YAML file.
//
//	items:
//	  - id: calc-final
//	    title: Calculus final
//	    category: exam
//	    due: 2025-12-18 09:00
//	    estimated_minutes: 480
//	    urgency: critical
//	    locked_to_due_date: true
//	  - id: essay
//	    title: History essay
//	    category: homework
//	    due: 2025-12-15T23:59:00+01:00
//	    estimated_minutes: 180
//	    breakdown:
//	      - title: Outline
//	        expected_minutes: 45
//	        target_date: 2025-12-12
//
// Dates without a zone are read in the planner's location.
package workitems

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"studyplanner/internal/model"
)

var ErrEmptyPath = errors.New("workitems: path is empty")

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type fileStep struct {
	Title           string `yaml:"title"`
	ExpectedMinutes int    `yaml:"expected_minutes"`
	TargetDate      string `yaml:"target_date"`
}

type fileItem struct {
	ID                string     `yaml:"id"`
	Title             string     `yaml:"title"`
	Category          string     `yaml:"category"`
	Due               string     `yaml:"due"`
	EstimatedMinutes  int        `yaml:"estimated_minutes"`
	Urgency           string     `yaml:"urgency"`
	IsLockedToDueDate bool       `yaml:"locked_to_due_date"`
	Breakdown         []fileStep `yaml:"breakdown"`
}

type file struct {
	Items []fileItem `yaml:"items"`
}

// Load reads and validates the work item file. A missing file yields no
// items.
func Load(path string, loc *time.Location) ([]model.WorkItem, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	items, err := Decode(data, loc)
	if err != nil {
		return nil, fmt.Errorf("workitems: %s: %w", path, err)
	}
	return items, nil
}

// Decode parses a YAML document. Every problem found is reported, joined.
func Decode(data []byte, loc *time.Location) ([]model.WorkItem, error) {
	if loc == nil {
		loc = time.Local
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	out := make([]model.WorkItem, 0, len(f.Items))
	seen := make(map[string]bool, len(f.Items))
	var errs []error
	for i, fi := range f.Items {
		item, err := convert(fi, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d (%q): %w", i, fi.ID, err))
			continue
		}
		if seen[item.ID] {
			errs = append(errs, fmt.Errorf("item %d: duplicate id %q", i, item.ID))
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func convert(fi fileItem, loc *time.Location) (model.WorkItem, error) {
	item := model.WorkItem{
		ID:                strings.TrimSpace(fi.ID),
		Title:             strings.TrimSpace(fi.Title),
		Category:          model.Category(strings.ToLower(strings.TrimSpace(fi.Category))),
		EstimatedMinutes:  fi.EstimatedMinutes,
		Urgency:           model.Urgency(strings.ToLower(strings.TrimSpace(fi.Urgency))),
		IsLockedToDueDate: fi.IsLockedToDueDate,
	}

	switch {
	case item.ID == "":
		return item, errors.New("id is required")
	case strings.ContainsAny(item.ID, ", \t\n"):
		return item, errors.New("id must not contain commas or whitespace")
	case item.Title == "":
		return item, errors.New("title is required")
	case !item.Category.Valid():
		return item, fmt.Errorf("unknown category %q", fi.Category)
	case item.EstimatedMinutes < 0:
		return item, errors.New("estimated_minutes must not be negative")
	}

	switch item.Urgency {
	case "":
		item.Urgency = model.UrgencyMedium
	case model.UrgencyLow, model.UrgencyMedium, model.UrgencyHigh, model.UrgencyCritical:
	default:
		return item, fmt.Errorf("unknown urgency %q", fi.Urgency)
	}

	due, err := parseDate(fi.Due, loc)
	if err != nil {
		return item, fmt.Errorf("due: %w", err)
	}
	item.Due = due

	for j, st := range fi.Breakdown {
		step := model.BreakdownStep{Title: strings.TrimSpace(st.Title), ExpectedMinutes: st.ExpectedMinutes}
		if step.ExpectedMinutes < 0 {
			return item, fmt.Errorf("breakdown %d: expected_minutes must not be negative", j)
		}
		if st.TargetDate != "" {
			t, err := parseDate(st.TargetDate, loc)
			if err != nil {
				return item, fmt.Errorf("breakdown %d: target_date: %w", j, err)
			}
			step.TargetDate = &t
		}
		item.Breakdown = append(item.Breakdown, step)
	}
	return item, nil
}

// parseDate accepts RFC 3339 or a zone-less date/time read in loc. A bare
// date means the end of that day.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, v)
		} else {
			t, err = time.ParseInLocation(layout, v, loc)
		}
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.AddDate(0, 0, 1).Add(-time.Minute)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", v)
}
