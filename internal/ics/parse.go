package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "studyplanner/internal/log"
)

// ParsedEvent is the normalized form of one VEVENT from a busy calendar.
// Recurrence is recorded here and expanded in expand.go.
type ParsedEvent struct {
	SourceID string

	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Free is set for TRANSP:TRANSPARENT events, which do not block time.
	Free bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
	IsOverride bool
}

// Parse reads an ICS payload. Malformed VEVENTs are logged and skipped;
// cancelled ones are dropped. Floating times are read in loc.
func Parse(sourceID string, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}
		ev, perr := parseVEvent(sourceID, ve, loc)
		if perr != nil {
			appLog.Warn("ics: skipping vevent", "source", sourceID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "source", sourceID, "event_count", len(events))
	return events, nil
}

func parseVEvent(sourceID string, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{SourceID: sourceID}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty("TRANSP"); p != nil {
		out.Free = strings.EqualFold(p.Value, "TRANSPARENT")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = floating(start, dtStart, loc)

	if end, err := ve.GetEndAt(); err == nil {
		out.End = floating(end, ve.GetProperty(ical.ComponentPropertyDtEnd), loc)
	}
	if !out.End.After(out.Start) {
		if out.AllDay {
			out.End = out.Start.AddDate(0, 0, 1)
		} else {
			out.End = out.Start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseTime(rid.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// floating re-reads times without TZID or Z suffix in loc; the library
// interprets them in UTC.
func floating(t time.Time, p *ical.IANAProperty, loc *time.Location) time.Time {
	if p == nil {
		return t
	}
	if _, ok := p.ICalParameters["TZID"]; ok {
		return t
	}
	if strings.HasSuffix(p.Value, "Z") {
		return t
	}
	if parsed, err := parseTime(p.Value, loc); err == nil {
		return parsed
	}
	return t
}

// parseTime handles the basic DATE / DATE-TIME / UTC forms.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
