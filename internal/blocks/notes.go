package blocks

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"studyplanner/internal/model"
)

// Notes grammar, version 1. The external store has no custom fields, so the
// notes text is the only place identity survives a round trip:
//
//	[StudyPlanner]
//	v: 1
//	source: planner
//	block_id: <64 hex chars>
//	day_key: 2025-12-10
//	kind: Exam Session
//	items: exam-1#0,exam-1#1
//	[/StudyPlanner]
//
// Keys are case-insensitive and unknown keys are ignored. Anything outside
// the markers, such as text a user appends, is ignored too. block_id and
// source are required; a missing v means 1. New versions may add keys but
// must keep these ones readable.
const (
	MarkerStart = "[StudyPlanner]"
	MarkerEnd   = "[/StudyPlanner]"

	// Source is the provenance value written by this planner.
	Source = "planner"

	// NotesVersion is the grammar version written by EncodeNotes.
	NotesVersion = 1

	// URLScheme is used by stores that offer a URL field in addition to
	// notes, e.g. studyplanner://block?block_id=...&source=planner.
	URLScheme = "studyplanner"
)

// Metadata is the identity block embedded in a calendar entry.
type Metadata struct {
	Version int
	BlockID string
	Source  string
	DayKey  string
	Kind    string
	Items   []model.SessionKey
}

// PlannerOwned reports whether the entry was written by this planner.
func (m Metadata) PlannerOwned() bool {
	return m.Source == Source && m.BlockID != ""
}

// EncodeNotes renders the metadata block followed by a short human-readable
// summary of the block's sessions.
func EncodeNotes(m Metadata, summary []string) string {
	var b strings.Builder
	b.WriteString(MarkerStart)
	b.WriteString("\nv: ")
	b.WriteString(strconv.Itoa(NotesVersion))
	b.WriteString("\nsource: ")
	b.WriteString(m.Source)
	b.WriteString("\nblock_id: ")
	b.WriteString(m.BlockID)
	if m.DayKey != "" {
		b.WriteString("\nday_key: ")
		b.WriteString(m.DayKey)
	}
	if m.Kind != "" {
		b.WriteString("\nkind: ")
		b.WriteString(m.Kind)
	}
	if len(m.Items) > 0 {
		b.WriteString("\nitems: ")
		b.WriteString(joinKeys(m.Items))
	}
	b.WriteString("\n")
	b.WriteString(MarkerEnd)

	if len(summary) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(summary, "\n"))
	}
	return b.String()
}

// ParseNotes extracts the metadata block from free-form notes.
func ParseNotes(notes string) (Metadata, bool) {
	start := strings.Index(notes, MarkerStart)
	if start < 0 {
		return Metadata{}, false
	}
	body := notes[start+len(MarkerStart):]
	end := strings.Index(body, MarkerEnd)
	if end < 0 {
		return Metadata{}, false
	}
	body = body[:end]

	m := Metadata{Version: 1}
	for _, line := range strings.Split(body, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "v":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				m.Version = n
			}
		case "source":
			m.Source = value
		case "block_id":
			m.BlockID = value
		case "day_key":
			m.DayKey = value
		case "kind":
			m.Kind = value
		case "items":
			m.Items = splitKeys(value)
		}
	}
	if m.BlockID == "" || m.Source == "" {
		return Metadata{}, false
	}
	return m, true
}

// MetadataURL encodes the identity fields as a URL.
func MetadataURL(m Metadata) string {
	q := url.Values{}
	q.Set("block_id", m.BlockID)
	q.Set("source", m.Source)
	if m.DayKey != "" {
		q.Set("day_key", m.DayKey)
	}
	u := url.URL{Scheme: URLScheme, Host: "block", RawQuery: q.Encode()}
	return u.String()
}

// ParseURL is the inverse of MetadataURL.
func ParseURL(raw string) (Metadata, bool) {
	if raw == "" {
		return Metadata{}, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != URLScheme {
		return Metadata{}, false
	}
	q := u.Query()
	m := Metadata{
		Version: 1,
		BlockID: q.Get("block_id"),
		Source:  q.Get("source"),
		DayKey:  q.Get("day_key"),
	}
	if m.BlockID == "" || m.Source == "" {
		return Metadata{}, false
	}
	return m, true
}

// Parse reads identity from an external event, preferring the URL channel
// and falling back to notes. Items are only ever carried by notes.
func Parse(ev model.ExternalEvent) (Metadata, bool) {
	fromNotes, okNotes := ParseNotes(ev.Notes)
	if m, ok := ParseURL(ev.URL); ok {
		if okNotes && fromNotes.BlockID == m.BlockID {
			m.Items = fromNotes.Items
			m.Kind = fromNotes.Kind
		}
		return m, true
	}
	return fromNotes, okNotes
}

func joinKeys(keys []model.SessionKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

func splitKeys(s string) []model.SessionKey {
	var out []model.SessionKey
	for _, part := range strings.Split(s, ",") {
		if k, ok := model.ParseSessionKey(strings.TrimSpace(part)); ok {
			out = append(out, k)
		}
	}
	return out
}

func formatDue(t time.Time) string {
	return t.Format("Mon Jan 2 15:04")
}
