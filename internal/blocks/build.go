package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"studyplanner/internal/model"
)

// Build converts scheduled sessions into calendar blocks.
//
// Sessions are walked in start order. A session joins the current block when
// it starts at most gapMinutes after the block ends, has the same category,
// falls on the same day and has the same pinned state. Otherwise the block
// is closed and a new one begins.
func Build(sessions []model.ScheduledSession, gapMinutes int) []model.Block {
	if len(sessions) == 0 {
		return nil
	}
	if gapMinutes < 0 {
		gapMinutes = 0
	}
	gap := time.Duration(gapMinutes) * time.Minute

	ordered := make([]model.ScheduledSession, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].Start.Before(ordered[j].Start)
		}
		return ordered[i].Session.Key().String() < ordered[j].Session.Key().String()
	})

	var out []model.Block
	var cur []model.ScheduledSession
	var curEnd time.Time

	flush := func() {
		if len(cur) > 0 {
			out = append(out, newBlock(cur, curEnd))
		}
		cur = nil
	}

	for _, s := range ordered {
		if len(cur) > 0 && joins(cur[0], curEnd, s, gap) {
			cur = append(cur, s)
			if s.End.After(curEnd) {
				curEnd = s.End
			}
			continue
		}
		flush()
		cur = []model.ScheduledSession{s}
		curEnd = s.End
	}
	flush()

	return out
}

func joins(first model.ScheduledSession, curEnd time.Time, next model.ScheduledSession, gap time.Duration) bool {
	if next.Session.Category != first.Session.Category {
		return false
	}
	if next.Pinned != first.Pinned {
		return false
	}
	if dayKey(next.Start) != dayKey(first.Start) {
		return false
	}
	d := next.Start.Sub(curEnd)
	return d >= 0 && d <= gap
}

func newBlock(sessions []model.ScheduledSession, end time.Time) model.Block {
	first := sessions[0]
	category := first.Session.Category
	title := Title(category)

	keys := make([]model.SessionKey, len(sessions))
	summary := make([]string, 0, len(sessions))
	for i, s := range sessions {
		keys[i] = s.Session.Key()
		summary = append(summary, fmt.Sprintf("- %s (Due: %s)", s.Session.Title, formatDue(s.Session.Due)))
	}

	meta := Metadata{
		Version: NotesVersion,
		BlockID: BlockID(title, keys),
		Source:  Source,
		DayKey:  dayKey(first.Start),
		Kind:    title,
		Items:   keys,
	}

	return model.Block{
		ID:       meta.BlockID,
		Title:    title,
		Start:    first.Start,
		End:      end,
		Notes:    EncodeNotes(meta, summary),
		DayKey:   meta.DayKey,
		Category: category,
		Sessions: keys,
		Pinned:   first.Pinned,
	}
}

// Title is the generic calendar title for a category. It never includes the
// work item title so entries stay stable when items are renamed.
func Title(c model.Category) string {
	return c.Label() + " Session"
}

// BlockID derives a stable identifier from the block kind and its member
// sessions. Times are left out, so a block whose sessions
// move is updated in place rather than recreated.
func BlockID(kind string, keys []model.SessionKey) string {
	sorted := make([]string, len(keys))
	for i, k := range keys {
		sorted[i] = k.String()
	}
	sort.Strings(sorted)

	h := sha256.New()
	fmt.Fprintf(h, "v%d|kind=%s|items=", NotesVersion, kind)
	for i, k := range sorted {
		if i > 0 {
			h.Write([]byte{','})
		}
		h.Write([]byte(k))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
