// Package calstore is an external calendar backed by a single .ics file.
// It produces snapshots for reconciliation and applies sync plans.
//
// The planner cannot see who changed an entry, so every entry it writes
// carries a fingerprint of title, start and end. An entry whose fields no
// longer match its fingerprint has been edited by someone else and is
// reported as UserEdited. X-STUDYPLANNER-LOCKED:TRUE marks an explicit lock.
package calstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"studyplanner/internal/blocks"
	appLog "studyplanner/internal/log"
	"studyplanner/internal/model"
)

const (
	propFingerprint ical.ComponentProperty = "X-STUDYPLANNER-FINGERPRINT"
	propLocked      ical.ComponentProperty = "X-STUDYPLANNER-LOCKED"

	productID = "-//studyplanner//planner calendar//EN"
	uidDomain = "@studyplanner"
)

// ErrNotFound is returned when a plan updates an entry that is not in the
// calendar.
var ErrNotFound = errors.New("calstore: event not found")

// ApplyResult counts what Apply changed. Created maps block ids to the
// identifiers assigned to new entries.
type ApplyResult struct {
	Created map[string]string
	Updated int
	Deleted int
}

// Store reads and writes one calendar file. Apply calls are serialized.
type Store struct {
	path string
	loc  *time.Location
	now  func() time.Time
	mu   sync.Mutex
}

// New returns a Store for path. Times in snapshots are converted to loc.
func New(path string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{path: path, loc: loc, now: time.Now}
}

// Snapshot returns every entry overlapping window or starting inside it.
// A missing file is an empty calendar.
func (s *Store) Snapshot(window model.Interval) ([]model.ExternalEvent, error) {
	cal, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []model.ExternalEvent
	for _, ve := range cal.Events() {
		ev, err := s.toExternal(ve)
		if err != nil {
			appLog.Warn("calstore: skipping unreadable event", "path", s.path, "reason", err.Error())
			continue
		}
		iv := model.Interval{Start: ev.Start, End: ev.End}
		if !iv.Overlaps(window) && !window.Contains(ev.Start) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

// Apply executes plan against the file. Updates of unknown entries fail the
// whole plan before anything is written; deletions of unknown entries are
// ignored.
func (s *Store) Apply(plan model.SyncPlan) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ApplyResult{Created: make(map[string]string)}
	if plan.Empty() {
		return res, nil
	}

	cal, err := s.load()
	if err != nil {
		return res, err
	}

	byUID := make(map[string]*ical.VEvent)
	for _, ve := range cal.Events() {
		byUID[uidOf(ve)] = ve
	}
	for _, u := range plan.Upserts {
		if u.ExistingIdentifier == "" {
			continue
		}
		if _, ok := byUID[u.ExistingIdentifier]; !ok {
			return res, fmt.Errorf("%w: %s", ErrNotFound, u.ExistingIdentifier)
		}
	}

	now := s.now().UTC()

	deleted := make(map[string]bool, len(plan.Deletions))
	for _, id := range plan.Deletions {
		if _, ok := byUID[id]; ok {
			deleted[id] = true
		}
	}
	if len(deleted) > 0 {
		kept := cal.Components[:0]
		for _, c := range cal.Components {
			if ve, ok := c.(*ical.VEvent); ok && deleted[uidOf(ve)] {
				continue
			}
			kept = append(kept, c)
		}
		cal.Components = kept
		res.Deleted = len(deleted)
	}

	for _, u := range plan.Upserts {
		if u.ExistingIdentifier != "" {
			writeBlock(byUID[u.ExistingIdentifier], u.Block, now)
			res.Updated++
			continue
		}
		id := uuid.NewString() + uidDomain
		ve := cal.AddEvent(id)
		ve.SetCreatedTime(now)
		writeBlock(ve, u.Block, now)
		res.Created[u.Block.ID] = id
	}

	if err := s.save(cal); err != nil {
		return res, err
	}
	appLog.Info("calstore: plan applied", "path", s.path,
		"created", len(res.Created), "updated", res.Updated, "deleted", res.Deleted)
	return res, nil
}

func writeBlock(ve *ical.VEvent, b model.Block, now time.Time) {
	ve.SetDtStampTime(now)
	ve.SetModifiedAt(now)
	ve.SetStartAt(b.Start)
	ve.SetEndAt(b.End)
	ve.SetProperty(ical.ComponentPropertySummary, b.Title)
	ve.SetProperty(ical.ComponentPropertyDescription, b.Notes)
	ve.SetProperty(ical.ComponentPropertyUrl, blocks.MetadataURL(blocks.Metadata{
		BlockID: b.ID,
		Source:  blocks.Source,
		DayKey:  b.DayKey,
	}))
	ve.SetProperty(propFingerprint, fingerprint(b.Title, b.Start, b.End))
}

func (s *Store) toExternal(ve *ical.VEvent) (model.ExternalEvent, error) {
	ev := model.ExternalEvent{Identifier: uidOf(ve)}
	if ev.Identifier == "" {
		return ev, errors.New("missing UID")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	ev.Start = start.In(s.loc)
	ev.End = end.In(s.loc)
	ev.Title = textProp(ve, ical.ComponentPropertySummary)
	ev.Notes = textProp(ve, ical.ComponentPropertyDescription)
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		ev.URL = p.Value
	}
	if p := ve.GetProperty(propLocked); p != nil {
		ev.Locked = strings.EqualFold(strings.TrimSpace(p.Value), "TRUE")
	}

	if meta, ok := blocks.Parse(ev); ok && meta.PlannerOwned() {
		stored := ""
		if p := ve.GetProperty(propFingerprint); p != nil {
			stored = p.Value
		}
		ev.UserEdited = stored != fingerprint(ev.Title, ev.Start, ev.End)
	}
	return ev, nil
}

func (s *Store) load() (*ical.Calendar, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newCalendar(), nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return newCalendar(), nil
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("calstore: parse %s: %w", s.path, err)
	}
	return cal, nil
}

// save writes atomically via a temp file in the same directory.
func (s *Store) save(cal *ical.Calendar) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".studyplanner-cal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	return cal
}

func uidOf(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}

func textProp(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func fingerprint(title string, start, end time.Time) string {
	sum := sha256.Sum256([]byte(title + "|" + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:12])
}
