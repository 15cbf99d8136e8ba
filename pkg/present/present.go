// Package present derives what a chat view shows from the raw message set:
// day buckets in display order and a stable avatar per author.
package present

import (
	"sort"
	"time"

	"communitychat/pkg/models"
	"communitychat/pkg/timeutil"
)

// DayGroup is one calendar day of visible messages, oldest first.
type DayGroup struct {
	Label    string
	Day      time.Time // local midnight
	Messages []models.Message
}

// Grouper buckets messages by local calendar day.
type Grouper struct {
	clock  timeutil.Clock
	loc    *time.Location
	locale Locale
}

// NewGrouper returns a Grouper. A nil clock is the system clock and a nil
// location is time.Local.
func NewGrouper(clock timeutil.Clock, loc *time.Location, locale Locale) *Grouper {
	if clock == nil {
		clock = timeutil.System
	}
	if loc == nil {
		loc = time.Local
	}
	if locale.Today == "" {
		locale = English
	}
	return &Grouper{clock: clock, loc: loc, locale: locale}
}

// Group drops deleted messages, orders the rest by creation time (ties by
// ID) and splits them into labelled days.
func (g *Grouper) Group(messages []models.Message) []DayGroup {
	visible := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !m.Deleted {
			visible = append(visible, m)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].CreatedAt != visible[j].CreatedAt {
			return visible[i].CreatedAt < visible[j].CreatedAt
		}
		return visible[i].ID < visible[j].ID
	})

	today := midnight(g.clock.Now().In(g.loc))
	var groups []DayGroup
	for _, m := range visible {
		day := midnight(timeutil.FromMillis(m.CreatedAt).In(g.loc))
		if n := len(groups); n == 0 || !groups[n-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Label: g.label(day, today), Day: day})
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, m)
	}
	return groups
}

func (g *Grouper) label(day, today time.Time) string {
	switch {
	case day.Equal(today):
		return g.locale.Today
	case day.Equal(today.AddDate(0, 0, -1)):
		return g.locale.Yesterday
	}
	return g.locale.FormatDay(day, day.Year() != today.Year())
}

// Clock returns the time (HH:MM) a message was sent, in the grouper's zone.
func (g *Grouper) Clock(m models.Message) string {
	return FormatClock(m.CreatedAt, g.loc)
}

// FormatClock renders unix milliseconds as 24h HH:MM in loc.
func FormatClock(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return timeutil.FromMillis(ms).In(loc).Format("15:04")
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
