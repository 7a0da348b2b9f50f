// Package calendar talks to the remote calendar backend and exposes the
// read-only event projection the rest of the bot works with.
package calendar

import (
	"sort"
	"strings"
	"time"

	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Event is the transient projection of a remote calendar entry. The backend
// owns the record; the bot only reads it and issues targeted writes.
type Event struct {
	ID      string
	Start   time.Time
	Summary string
	Muted   bool
}

// wire shapes (Google Calendar v3 events resource, trimmed to what we use)

type apiEvent struct {
	ID                 string                 `json:"id,omitempty"`
	Summary            string                 `json:"summary,omitempty"`
	Start              *apiEventTime          `json:"start,omitempty"`
	End                *apiEventTime          `json:"end,omitempty"`
	ExtendedProperties *apiExtendedProperties `json:"extendedProperties,omitempty"`
}

type apiEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type apiExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

type apiEventList struct {
	Items []apiEvent `json:"items"`
}

const mutePropertyKey = "mute"

// isMuted reads the mute flag from event metadata. Absent or malformed
// values mean "not muted" so missing metadata never suppresses a reminder.
func isMuted(props *apiExtendedProperties) bool {
	if props == nil || props.Private == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(props.Private[mutePropertyKey])) {
	case "v", "true", "1", "✓", "✔":
		return true
	default:
		return false
	}
}

func muteValue(muted bool) string {
	if muted {
		return "v"
	}
	return ""
}

// resolveStart converts the wire start field into a zoned timestamp.
// All-day events resolve to midnight in loc. ok=false means the event has no
// resolvable start and must be excluded from scheduling.
func resolveStart(t *apiEventTime, loc *time.Location) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if s := strings.TrimSpace(t.DateTime); s != "" {
		dt, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, false
		}
		return dt.In(loc), true
	}
	if s := strings.TrimSpace(t.Date); s != "" {
		dt, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return time.Time{}, false
		}
		return dt, true
	}
	return time.Time{}, false
}

func (c *Client) toEvents(items []apiEvent) []Event {
	out := make([]Event, 0, len(items))
	for _, it := range items {
		start, ok := resolveStart(it.Start, c.loc)
		if !ok {
			// Never crash the caller on a malformed event; it just doesn't
			// participate in scheduling or listings.
			c.log.Debug("event with unresolvable start skipped", logx.String("event_id", it.ID))
			continue
		}
		out = append(out, Event{
			ID:      it.ID,
			Start:   start,
			Summary: strings.TrimSpace(it.Summary),
			Muted:   isMuted(it.ExtendedProperties),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
