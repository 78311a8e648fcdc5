// Package reminder decides which reminder offsets of an event are due.
package reminder

import (
	"sort"
	"time"

	"github.com/and161185/garage-keeper/internal/model"
)

// DueOffsets returns the ascending set of override offsets (in minutes) whose
// trigger time start-minutes lies within [now-grace, now].
//
// Events that started before now-grace yield nothing regardless of their
// overrides, so a sweep resumed after long downtime does not replay history.
func DueOffsets(start time.Time, overrides []model.ReminderOverride, now time.Time, grace time.Duration) []int {
	if len(overrides) == 0 {
		return nil
	}
	if grace < 0 {
		grace = 0
	}
	floor := now.Add(-grace)
	if start.Before(floor) {
		return nil
	}

	seen := make(map[int]struct{}, len(overrides))
	var out []int
	for _, o := range overrides {
		if o.Minutes < 0 {
			continue
		}
		if _, dup := seen[o.Minutes]; dup {
			continue
		}
		trigger := start.Add(-time.Duration(o.Minutes) * time.Minute)
		if trigger.After(now) || trigger.Before(floor) {
			continue
		}
		seen[o.Minutes] = struct{}{}
		out = append(out, o.Minutes)
	}
	sort.Ints(out)
	return out
}

// Due is DueOffsets applied to a stored event.
func Due(ev model.CalendarEvent, defaults []model.ReminderOverride, now time.Time, grace time.Duration) []int {
	return DueOffsets(ev.Start, ev.Reminders.Effective(defaults), now, grace)
}

// MethodFor returns the method of the first override with the given offset.
func MethodFor(overrides []model.ReminderOverride, minutes int) model.ReminderMethod {
	for _, o := range overrides {
		if o.Minutes == minutes {
			return o.Method
		}
	}
	return ""
}
