package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/garage-keeper/internal/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ov(minutes ...int) []model.ReminderOverride {
	out := make([]model.ReminderOverride, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, model.ReminderOverride{Method: model.MethodPopup, Minutes: m})
	}
	return out
}

func TestDueOffsets_Scenario(t *testing.T) {
	t.Parallel()

	start := now.Add(55 * time.Minute)
	got := DueOffsets(start, ov(60), now, time.Hour)
	require.Equal(t, []int{60}, got)
}

func TestDueOffsets_Empty(t *testing.T) {
	t.Parallel()

	require.Empty(t, DueOffsets(now.Add(time.Hour), nil, now, time.Hour))
	require.Empty(t, Due(model.CalendarEvent{Start: now.Add(time.Hour)}, ov(60), now, time.Hour))
}

func TestDueOffsets_NotYetDue(t *testing.T) {
	t.Parallel()

	// trigger at now+1m
	require.Empty(t, DueOffsets(now.Add(61*time.Minute), ov(60), now, time.Hour))
	// trigger exactly now is due
	require.Equal(t, []int{60}, DueOffsets(now.Add(60*time.Minute), ov(60), now, time.Hour))
}

func TestDueOffsets_GraceBoundary(t *testing.T) {
	t.Parallel()

	grace := time.Hour
	// start = now + 30m, offset 90 → trigger = now - 60m = now - grace
	start := now.Add(30 * time.Minute)
	require.Equal(t, []int{90}, DueOffsets(start, ov(90), now, grace))

	// one microsecond earlier trigger
	startEarlier := start.Add(-time.Microsecond)
	require.Empty(t, DueOffsets(startEarlier, ov(90), now, grace))
}

func TestDueOffsets_StaleEventSkipped(t *testing.T) {
	t.Parallel()

	start := now.Add(-2 * time.Hour)
	// offsets whose trigger would fall in the window are still ignored
	require.Empty(t, DueOffsets(start, ov(0, 10, 60, 24*60), now, time.Hour))
}

func TestDueOffsets_StartedWithinGraceStillCounts(t *testing.T) {
	t.Parallel()

	start := now.Add(-10 * time.Minute)
	require.Equal(t, []int{0, 30}, DueOffsets(start, ov(30, 0, 120), now, time.Hour))
}

func TestDueOffsets_DedupSortAndNegative(t *testing.T) {
	t.Parallel()

	start := now.Add(5 * time.Minute)
	overrides := []model.ReminderOverride{
		{Method: model.MethodEmail, Minutes: 30},
		{Method: model.MethodPopup, Minutes: 10},
		{Method: model.MethodPopup, Minutes: 30},
		{Method: model.MethodPopup, Minutes: -5},
	}
	require.Equal(t, []int{10, 30}, DueOffsets(start, overrides, now, time.Hour))
	require.Equal(t, model.MethodEmail, MethodFor(overrides, 30))
	require.Equal(t, model.ReminderMethod(""), MethodFor(overrides, 99))
}

func TestDueOffsets_Deterministic(t *testing.T) {
	t.Parallel()

	start := now.Add(20 * time.Minute)
	first := DueOffsets(start, ov(60, 30, 15), now, time.Hour)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, DueOffsets(start, ov(60, 30, 15), now, time.Hour))
	}
}

func TestDueOffsets_ZeroGrace(t *testing.T) {
	t.Parallel()

	start := now.Add(15 * time.Minute)
	require.Equal(t, []int{15}, DueOffsets(start, ov(15, 16), now, 0))
	require.Equal(t, []int{15}, DueOffsets(start, ov(15), now, -time.Minute))
}

func TestDue_UsesDefaults(t *testing.T) {
	t.Parallel()

	ev := model.CalendarEvent{
		Start:     now.Add(25 * time.Minute),
		Reminders: &model.ReminderConfig{UseDefault: true},
	}
	require.Equal(t, []int{30}, Due(ev, ov(30), now, time.Hour))

	ev.Reminders.Overrides = ov(10)
	require.Empty(t, Due(ev, ov(30), now, time.Hour))
}
