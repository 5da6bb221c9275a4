package bot

import (
	"testing"
	"time"

	"github.com/pathakanu/medremind/internal/model"
)

func TestShouldRunRetention(t *testing.T) {
	t.Parallel()
	// 2025-06-02 is a Monday.
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"monday during the retention hour", time.Date(2025, time.June, 2, 1, 0, 0, 0, time.UTC), true},
		{"monday late in the retention hour", time.Date(2025, time.June, 2, 1, 59, 30, 0, time.UTC), true},
		{"monday after the retention hour", time.Date(2025, time.June, 2, 2, 0, 0, 0, time.UTC), false},
		{"monday midnight", time.Date(2025, time.June, 2, 0, 59, 0, 0, time.UTC), false},
		{"tuesday during the retention hour", time.Date(2025, time.June, 3, 1, 0, 0, 0, time.UTC), false},
		{"sunday during the retention hour", time.Date(2025, time.June, 1, 1, 30, 0, 0, time.UTC), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldRunRetention(tc.now); got != tc.want {
				t.Fatalf("shouldRunRetention(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestRunRetentionSweepHonoursConfiguredWindow(t *testing.T) {
	t.Parallel()
	b := newTestBot(t, &fakeAnalyzer{}, &fakeMessenger{})

	now := time.Now()
	seed := func(medicine string, trigger time.Time) {
		t.Helper()
		r := model.Reminder{
			ChatID:    "u",
			Medicine:  medicine,
			Dosage:    "1 tablet",
			Message:   "Take " + medicine + " 1 tablet",
			Time:      model.NewTimestamp(trigger),
			CreatedAt: model.NewTimestamp(trigger),
		}
		if err := b.reminders.ReplaceForMedicine("u", medicine, []model.Reminder{r}); err != nil {
			t.Fatalf("seed %s: %v", medicine, err)
		}
	}
	seed("Stale", now.Add(-31*24*time.Hour))
	seed("Recent", now.Add(-29*24*time.Hour))

	b.RunRetentionSweep(now)

	due := b.reminders.DueWithin(now, 40*24*time.Hour)
	if len(due) != 1 || due[0].Medicine != "Recent" {
		t.Fatalf("expected only the 29-day-old reminder kept, got %+v", due)
	}
}
