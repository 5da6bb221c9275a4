package schedule

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := map[string][]Slot{
		"twice daily":                  {SlotMorning, SlotNight},
		"Twice Daily":                  {SlotMorning, SlotNight},
		"1 tab BD":                     {SlotMorning, SlotNight},
		"once daily":                   {SlotMorning},
		"od after food":                {SlotMorning},
		"every morning":                {SlotMorning},
		"thrice daily":                 {SlotAfternoon},
		"tid with meals":               {SlotAfternoon},
		"at night":                     {SlotNight},
		"every evening":                {SlotNight},
		"morning and night":            {SlotMorning, SlotNight},
		"morning, afternoon and night": {SlotMorning, SlotAfternoon, SlotNight},
		// "once daily in the morning" matches two morning keywords but must
		// contribute the slot only once.
		"once daily in the morning": {SlotMorning},
		// No keyword match falls back to the safe default.
		"as directed": {SlotMorning, SlotNight},
		"":            {SlotMorning, SlotNight},
	}

	for frequency, want := range cases {
		got := Resolve(frequency)
		if len(got) != len(want) {
			t.Fatalf("Resolve(%q) = %v, want %v", frequency, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("Resolve(%q)[%d] = %v, want %v", frequency, i, got[i], want[i])
			}
		}
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	t.Parallel()

	for _, frequency := range []string{"", "weekly", "whenever needed", "???"} {
		if got := Resolve(frequency); len(got) == 0 {
			t.Fatalf("Resolve(%q) returned an empty slot set", frequency)
		}
	}
}

func TestSlotAt(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, time.March, 14, 16, 45, 12, 0, loc)

	cases := map[Slot]int{
		SlotMorning:   8,
		SlotAfternoon: 13,
		SlotNight:     20,
	}

	for slot, hour := range cases {
		got := slot.At(now)
		want := time.Date(2025, time.March, 14, hour, 0, 0, 0, loc)
		if !got.Equal(want) {
			t.Fatalf("%s.At(%v) = %v, want %v", slot, now, got, want)
		}
	}

	// Anchoring stays on today's date even when the slot already passed.
	morning := SlotMorning.At(now)
	if morning.Day() != now.Day() || !morning.Before(now) {
		t.Fatalf("expected morning slot anchored to today in the past, got %v", morning)
	}
}
