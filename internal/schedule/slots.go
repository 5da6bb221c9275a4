// Package schedule converts free-text dosing frequencies into concrete daily
// reminder slots.
package schedule

import (
	"strings"
	"time"
)

// Slot is a named time-of-day anchor for a daily dose.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotNight     Slot = "night"
)

// slotClock maps each slot to its wall-clock hour: after breakfast, after
// lunch, after dinner.
var slotClock = map[Slot]int{
	SlotMorning:   8,
	SlotAfternoon: 13,
	SlotNight:     20,
}

// slotKeywords lists the frequency phrases that select each slot. Matching is
// case-insensitive substring containment; a phrase may select several slots
// ("twice daily" covers both morning and night).
var slotKeywords = []struct {
	slot     Slot
	keywords []string
}{
	{SlotMorning, []string{"morning", "twice daily", "bd", "once daily", "od"}},
	{SlotAfternoon, []string{"afternoon", "thrice daily", "tid"}},
	{SlotNight, []string{"night", "evening", "twice daily", "bd"}},
}

// Resolve maps a frequency description to its slot set, ordered morning,
// afternoon, night. A description that matches nothing falls back to
// {morning, night} so that a dose never silently vanishes.
func Resolve(frequency string) []Slot {
	freq := strings.ToLower(frequency)

	var slots []Slot
	for _, entry := range slotKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(freq, keyword) {
				slots = append(slots, entry.slot)
				break
			}
		}
	}

	if len(slots) == 0 {
		return []Slot{SlotMorning, SlotNight}
	}
	return slots
}

// At anchors the slot to now's calendar date in now's location. The trigger is
// always today, even when the slot time has already passed; the sweep on the
// next tick retires such a reminder instead of rolling it forward.
func (s Slot) At(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), slotClock[s], 0, 0, 0, now.Location())
}
