package scheduling

import (
	"sort"
	"time"
)

// AvailableSlots computes the bookable slots of a schedule on a date.
// A template slot is included when its weekday matches, its start is still in
// the future (for today), and no live booking already sits at that exact
// start. The result is sorted ascending; an empty result means no
// availability and is not an error.
func AvailableSlots(schedule PractitionerSchedule, bookings []Appointment, date time.Time, now time.Time) []TimeSlot {
	if schedule.Disabled {
		return nil
	}

	occupied := make(map[TimeOfDay]bool)
	for _, b := range bookings {
		if b.Status.Terminal() || !SameDate(b.Date, date) {
			continue
		}
		occupied[b.Start] = true
	}

	today := SameDate(date, now)
	cutoff := TimeOfDayFrom(now)

	var slots []TimeSlot
	for _, tpl := range schedule.Slots {
		if tpl.Weekday != date.Weekday() {
			continue
		}
		if today && tpl.From <= cutoff {
			continue
		}
		if occupied[tpl.From] {
			continue
		}
		slots = append(slots, TimeSlot{Start: tpl.From, End: tpl.To, ServiceUnit: schedule.ServiceUnit})
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

// scheduleAllows reports whether any template window on the date's weekday
// intersects the requested [from,to) window.
func scheduleAllows(slots []ScheduleSlot, weekday time.Weekday, from, to TimeOfDay) bool {
	for _, s := range slots {
		if s.Weekday != weekday {
			continue
		}
		if Overlaps(from, to, s.From, s.To) {
			return true
		}
	}
	return false
}
