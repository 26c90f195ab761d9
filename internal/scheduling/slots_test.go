package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func weekdaySchedule(slots ...ScheduleSlot) PractitionerSchedule {
	return PractitionerSchedule{
		ID:           uuid.New(),
		Practitioner: uuid.New(),
		Slots:        slots,
	}
}

func TestAvailableSlots_WeekdayFilter(t *testing.T) {
	// 2025-01-01 is a Wednesday.
	date := day(2025, 1, 1)
	now := day(2024, 12, 1)

	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 0), To: mins(9, 30)},
		ScheduleSlot{Weekday: time.Thursday, From: mins(10, 0), To: mins(10, 30)},
	)

	slots := AvailableSlots(schedule, nil, date, now)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Start != mins(9, 0) {
		t.Fatalf("expected the Wednesday slot, got start %s", slots[0].Start)
	}
}

func TestAvailableSlots_PastSlotsExcludedToday(t *testing.T) {
	date := day(2025, 1, 1)
	now := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 0), To: mins(9, 30)},
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 30), To: mins(10, 0)},
		ScheduleSlot{Weekday: time.Wednesday, From: mins(10, 0), To: mins(10, 30)},
	)

	slots := AvailableSlots(schedule, nil, date, now)
	if len(slots) != 1 {
		t.Fatalf("expected only the 10:00 slot, got %d slots", len(slots))
	}
	if slots[0].Start != mins(10, 0) {
		t.Fatalf("expected 10:00, got %s", slots[0].Start)
	}
}

func TestAvailableSlots_OccupiedExcluded(t *testing.T) {
	date := day(2025, 1, 1)
	now := day(2024, 12, 1)
	prac := uuid.New()

	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 0), To: mins(9, 30)},
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 30), To: mins(10, 0)},
	)

	booked := newBooking(&prac, uuid.New(), date, mins(9, 0), mins(9, 30))
	cancelled := newBooking(&prac, uuid.New(), date, mins(9, 30), mins(10, 0))
	cancelled.Status = StatusCancelled

	slots := AvailableSlots(schedule, []Appointment{booked, cancelled}, date, now)
	if len(slots) != 1 {
		t.Fatalf("expected 1 free slot, got %d", len(slots))
	}
	if slots[0].Start != mins(9, 30) {
		t.Fatalf("cancelled booking should free its slot, got %s", slots[0].Start)
	}
}

func TestAvailableSlots_EmptyIsNotAnError(t *testing.T) {
	date := day(2025, 1, 1)
	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Monday, From: mins(9, 0), To: mins(9, 30)},
	)

	slots := AvailableSlots(schedule, nil, date, day(2024, 12, 1))
	if len(slots) != 0 {
		t.Fatalf("expected no availability, got %d slots", len(slots))
	}
}

func TestAvailableSlots_DisabledSchedule(t *testing.T) {
	date := day(2025, 1, 1)
	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 0), To: mins(9, 30)},
	)
	schedule.Disabled = true

	if slots := AvailableSlots(schedule, nil, date, day(2024, 12, 1)); slots != nil {
		t.Fatalf("disabled schedule should yield nothing, got %v", slots)
	}
}

func TestAvailableSlots_SortedAscending(t *testing.T) {
	date := day(2025, 1, 1)
	schedule := weekdaySchedule(
		ScheduleSlot{Weekday: time.Wednesday, From: mins(14, 0), To: mins(14, 30)},
		ScheduleSlot{Weekday: time.Wednesday, From: mins(9, 0), To: mins(9, 30)},
		ScheduleSlot{Weekday: time.Wednesday, From: mins(11, 0), To: mins(11, 30)},
	)

	slots := AvailableSlots(schedule, nil, date, day(2024, 12, 1))
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i-1].Start >= slots[i].Start {
			t.Fatalf("slots not sorted: %s before %s", slots[i-1].Start, slots[i].Start)
		}
	}
}
