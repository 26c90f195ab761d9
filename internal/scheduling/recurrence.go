package scheduling

import (
	"fmt"
	"time"
)

type Frequency string

const (
	Daily   Frequency = "Daily"
	Weekly  Frequency = "Weekly"
	Monthly Frequency = "Monthly"
	Yearly  Frequency = "Yearly"
)

// RecurrenceSpec describes a recurring appointment series.
type RecurrenceSpec struct {
	RepeatOn       Frequency
	Interval       int            // repeat every N units, minimum 1
	Weekdays       []time.Weekday // Weekly only
	Until          *time.Time     // inclusive end date
	MaxOccurrences int            // per weekday for Weekly, total otherwise
	From           TimeOfDay
	To             TimeOfDay
}

func (s RecurrenceSpec) Validate() error {
	switch s.RepeatOn {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("%w: unknown repeat frequency %q", ErrValidation, s.RepeatOn)
	}
	if s.RepeatOn == Weekly && len(s.Weekdays) == 0 {
		return &MandatoryError{Field: "weekdays"}
	}
	if s.Until == nil && s.MaxOccurrences <= 0 {
		return fmt.Errorf("%w: recurrence needs an until date or max occurrences", ErrValidation)
	}
	if s.To <= s.From {
		return fmt.Errorf("%w: to time %s must be after from time %s", ErrValidation, s.To, s.From)
	}
	return nil
}

// CandidateDate is one occurrence of an expanded series. Booked marks dates
// whose slot is already taken; they stay in the result for review but are
// skipped at creation time.
type CandidateDate struct {
	Date   time.Time
	From   TimeOfDay
	To     TimeOfDay
	Booked bool
}

// hard ceiling on the day-by-day walk, roughly ten years
const maxExpansionSteps = 3700

// ExpandDates walks day by day from base and returns the occurrence dates of
// the series plus whether the practitioner schedule admitted the requested
// window at all. Dates outside the schedule windows and holidays are skipped.
// Weekly series keep an independent occurrence counter per selected weekday
// and, once a full cycle of selected weekdays is exhausted, jump ahead by the
// repeat interval in weeks. The until boundary is inclusive: the walk stops
// once the generated date reaches it. maxDates caps the result size.
func ExpandDates(spec RecurrenceSpec, base time.Time, schedule PractitionerSchedule, isHoliday func(time.Time) bool, now time.Time, maxDates int) ([]time.Time, bool, error) {
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}

	interval := spec.Interval
	if interval < 1 {
		interval = 1
	}
	if maxDates <= 0 {
		maxDates = maxExpansionSteps
	}

	weekly := spec.RepeatOn == Weekly
	counters := make(map[time.Weekday]int, len(spec.Weekdays))
	count := 0

	var dates []time.Time
	availableAny := false

	next := DateOnly(base)
	var firstWeekDate time.Time
	remainingCycle := len(spec.Weekdays)

	pastUntil := func(d time.Time) bool {
		return spec.Until != nil && !d.Before(DateOnly(*spec.Until))
	}
	withinUntil := func(d time.Time) bool {
		return spec.Until == nil || !d.After(DateOnly(*spec.Until))
	}
	allWeekdaysDone := func() bool {
		if spec.MaxOccurrences <= 0 {
			return false
		}
		for _, wd := range spec.Weekdays {
			if counters[wd] < spec.MaxOccurrences {
				return false
			}
		}
		return true
	}

	for steps := 0; steps < maxExpansionSteps && len(dates) < maxDates; steps++ {
		// today's occurrences must still be in the future
		if SameDate(next, now) && spec.From <= TimeOfDayFrom(now) {
			next = next.AddDate(0, 0, 1)
			continue
		}

		allowed := scheduleAllows(schedule.Slots, next.Weekday(), spec.From, spec.To)
		if allowed {
			availableAny = true
		}
		if !allowed || isHoliday(next) {
			if pastUntil(next) {
				break
			}
			next = next.AddDate(0, 0, 1)
			continue
		}

		if weekly {
			wd := next.Weekday()
			if !containsWeekday(spec.Weekdays, wd) {
				if pastUntil(next) {
					break
				}
				next = next.AddDate(0, 0, 1)
				continue
			}
			if spec.MaxOccurrences > 0 && counters[wd] >= spec.MaxOccurrences {
				if allWeekdaysDone() {
					break
				}
				next = next.AddDate(0, 0, 1)
				continue
			}

			if withinUntil(next) {
				dates = append(dates, next)
				if remainingCycle == len(spec.Weekdays) {
					firstWeekDate = next
				}
				remainingCycle--
				counters[wd]++
			}

			if pastUntil(next) || allWeekdaysDone() {
				break
			}

			if remainingCycle == 0 {
				remainingCycle = len(spec.Weekdays)
				if interval > 1 {
					next = firstWeekDate.AddDate(0, 0, 7*interval)
					continue
				}
			}
			next = next.AddDate(0, 0, 1)
			continue
		}

		if withinUntil(next) {
			dates = append(dates, next)
			count++
		}
		if pastUntil(next) {
			break
		}
		if spec.MaxOccurrences > 0 && count >= spec.MaxOccurrences {
			break
		}

		switch spec.RepeatOn {
		case Daily:
			next = next.AddDate(0, 0, interval)
		case Monthly:
			next = next.AddDate(0, interval, 0)
		case Yearly:
			next = next.AddDate(interval, 0, 0)
		}
	}

	return dates, availableAny, nil
}

func containsWeekday(set []time.Weekday, wd time.Weekday) bool {
	for _, w := range set {
		if w == wd {
			return true
		}
	}
	return false
}
