package scheduling

import "time"

// Trigger is an input to the appointment status machine. Date triggers come
// from the day rollover worker; the rest come from explicit user actions.
type Trigger string

const (
	TriggerPastDate   Trigger = "past_date"
	TriggerSameDay    Trigger = "same_day"
	TriggerFutureDate Trigger = "future_date"

	TriggerConfirm          Trigger = "confirm"
	TriggerCheckIn          Trigger = "check_in"
	TriggerCheckOut         Trigger = "check_out"
	TriggerCancel           Trigger = "cancel"
	TriggerClose            Trigger = "close"
	TriggerNeedsReschedule  Trigger = "needs_rescheduling"
)

type transitionKey struct {
	From    Status
	Trigger Trigger
}

// transitions is the full (current, trigger) -> next table. Anything not
// listed is rejected, except terminal self-loops which are handled in
// Transition so repeated cancels stay idempotent.
var transitions = map[transitionKey]Status{
	// date rollover
	{StatusScheduled, TriggerSameDay}:        StatusOpen,
	{StatusScheduled, TriggerPastDate}:       StatusNoShow,
	{StatusConfirmed, TriggerPastDate}:       StatusNoShow,
	{StatusOpen, TriggerPastDate}:            StatusNoShow,
	{StatusCheckedIn, TriggerPastDate}:       StatusNoShow,
	{StatusNeedsReschedule, TriggerPastDate}: StatusNoShow,

	// rescheduled appointments re-enter the date-driven flow
	{StatusNeedsReschedule, TriggerFutureDate}: StatusScheduled,
	{StatusNeedsReschedule, TriggerSameDay}:    StatusConfirmed,

	// explicit actions
	{StatusScheduled, TriggerConfirm}:  StatusConfirmed,
	{StatusOpen, TriggerConfirm}:       StatusConfirmed,
	{StatusScheduled, TriggerCheckIn}:  StatusCheckedIn,
	{StatusConfirmed, TriggerCheckIn}:  StatusCheckedIn,
	{StatusOpen, TriggerCheckIn}:       StatusCheckedIn,
	{StatusCheckedIn, TriggerCheckOut}: StatusCheckedOut,

	{StatusScheduled, TriggerNeedsReschedule}: StatusNeedsReschedule,
	{StatusConfirmed, TriggerNeedsReschedule}: StatusNeedsReschedule,
	{StatusOpen, TriggerNeedsReschedule}:      StatusNeedsReschedule,
	{StatusNoShow, TriggerNeedsReschedule}:    StatusNeedsReschedule,

	{StatusScheduled, TriggerCancel}:       StatusCancelled,
	{StatusConfirmed, TriggerCancel}:       StatusCancelled,
	{StatusOpen, TriggerCancel}:            StatusCancelled,
	{StatusCheckedIn, TriggerCancel}:       StatusCancelled,
	{StatusNoShow, TriggerCancel}:          StatusCancelled,
	{StatusUnavailable, TriggerCancel}:     StatusCancelled,
	{StatusNeedsReschedule, TriggerCancel}: StatusCancelled,

	{StatusCheckedOut, TriggerClose}: StatusClosed,
	{StatusConfirmed, TriggerClose}:  StatusClosed,
	{StatusOpen, TriggerClose}:       StatusClosed,
	{StatusCheckedIn, TriggerClose}:  StatusClosed,
}

// Transition resolves the next status. Terminal states are sticky: any
// trigger leaves them unchanged without error, which makes cancelling a
// cancelled appointment an idempotent no-op. Date triggers that have no row
// for the current status also leave it unchanged (a Confirmed appointment
// stays Confirmed on its own day).
func Transition(current Status, trigger Trigger) (Status, error) {
	if current.Terminal() {
		return current, nil
	}
	if next, ok := transitions[transitionKey{current, trigger}]; ok {
		return next, nil
	}
	switch trigger {
	case TriggerPastDate, TriggerSameDay, TriggerFutureDate:
		return current, nil
	}
	return current, ErrInvalidStatusTransition
}

// DateTrigger classifies an appointment date against today.
func DateTrigger(date, today time.Time) Trigger {
	d, t := DateOnly(date), DateOnly(today)
	switch {
	case d.Before(t):
		return TriggerPastDate
	case d.After(t):
		return TriggerFutureDate
	default:
		return TriggerSameDay
	}
}

// InitialStatus derives the status for a brand new appointment.
// Unavailability blocks are always Unavailable; everything else is
// date-driven.
func InitialStatus(a Appointment, today time.Time) Status {
	if a.IsBlock() {
		return StatusUnavailable
	}
	switch DateTrigger(a.Date, today) {
	case TriggerSameDay:
		return StatusConfirmed
	case TriggerFutureDate:
		return StatusScheduled
	default:
		return StatusNoShow
	}
}
