package scheduling

import "github.com/google/uuid"

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not conflict, so back-to-back bookings
// are always allowed.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && s2 < e1
}

func sameID(a *uuid.UUID, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// inScope reports whether an existing appointment shares a scope with the
// proposed one: same practitioner, same service unit, or same patient
// (patient-level duplicate-booking prevention).
func inScope(proposed, existing Appointment) bool {
	if sameID(proposed.Practitioner, existing.Practitioner) {
		return true
	}
	if sameID(proposed.ServiceUnit, existing.ServiceUnit) {
		return true
	}
	return proposed.Patient != uuid.Nil && proposed.Patient == existing.Patient
}

// CheckOverlap scans existing same-date appointments for collisions with the
// proposed one. Rules, in order:
//
//   - terminal-state appointments never conflict;
//   - an unavailability block in scope rejects any regular booking outright;
//   - a service unit with overlapping appointments enabled admits up to its
//     capacity of concurrent bookings for distinct patients;
//   - anything left is a plain overlap conflict naming every collider.
//
// unit may be nil when the proposed appointment has no service unit.
func CheckOverlap(proposed Appointment, existing []Appointment, unit *ServiceUnit) error {
	ps, pe := proposed.Interval()

	var conflicts []Conflict
	for _, ex := range existing {
		if ex.ID == proposed.ID || ex.Status.Terminal() {
			continue
		}
		if !SameDate(ex.Date, proposed.Date) || !inScope(proposed, ex) {
			continue
		}

		es, ee := ex.Interval()
		if !Overlaps(ps, pe, es, ee) {
			continue
		}

		if ex.IsBlock() && !proposed.IsBlock() {
			return &UnavailableError{Block: ex.ID}
		}

		kind := ConflictBooking
		if ex.IsBlock() {
			kind = ConflictUnavailable
		}
		conflicts = append(conflicts, Conflict{ID: ex.ID, Kind: kind})
	}

	if len(conflicts) == 0 {
		return nil
	}

	if unit != nil && proposed.ServiceUnit != nil && unit.OverlapAppointments {
		capacity := unit.Capacity
		if capacity < 1 {
			capacity = 1
		}

		// Concurrent bookings in the same unit for distinct patients count
		// against the capacity and stop being conflicts while under it.
		unitConflicts := make(map[uuid.UUID]bool)
		concurrent := 0
		for _, c := range conflicts {
			ex := findByID(existing, c.ID)
			if ex == nil || ex.IsBlock() {
				continue
			}
			if sameID(ex.ServiceUnit, proposed.ServiceUnit) && ex.Patient != proposed.Patient {
				unitConflicts[c.ID] = true
				concurrent++
			}
		}

		if concurrent > 0 {
			if concurrent >= capacity {
				return &MaximumCapacityError{ServiceUnit: *proposed.ServiceUnit, Capacity: capacity}
			}
			remaining := conflicts[:0]
			for _, c := range conflicts {
				if !unitConflicts[c.ID] {
					remaining = append(remaining, c)
				}
			}
			conflicts = remaining
		}
	}

	if len(conflicts) > 0 {
		return &OverlapError{Conflicts: conflicts}
	}
	return nil
}

func findByID(appointments []Appointment, id uuid.UUID) *Appointment {
	for i := range appointments {
		if appointments[i].ID == id {
			return &appointments[i]
		}
	}
	return nil
}
