package scheduling

import (
	"context"
	"log"
)

// RecurrenceQueue defers bulk recurring creation out of the request path.
// Enqueue is fire-and-forget: the caller only gets a boolean acknowledgment,
// and the consumer logs and skips failed occurrences.
type RecurrenceQueue struct {
	svc  *Service
	jobs chan RecurrenceRequest
}

func NewRecurrenceQueue(svc *Service, size int) *RecurrenceQueue {
	if size <= 0 {
		size = 1
	}
	return &RecurrenceQueue{
		svc:  svc,
		jobs: make(chan RecurrenceRequest, size),
	}
}

// Enqueue returns false when the queue is full; nothing is partially applied.
func (q *RecurrenceQueue) Enqueue(req RecurrenceRequest) bool {
	select {
	case q.jobs <- req:
		return true
	default:
		return false
	}
}

// Run consumes jobs until the context is cancelled.
func (q *RecurrenceQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q.jobs:
			if err := q.svc.CreateRecurring(ctx, req); err != nil {
				log.Printf("recurring creation job failed: %v", err)
			}
		}
	}
}
