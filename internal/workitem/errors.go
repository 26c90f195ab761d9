package workitem

import "errors"

var (
	ErrWorkItemNotFound   = errors.New("work item not found")
	ErrAlreadyClaimed     = errors.New("work item already claimed")
	ErrAlreadyCompleted   = errors.New("work item already completed")
	ErrCancelled          = errors.New("work item is cancelled")
	ErrInvalidEventStatus = errors.New("invalid work item event status")
	ErrInvalidFilters     = errors.New("invalid filters, must be valid JSON")
	ErrInvalidUID         = errors.New("invalid UPS instance UID")
)
