package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEvent  = errors.New("malformed event")
	ErrUnknownMode     = errors.New("unknown extraction mode")
	ErrStreamTruncated = errors.New("extraction stream closed without a terminal event")
	ErrInvalidPage     = errors.New("invalid page index")
)

// MalformedEventError reports why an inbound body could not become a Job.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

func (e *MalformedEventError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedEvent, e.Err}
	}
	return []error{ErrMalformedEvent}
}
