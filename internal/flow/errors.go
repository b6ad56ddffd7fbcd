package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable matches any provider failure: transport, non-2xx or bad payload.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistence matches any store failure while replacing a timeframe bucket.
	ErrPersistence = errors.New("persistence failure")
)

type UpstreamError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s unavailable (status %d): %v", e.Provider, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s unavailable (status %d): %s", e.Provider, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s unavailable: %v", e.Provider, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

type PersistenceError struct {
	Timeframe string
	Op        string
	Rows      int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s timeframe %s (%d rows): %v", e.Op, e.Timeframe, e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
