package crawler

import (
	"context"
	"errors"
)

// Page Source failures.
var (
	ErrTimeout         = errors.New("page source timeout")
	ErrElementNotFound = errors.New("element not found")
	ErrStaleHandle     = errors.New("stale item handle")
	ErrSessionLost     = errors.New("page source session lost")
)

// Engine failures.
var (
	ErrTargetNotFound = errors.New("target not found")
	ErrInvalidTarget  = errors.New("invalid target configuration")
	ErrNotifierFailed = errors.New("notifier send failed")
	ErrQueueClosed    = errors.New("queue closed")
)

// ErrorClass groups failures by how the crawl loop reacts to them.
type ErrorClass int

// Error classes, ordered from most to least recoverable.
const (
	ClassNone ErrorClass = iota
	// ClassPerItem skips one candidate and continues the loop.
	ClassPerItem
	// ClassPageAbort stops the current page but still summarizes the task.
	ClassPageAbort
	// ClassTransient ends the task early; the next tick retries.
	ClassTransient
	// ClassFatal ends the task and needs operator correction.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPerItem:
		return "per_item"
	case ClassPageAbort:
		return "page_abort"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps err onto the crawl loop's failure tiers.
// Unknown errors are transient so they never crash a worker.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrStaleHandle):
		return ClassPageAbort
	case errors.Is(err, ErrElementNotFound):
		return ClassPerItem
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrInvalidTarget):
		return ClassFatal
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrSessionLost),
		errors.Is(err, ErrNotifierFailed),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassTransient
	}
}
