package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an operation needs an active broker
	// session and there is none. Rejected, never fatal.
	ErrNotConnected = errors.New("not connected")

	// ErrQueueClosed is returned by Enqueue after the pacing queue shut down.
	ErrQueueClosed = errors.New("pacing queue closed")
)

// PacingTimeoutError means enqueued work did not execute before the caller's
// wait expired. The work itself is not cancelled and may still complete;
// only the waiting stops.
type PacingTimeoutError struct {
	Wait time.Duration
}

func (e *PacingTimeoutError) Error() string {
	return fmt.Sprintf("pacing queue: no execution within %s", e.Wait)
}

// BrokerCallError wraps a failed broker call. It reaches only the caller
// that submitted the work; the execution lane and sibling legs continue.
type BrokerCallError struct {
	Op  string
	Err error
}

func (e *BrokerCallError) Error() string {
	return "broker " + e.Op + ": " + e.Err.Error()
}

func (e *BrokerCallError) Unwrap() error {
	return e.Err
}

// MalformedTickError marks an incoming push payload without usable
// identifying fields. The tick is dropped; the batch continues.
type MalformedTickError struct {
	Reason string
}

func (e *MalformedTickError) Error() string {
	return "malformed tick: " + e.Reason
}

// MalformedKeyError marks a cache key that does not parse into either the
// option or the spot shape. Such rows are skipped during delta production.
type MalformedKeyError struct {
	Key string
}

func (e *MalformedKeyError) Error() string {
	return "malformed tick key: " + e.Key
}
