package storage

import (
	"errors"
	"fmt"
	"time"

	"weatherbot/internal/recurrence"
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Subscription is one persisted recurring weather delivery.
//
// Seq is unique and monotonically increasing within an owner's list and is
// never reused after deletion. The 1-based display index users see in
// listings is positional (creation order) and compacts after a delete.
type Subscription struct {
	Owner          string
	Seq            int64
	ChatID         int64
	ThreadID       int
	City           string
	RawDescription string
	Rule           recurrence.Rule
	CreatedAt      time.Time
	Enabled        bool
}

// TriggerName is the scheduler key for this subscription's live trigger.
func (s Subscription) TriggerName() string {
	return fmt.Sprintf("weather:sub:%s:%d", s.Owner, s.Seq)
}

// ErrorKind classifies store failures.
type ErrorKind int

const (
	// PersistFailure means the durable write failed; the mutation did not happen.
	PersistFailure ErrorKind = iota
	// NotFound means the referenced subscription index does not exist.
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case PersistFailure:
		return "persist_failure"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type StoreError struct {
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: %v", e.Kind, e.Err)
	}
	return "storage: " + e.Kind.String()
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFound store error.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == NotFound
}

func persistErr(err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: PersistFailure, Err: err}
}
