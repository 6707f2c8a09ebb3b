package engine

import (
	"errors"
	"fmt"

	"db-sync/internal/retry"
)

// Kind classifies why a run stopped.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindConnectivity  Kind = "connectivity"
	KindSchema        Kind = "schema"
	KindTransient     Kind = "transient"
	KindBatch         Kind = "batch"
	KindRow           Kind = "row"
)

// ErrRunInProgress rejects a run while another one is active on the same orchestrator.
var ErrRunInProgress = errors.New("a run is already in progress")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first engine error in the chain. Exhausted
// retries without an engine wrapper count as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return KindTransient
	}
	return ""
}

// classify picks the kind for an I/O failure during a batch.
func classify(err error) Kind {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return KindTransient
	}
	return KindBatch
}
