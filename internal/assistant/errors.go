package assistant

import (
	"errors"
	"fmt"
)

// Kind classifies a prediction failure.
type Kind int

const (
	// ThreadError means no conversation thread could be obtained.
	ThreadError Kind = iota + 1
	// RunTimeout means the run did not finish within the poll budget.
	RunTimeout
	// RunFailed means the run ended in a state other than completed.
	RunFailed
	// ExternalFault covers any other error from the assistant backend.
	ExternalFault
)

func (k Kind) String() string {
	switch k {
	case ThreadError:
		return "thread_error"
	case RunTimeout:
		return "run_timeout"
	case RunFailed:
		return "run_failed"
	case ExternalFault:
		return "external_fault"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	errRunTimeout        = errors.New("run timeout")
	errUnexpectedStatus  = errors.New("unexpected run status")
	errNoAssistantAnswer = errors.New("no assistant message in thread")
)

// Failure is the error returned by the orchestrator.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Code is the client-facing error code. Backend detail never leaves the server.
func (f *Failure) Code() string {
	if f.Kind == ThreadError {
		return "thread_error"
	}
	return "openai_error"
}

// CodeOf returns the client-facing code for any orchestrator error.
func CodeOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code()
	}
	return "openai_error"
}
