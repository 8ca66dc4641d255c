package signing

import (
	"errors"
	"fmt"
)

// AccessError is fatal for a signing session: the signer link is missing or
// invalid and the only recourse is a terminal "cannot access" screen.
type AccessError struct {
	Reason string
}

func (e *AccessError) Error() string { return "signing: access denied: " + e.Reason }

// SubmitError wraps a failed submission call. The session state has been
// rolled back and the signer may retry.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return fmt.Sprintf("signing: submit failed: %v", e.Err) }
func (e *SubmitError) Unwrap() error { return e.Err }

// ValidationError reports the fields that block submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("signing: %d field(s) failed validation", len(e.Fields))
}

var (
	// ErrNotStarted is returned for field operations before Start.
	ErrNotStarted = errors.New("signing: session not started")
	// ErrAlreadySubmitted is returned once the session reached its terminal state.
	ErrAlreadySubmitted = errors.New("signing: session already submitted")
	// ErrSubmitInFlight guards against double submission.
	ErrSubmitInFlight = errors.New("signing: submission already in flight")
	// ErrConsentRequired blocks Start until the disclosure has been accepted.
	ErrConsentRequired = errors.New("signing: consent required before starting")
	// ErrFieldNotInSession is returned for fields outside the signer's scope.
	ErrFieldNotInSession = errors.New("signing: field not part of this session")
)
