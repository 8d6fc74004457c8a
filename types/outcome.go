package types

import "fmt"

// OutcomeKind is the terminal classification of one delete call. Provider
// adapters map raw API errors to a kind exactly once, at the boundary; the
// engine never inspects provider error strings.
type OutcomeKind string

const (
	// OutcomeDeleted means the delete call succeeded.
	OutcomeDeleted OutcomeKind = "deleted"
	// OutcomeNotFound means the resource was already gone. Treated
	// identically to Deleted everywhere (idempotent success).
	OutcomeNotFound OutcomeKind = "not_found"
	// OutcomeBlocked means a dependency or in-use condition prevented
	// deletion; the resource stays in the working set for the next pass.
	OutcomeBlocked OutcomeKind = "blocked"
	// OutcomeFailed means the call failed for another reason.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the tagged result of a single delete call.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
	Err    error       `json:"-"`
	// Fatal marks a Failed outcome as non-retryable (auth failures,
	// malformed credentials). Fatal failures leave the working set
	// immediately instead of riding out the pass budget.
	Fatal bool `json:"fatal,omitempty"`
}

// Deleted returns a success outcome.
func Deleted() Outcome { return Outcome{Kind: OutcomeDeleted} }

// NotFound returns an idempotent-success outcome.
func NotFound() Outcome { return Outcome{Kind: OutcomeNotFound} }

// Blocked returns a retryable blocked outcome with the given reason.
func Blocked(reason string) Outcome {
	return Outcome{Kind: OutcomeBlocked, Reason: reason}
}

// Failed returns a retryable failure outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: errString(err), Err: err}
}

// Fatal returns a non-retryable failure outcome.
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: errString(err), Err: err, Fatal: true}
}

// Succeeded reports whether the outcome counts as a successful deletion.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeDeleted || o.Kind == OutcomeNotFound
}

// Retryable reports whether the resource should remain in the working set.
func (o Outcome) Retryable() bool {
	if o.Succeeded() {
		return false
	}
	return !o.Fatal
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ClearKind classifies one clearReference call.
type ClearKind string

const (
	ClearCleared        ClearKind = "cleared"
	ClearAlreadyCleared ClearKind = "already_cleared"
	ClearFailed         ClearKind = "failed"
)

// ClearResult is the tagged result of clearing one outbound reference.
type ClearResult struct {
	Kind ClearKind
	Err  error
}

// Cleared reports whether the reference is gone, whether we removed it or
// it was already absent.
func (c ClearResult) Cleared() bool {
	return c.Kind == ClearCleared || c.Kind == ClearAlreadyCleared
}
