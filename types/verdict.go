package types

// Decision is the classification of a discovered resource. Verdicts are
// computed once per run and never recomputed: a resource classified
// Protected stays Protected even if its underlying state changes mid-run.
type Decision string

const (
	// DecisionProtected excludes the resource from deletion for the
	// whole run. Any single protection signal is sufficient.
	DecisionProtected Decision = "protected"
	// DecisionInUse skips the resource because something still alive,
	// and not itself part of this run, depends on it.
	DecisionInUse Decision = "in_use"
	// DecisionEligible is the default when no signal fires.
	DecisionEligible Decision = "eligible"
)

// Verdict pairs a decision with a human-readable reason.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
	// Blockers lists the live dependents behind an InUse verdict, so
	// the operator knows what to remove first.
	Blockers []string `json:"blockers,omitempty"`
}

// Protected builds a protection verdict.
func Protected(reason string) Verdict {
	return Verdict{Decision: DecisionProtected, Reason: reason}
}

// InUse builds an in-use verdict with its blocking dependents.
func InUse(reason string, blockers ...string) Verdict {
	return Verdict{Decision: DecisionInUse, Reason: reason, Blockers: blockers}
}

// Eligible builds the default verdict.
func Eligible() Verdict {
	return Verdict{Decision: DecisionEligible}
}
