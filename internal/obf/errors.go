// Package obf implements the obfuscation passes: independent rewrites over
// a module's IR, each registered with a name and a default-enable flag and
// composed by package pipeline into an ordered run.
package obf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Outcome classifies what a pass did to a specific target (a module or a
// function), mirroring the non-fatal half of the error taxonomy: most
// targets are simply modified, but a pass is allowed to decline a target
// without that being an error.
type Outcome int

const (
	// Modified means the pass rewrote the target.
	Modified Outcome = iota
	// NoOp means the pass inspected the target and found nothing to do --
	// not a failure, just an empty rewrite (e.g. String Encryption on a
	// module with no string literals).
	NoOp
	// SkipValue means the pass deliberately declined a target it could have
	// touched, because some precondition wasn't met (e.g. any pass
	// skipping an obf.-prefixed function it itself or an earlier pass
	// introduced).
	SkipValue
)

func (o Outcome) String() string {
	switch o {
	case Modified:
		return "modified"
	case NoOp:
		return "no-op"
	case SkipValue:
		return "skip"
	default:
		return "unknown"
	}
}

// Signal carries a non-fatal outcome plus a human-readable reason, the
// value every pass returns alongside a nil error on success.
type Signal struct {
	Outcome Outcome
	Reason  string
}

func (s Signal) String() string {
	if s.Reason == "" {
		return s.Outcome.String()
	}
	return fmt.Sprintf("%s (%s)", s.Outcome, s.Reason)
}

// TripleUnsupportedError is returned when a pass requires knowledge of the
// target triple (API Hiding's dlsym-vs-GetProcAddress choice,
// Anti-Debugging's ptrace-vs-IsDebuggerPresent choice) and the module's
// TargetTriple is empty or not one of the triples that pass understands.
type TripleUnsupportedError struct {
	Pass   string
	Triple string
}

func (e *TripleUnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported target triple %q", e.Pass, e.Triple)
}

// NewTripleUnsupported builds a stack-annotated TripleUnsupportedError.
func NewTripleUnsupported(pass, triple string) error {
	return errors.WithStack(&TripleUnsupportedError{Pass: pass, Triple: triple})
}

// VerifierFailureError reports a rewritten function that no longer
// satisfies basic SSA/dominance invariants, as found by ir.VerifyFunction
// (the in-package stand-in for the host's IR verifier). None of the passes
// in this package runs that check or returns this error itself.
type VerifierFailureError struct {
	Pass     string
	Function string
	Errs     []error
}

func (e *VerifierFailureError) Error() string {
	return fmt.Sprintf("%s: function %q failed verification (%d issues)", e.Pass, e.Function, len(e.Errs))
}

// NewVerifierFailure builds a stack-annotated VerifierFailureError.
func NewVerifierFailure(pass, function string, errs []error) error {
	return errors.WithStack(&VerifierFailureError{Pass: pass, Function: function, Errs: errs})
}
