package obf

import "hideir/internal/ir"

// Rand is the RNG surface every pass consumes. Passes never read
// math/rand's global state directly -- §5's Design Notes redesign flag
// calls out the original's reliance on unseeded global random state as a
// determinism hazard, so here the RNG is always an explicit argument:
// pipeline.New/Default take it as a constructor argument and hand it to
// every pass's Run.
type Rand interface {
	// Intn returns a pseudo-random number in [0, n). The passes draw their
	// keys, predicate constants and split points from it.
	Intn(n int) int
	// Uint32 returns a pseudo-random 32-bit value.
	Uint32() uint32
}

// Pass rewrites a module in place. Run is called once per module per
// pipeline invocation; a pass that operates function-by-function loops
// over m.Functions itself so it can skip obf.-prefixed functions uniformly.
type Pass interface {
	Name() string
	Run(m *ir.Module, rng Rand) (Signal, error)
}

// Registration describes how a pass participates in a pipeline: its name
// (the sole opt-in key) and whether pipeline.Default() enables it without
// the caller naming it explicitly.
//
// This is the resolution to the plugin registration duplication the
// original exhibits (every pass registered both by name and via a
// default-enable extension point, so an unconfigured build runs it
// twice): here a pass is selected by exactly one of these two paths for a
// given pipeline.New/pipeline.Default() call, never both.
type Registration struct {
	Pass           Pass
	DefaultEnabled bool
}

// skipTarget reports whether fn should be skipped by every pass uniformly:
// a declaration (nothing to rewrite) or a function any obf pass
// synthesized (the sole re-entrancy guard, per ir.ObfPrefix).
func skipTarget(fn *ir.Function) bool {
	return fn.IsDeclaration() || ir.IsObfSymbol(fn.Name)
}
