// Package pipeline composes obf passes into an ordered run over a module,
// the stand-in for the host pass-manager scheduling this system otherwise
// depends on (see ir and obf package docs for what else the host normally
// supplies).
package pipeline

import (
	"fmt"

	"github.com/petermattis/goid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"github.com/segmentio/ksuid"

	"hideir/internal/ir"
	"hideir/internal/obf"
)

// Step is one entry of a pipeline's ordered pass list. A run's log lines
// and results name it by its pass's own Name().
type Step struct {
	Pass obf.Pass
}

// Pipeline runs an ordered list of passes over a module, one at a time,
// logging each invocation's outcome.
//
// Run is guarded by a deadlock-detecting mutex rather than a plain
// sync.Mutex: §5's resource-ownership contract says concurrent
// modification of a given module is excluded by the host, and a pipeline
// instance is the closest thing this repo has to "the host" for that
// guarantee. A deadlocked second caller surfaces loudly instead of the two
// runs silently interleaving writes into the same *ir.Module.
type Pipeline struct {
	steps  []Step
	rng    obf.Rand
	mu     deadlock.Mutex
	logger zerolog.Logger
}

// New builds a pipeline running exactly the given passes, in order, sharing
// rng across all of them. This is the opt-in-by-name half of the
// registration-duplication fix described in DESIGN.md: a caller assembling
// a pipeline this way names every pass it wants, and Default (below) is the
// only other entry point.
func New(passes []obf.Pass, rng obf.Rand) *Pipeline {
	steps := make([]Step, len(passes))
	for i, p := range passes {
		steps[i] = Step{Pass: p}
	}
	return &Pipeline{steps: steps, rng: rng, logger: log.Logger}
}

// Default builds the pipeline from the recommended §5 ordering: the
// module-wide passes run first (string encryption, API hiding,
// anti-debugging, anti-tampering last among that group so its hash survives
// every other pipeline-start mutation), then the pipeline-end,
// code-reshaping passes (splitting, opaque predicates, flattening,
// outlining) — this is the default-enable half of the fix, and it never
// consults the same Registration twice: a pass reaches the returned
// Pipeline by DefaultEnabled alone.
func Default(registrations []obf.Registration, rng obf.Rand) *Pipeline {
	byName := make(map[string]obf.Pass, len(registrations))
	for _, r := range registrations {
		if r.DefaultEnabled {
			byName[r.Pass.Name()] = r.Pass
		}
	}

	order := []string{
		"EnterpriseStringEncryption",
		"EnterpriseAPIHiding",
		"EnterpriseAntiDebugging",
		"EnterpriseAntiTampering",
		"EnterpriseSplitBasicBlock",
		"EnterpriseOpaquePredicate",
		"EnterpriseFlattening",
		"EnterpriseFunctionOutlining",
	}

	var steps []obf.Pass
	for _, name := range order {
		if p, ok := byName[name]; ok {
			steps = append(steps, p)
		}
	}
	return New(steps, rng)
}

// Result records one pass's outcome within a Run.
type Result struct {
	Pass    string
	Signal  obf.Signal
	Err     error
}

// Run executes every configured pass, in order, against m, using the rng
// given to New/Default as the shared random source. It stops at the first
// pass that returns a fatal error (TripleUnsupportedError or
// VerifierFailureError) and returns the results gathered so far alongside
// that error.
func (p *Pipeline) Run(m *ir.Module) ([]Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := ksuid.New().String()
	startGoroutine := goid.Get()
	logger := p.logger.With().Str("run_id", runID).Str("module", m.Name).Logger()

	results := make([]Result, 0, len(p.steps))
	for _, step := range p.steps {
		if goid.Get() != startGoroutine {
			return results, fmt.Errorf("pipeline run %s: pass %s invoked from a different goroutine than Run started on", runID, step.Pass.Name())
		}

		sig, err := step.Pass.Run(m, p.rng)
		results = append(results, Result{Pass: step.Pass.Name(), Signal: sig, Err: err})

		if err != nil {
			logger.Error().Str("pass", step.Pass.Name()).Err(err).Msg("pass failed")
			return results, fmt.Errorf("pipeline run %s: %s: %w", runID, step.Pass.Name(), err)
		}

		ev := logger.Debug()
		switch sig.Outcome {
		case obf.NoOp:
			ev = logger.Info()
		case obf.SkipValue:
			ev = logger.Warn()
		}
		ev.Str("pass", step.Pass.Name()).Str("outcome", sig.Outcome.String()).Str("reason", sig.Reason).Msg("pass complete")

		if tamper, ok := step.Pass.(*obf.AntiTamperingPass); ok && tamper.CanonicalTarget() != "" {
			warnIfLaterPassTouchesCanonical(logger, p.steps, step, tamper.CanonicalTarget())
		}
	}

	return results, nil
}

// warnIfLaterPassTouchesCanonical logs a warning if a code-introducing pass
// runs after AntiTampering in this pipeline's configured order -- §9's
// anti-tamper canonical-target-freezing issue is a composition hazard this
// repo can only detect and warn about, not prevent outright, since passes
// don't declare which functions they'll touch ahead of time.
func warnIfLaterPassTouchesCanonical(logger zerolog.Logger, steps []Step, current Step, canonical string) {
	seenCurrent := false
	for _, s := range steps {
		if s.Pass == current.Pass {
			seenCurrent = true
			continue
		}
		if !seenCurrent {
			continue
		}
		switch s.Pass.Name() {
		case "EnterpriseSplitBasicBlock", "EnterpriseOpaquePredicate", "EnterpriseFlattening", "EnterpriseFunctionOutlining":
			logger.Warn().Str("canonical_target", canonical).Str("later_pass", s.Pass.Name()).
				Msg("a code-introducing pass is scheduled after AntiTampering; its hash may no longer match the canonical target's prologue")
		}
	}
}
