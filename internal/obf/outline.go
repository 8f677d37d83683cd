package obf

import (
	"strconv"

	"hideir/internal/ir"
)

// FunctionOutliningPass lifts each non-entry block's body into its own
// obf.outlined function (obf.outlined, obf.outlined.1, ...), leaving a call
// behind. Run after Flattening in
// the recommended pipeline order, every eligible block's terminator is
// already either a plain successor edge or a genuine function exit, which
// is exactly the shape ir.ExtractBlock requires (see its doc comment for
// why the full multi-exit CodeExtractor machinery isn't needed here).
type FunctionOutliningPass struct{}

func NewFunctionOutliningPass() *FunctionOutliningPass { return &FunctionOutliningPass{} }

func (p *FunctionOutliningPass) Name() string { return "EnterpriseFunctionOutlining" }

func (p *FunctionOutliningPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	modified := false
	count := 0
	for _, fn := range m.Functions {
		if skipTarget(fn) {
			continue
		}
		// Snapshot: extraction appends new functions (and leaves fn.Blocks
		// alone otherwise), but never outline a block this loop itself
		// just split off into a call -- only ever consider blocks that
		// existed in fn before this pass started.
		candidates := append([]*ir.BasicBlock(nil), fn.Blocks...)
		for _, b := range candidates {
			if b == fn.Entry() {
				continue
			}
			name := ir.UniqueObfName(m, "outlined")
			if _, ok := ir.ExtractBlock(m, b, name); ok {
				modified = true
				count++
			}
		}
	}
	if !modified {
		return Signal{Outcome: NoOp, Reason: "no eligible non-entry blocks"}, nil
	}
	return Signal{Outcome: Modified, Reason: "outlined " + strconv.Itoa(count) + " blocks"}, nil
}
