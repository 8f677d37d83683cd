package obf

import "hideir/internal/ir"

// SplitBasicBlockPass splits any block with three or more instructions at
// a random position in [1, n-2], so a single logical block disassembles as
// two, breaking up the signature an analyst would otherwise pattern-match
// against a known binary.
type SplitBasicBlockPass struct{}

func NewSplitBasicBlockPass() *SplitBasicBlockPass { return &SplitBasicBlockPass{} }

func (p *SplitBasicBlockPass) Name() string { return "EnterpriseSplitBasicBlock" }

func (p *SplitBasicBlockPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	modified := false
	for _, fn := range m.Functions {
		if skipTarget(fn) {
			continue
		}
		// Snapshot the block list: splitting appends new blocks to fn.Blocks,
		// and this pass must not re-split a block it just created.
		original := append([]*ir.BasicBlock(nil), fn.Blocks...)
		for _, b := range original {
			n := len(b.Instrs)
			if n < 3 {
				continue
			}
			splitPoint := 1 + rng.Intn(n-2)
			if splitAt(fn, b, splitPoint) {
				modified = true
			}
		}
	}

	if !modified {
		return Signal{Outcome: NoOp, Reason: "no blocks had 3 or more instructions"}, nil
	}
	return Signal{Outcome: Modified}, nil
}

// splitAt divides b at instruction index idx into b (the instructions
// before idx) followed by a new block holding idx..end, linked by an
// unconditional branch. Refuses to split in front of a PHI (which must stay
// at the top of whatever block it's in) or at a terminator.
func splitAt(fn *ir.Function, b *ir.BasicBlock, idx int) bool {
	if idx <= 0 || idx >= len(b.Instrs) {
		return false
	}
	if _, isPhi := b.Instrs[idx].(*ir.PhiInst); isPhi {
		return false
	}
	if _, isTerm := b.Instrs[idx].(ir.Terminator); isTerm {
		return false
	}

	tail := &ir.BasicBlock{Label: b.Label + ".split", Fn: fn}
	tail.Instrs = append(tail.Instrs, b.Instrs[idx:]...)
	for _, i := range tail.Instrs {
		i.SetBlock(tail)
	}
	b.Instrs = b.Instrs[:idx]

	fn.Blocks = append(fn.Blocks, nil)
	copy(fn.Blocks[indexOfBlock(fn, b)+2:], fn.Blocks[indexOfBlock(fn, b)+1:])
	fn.Blocks[indexOfBlock(fn, b)+1] = tail

	builder := ir.NewBuilder(&ir.Module{})
	builder.SetInsertPoint(fn, b)
	builder.EmitBr(tail)

	// The branch just emitted by EmitBr also wired Preds/Succs for b->tail;
	// redirect tail's own successors (inherited from the original
	// terminator, now at the end of tail) by rebuilding the whole
	// function's CFG once, since terminators moved blocks wholesale.
	ir.RecomputeCFG(fn)

	return true
}

func indexOfBlock(fn *ir.Function, b *ir.BasicBlock) int {
	for i, cur := range fn.Blocks {
		if cur == b {
			return i
		}
	}
	return -1
}
