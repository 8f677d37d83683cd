package obf

import "hideir/internal/ir"

// FlatteningPass replaces a function's natural CFG with a single dispatch
// loop: a state slot holds the block-address of whichever logical block
// should run next, and every original block's terminator is rewritten to
// store its successor's address and jump back to the dispatcher instead of
// branching directly. The result still computes the same thing, but its
// control-flow graph -- the thing a disassembler draws as a picture -- no
// longer resembles the source structure at all.
type FlatteningPass struct{}

func NewFlatteningPass() *FlatteningPass { return &FlatteningPass{} }

func (p *FlatteningPass) Name() string { return "EnterpriseFlattening" }

func (p *FlatteningPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	modified := false
	for _, fn := range m.Functions {
		if skipTarget(fn) {
			continue
		}
		if len(fn.Blocks) < 2 {
			continue // nothing to flatten in a single straight-line block
		}
		if flattenFunction(m, fn) {
			modified = true
		}
	}
	if !modified {
		return Signal{Outcome: NoOp, Reason: "no eligible multi-block functions"}, nil
	}
	return Signal{Outcome: Modified}, nil
}

func flattenFunction(m *ir.Module, fn *ir.Function) bool {
	// 1. SSA demotion: every PHI and every cross-block value must become a
	// stack slot before the dispatcher scrambles the order blocks run in.
	ir.DemoteAllCrossBlockValues(fn)

	entryBlock := fn.Entry()

	// 2. Move every non-alloca instruction out of the entry block into a
	// fresh entry_logic block, keeping the allocas (including the ones
	// DemoteAllCrossBlockValues just inserted) where the verifier expects
	// them: the function's actual entry.
	firstBlock := &ir.BasicBlock{Label: "entry_logic", Fn: fn}
	var keptAllocas []ir.Instruction
	var moved []ir.Instruction
	for _, i := range entryBlock.Instrs {
		if _, ok := i.(*ir.AllocaInst); ok {
			keptAllocas = append(keptAllocas, i)
			continue
		}
		moved = append(moved, i)
	}
	entryBlock.Instrs = keptAllocas
	for _, i := range moved {
		i.SetBlock(firstBlock)
	}
	firstBlock.Instrs = moved

	// 3. Build the dispatcher skeleton.
	loopEntry := &ir.BasicBlock{Label: "dispatch_header", Fn: fn}
	loopEnd := &ir.BasicBlock{Label: "loop_end", Fn: fn}
	dispatchBlock := &ir.BasicBlock{Label: "indirect_dispatch", Fn: fn}

	fn.Blocks = append(fn.Blocks, firstBlock, loopEntry, loopEnd, dispatchBlock)

	var originalBlocks []*ir.BasicBlock
	skip := map[*ir.BasicBlock]bool{entryBlock: true, loopEntry: true, loopEnd: true, dispatchBlock: true}
	for _, b := range fn.Blocks {
		if !skip[b] {
			originalBlocks = append(originalBlocks, b)
		}
	}
	if len(originalBlocks) == 0 {
		return false
	}

	b := ir.NewBuilder(m)

	// Entry trampoline: allocate the state slot, seed it with
	// firstBlock's address, hand off to the dispatcher.
	b.SetInsertPoint(fn, entryBlock)
	stateVar := b.EmitAlloca(ir.Ptr)
	b.EmitStore(stateVar, ir.BlockAddr(firstBlock), false)
	b.EmitBr(loopEntry)

	b.SetInsertPoint(fn, loopEntry)
	b.EmitBr(dispatchBlock)

	b.SetInsertPoint(fn, loopEnd)
	b.EmitBr(loopEntry)

	b.SetInsertPoint(fn, dispatchBlock)
	loadState := b.EmitLoad(stateVar, ir.Ptr, false)
	indirectBr := b.EmitIndirectBr(loadState, nil)

	// 4. Re-route every original block's terminator through the state slot
	// instead of branching directly; blocks that already leave the
	// function (ret/unreachable/resume) are left untouched.
	for _, ob := range originalBlocks {
		indirectBr.AddDestination(ob)

		term := ob.Terminator()
		switch t := term.(type) {
		case *ir.RetInst, *ir.ResumeInst, *ir.UnreachableInst:
			continue
		case *ir.BrInst:
			rerouteBlock(m, fn, ob, stateVar, loopEnd, ir.BlockAddr(t.Target))
		case *ir.CondBrInst:
			tb := ir.NewBuilder(m)
			tb.SetInsertPoint(fn, ob)
			ob.Instrs = ob.Instrs[:len(ob.Instrs)-1]
			sel := tb.EmitSelect(t.Cond, ir.BlockAddr(t.TrueBlock), ir.BlockAddr(t.FalseBlock))
			rerouteBlock(m, fn, ob, stateVar, loopEnd, sel)
		}
	}

	ir.RecomputeCFG(fn)
	return true
}

// rerouteBlock stores addr into stateVar at the end of ob and jumps to
// loopEnd, replacing whatever terminator ob had (already removed by the
// caller for the CondBr case; for the Br case it is removed here).
func rerouteBlock(m *ir.Module, fn *ir.Function, ob *ir.BasicBlock, stateVar *ir.Value, loopEnd *ir.BasicBlock, addr *ir.Value) {
	if _, isBr := ob.Terminator().(*ir.BrInst); isBr {
		ob.Instrs = ob.Instrs[:len(ob.Instrs)-1]
	}
	b := ir.NewBuilder(m)
	b.SetInsertPoint(fn, ob)
	b.EmitStore(stateVar, addr, false)
	b.EmitBr(loopEnd)
}
