package ir

// DemotePhiToStack rewrites a single PHI into a stack slot: an alloca in the
// entry block, a store at the end of each incoming predecessor, and a load
// replacing the PHI's result at the top of its own block. This is the
// "move variable to stack" utility Control-Flow Flattening's prerequisite
// step needs before it can legally reroute every block's terminator through
// one dispatcher -- a reader (PHI choosing a value based on which edge was
// taken) only works when control genuinely arrives via that edge, which
// flattening no longer guarantees.
func DemotePhiToStack(phi *PhiInst) {
	fn := phi.Block().Fn
	entry := fn.Entry()

	b := NewBuilder(&Module{}) // scratch builder, only used for its Emit* helpers
	b.currentFunc = fn

	b.currentBlock = entry
	slot := &Value{ID: fn.nextValue(), Typ: Ptr}
	alloca := &AllocaInst{id: fn.nextInstr(), Res: slot, AllocTyp: phi.Res.Typ}
	entry.Instrs = append([]Instruction{alloca}, entry.Instrs...)
	alloca.SetBlock(entry)

	for _, in := range phi.Incoming {
		insertStoreBeforeTerminator(in.Pred, slot, in.Val)
	}

	owner := phi.Block()
	loadRes := &Value{ID: fn.nextValue(), Typ: phi.Res.Typ}
	load := &LoadInst{id: fn.nextInstr(), Res: loadRes, Addr: slot}
	replaceInBlock(owner, phi, load)
	replaceAllUses(fn, phi.Res, loadRes)
}

// DemoteValueToStack rewrites every cross-block use of val (a non-PHI
// instruction result used outside its defining block) to instead load from
// a dedicated stack slot, storing into that slot immediately after val is
// defined. Flattening needs this for any value whose def and use end up
// split across the dispatcher, since the dispatcher makes "the block that
// defines it always runs before the block that uses it" no longer a static
// property the optimizer (or a human) can see through SSA form alone.
func DemoteValueToStack(val *Value) {
	def := val.Def
	if def == nil {
		return
	}
	fn := def.Block().Fn
	entry := fn.Entry()
	defBlock := def.Block()

	uses := crossBlockUses(fn, val, defBlock)
	if len(uses) == 0 {
		return
	}

	slot := &Value{ID: fn.nextValue(), Typ: Ptr}
	alloca := &AllocaInst{id: fn.nextInstr(), Res: slot, AllocTyp: val.Typ}
	entry.Instrs = append([]Instruction{alloca}, entry.Instrs...)
	alloca.SetBlock(entry)

	store := &StoreInst{id: fn.nextInstr(), Addr: slot, Val: val}
	insertAfter(defBlock, def, store)

	for _, u := range uses {
		loadRes := &Value{ID: fn.nextValue(), Typ: val.Typ}
		load := &LoadInst{id: fn.nextInstr(), Res: loadRes, Addr: slot}
		insertBefore(u.Block(), u, load)
		u.ReplaceOperand(val, loadRes)
	}
}

// DemoteAllCrossBlockValues repeatedly demotes every PHI and every
// cross-block value in fn until a fixpoint is reached: demoting one value
// can introduce new loads/stores whose results are themselves used across
// blocks (rare, but possible once PHIs feed other PHIs), so a single pass
// is not always enough. Stack slots (allocas) are never demoted: they are
// already memory, and the slots this function inserts are themselves used
// from other blocks.
func DemoteAllCrossBlockValues(fn *Function) {
	for {
		changed := false
		for _, b := range fn.Blocks {
			for _, p := range b.Phis() {
				DemotePhiToStack(p)
				changed = true
			}
		}
		if changed {
			continue
		}
		for _, b := range fn.Blocks {
			for _, i := range b.Instrs {
				if _, isAlloca := i.(*AllocaInst); isAlloca {
					continue
				}
				res := i.Result()
				if res == nil {
					continue
				}
				if len(crossBlockUses(fn, res, b)) > 0 {
					res.Def = i
					DemoteValueToStack(res)
					changed = true
				}
			}
		}
		if !changed {
			return
		}
	}
}

func crossBlockUses(fn *Function, val *Value, defBlock *BasicBlock) []Instruction {
	var uses []Instruction
	for _, b := range fn.Blocks {
		if b == defBlock {
			continue
		}
		for _, i := range b.Instrs {
			for _, op := range i.Operands() {
				if op == val {
					uses = append(uses, i)
					break
				}
			}
		}
	}
	return uses
}

func replaceAllUses(fn *Function, old, new_ *Value) {
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			i.ReplaceOperand(old, new_)
		}
	}
}

// ReplaceAllUses substitutes old for new_ in every operand of every
// instruction in fn -- the exported form of replaceAllUses, for passes
// outside this package that rewrite a single value in place (API Hiding
// replacing a direct call's result with an indirect call's).
func ReplaceAllUses(fn *Function, old, new_ *Value) {
	replaceAllUses(fn, old, new_)
}

// ReplaceInstruction swaps old for new_ within b's instruction list,
// transferring block ownership to new_.
func ReplaceInstruction(b *BasicBlock, old, new_ Instruction) {
	replaceInBlock(b, old, new_)
}

func replaceInBlock(b *BasicBlock, old, new_ Instruction) {
	for idx, i := range b.Instrs {
		if i == old {
			new_.SetBlock(b)
			b.Instrs[idx] = new_
			return
		}
	}
}

func insertBefore(b *BasicBlock, before, i Instruction) {
	for idx, cur := range b.Instrs {
		if cur == before {
			b.InsertAt(idx, i)
			return
		}
	}
}

func insertAfter(b *BasicBlock, after, i Instruction) {
	for idx, cur := range b.Instrs {
		if cur == after {
			b.InsertAt(idx+1, i)
			return
		}
	}
}

func insertStoreBeforeTerminator(b *BasicBlock, addr, val *Value) {
	store := &StoreInst{id: b.Fn.nextInstr(), Addr: addr, Val: val}
	if t := b.Terminator(); t != nil {
		insertBefore(b, t, store)
		return
	}
	b.Append(store)
}
