package ir

// ExtractedFunction is the result of lifting one basic block's
// non-terminator instructions into a standalone function. The original
// block keeps its terminator and gains a call to the extracted function in
// its place, passing live-in values by value and writing live-out values
// back through pointer out-parameters.
type ExtractedFunction struct {
	Fn        *Function
	LiveIns   []*Value // original values, now passed as Fn's by-value params
	LiveOuts  []*Value // original values, now written through Fn's trailing pointer params
}

// ExtractBlock lifts block's non-terminator instructions into a new
// function named name, rewriting block in place to call it. It assumes
// block's terminator is already one of the simple shapes Control-Flow
// Flattening leaves behind (an unconditional branch, or an untouched
// return/unreachable/resume) -- a full LLVM CodeExtractor handles arbitrary
// multi-exit regions via a switch over exit blocks, but Outlining's
// recommended position (after Flattening) never needs that: every
// candidate block it's handed already has exactly one successor baked into
// its terminator, which stays behind in the caller.
//
// Returns nil, false if block is unsuitable: the entry block, a block with
// no instructions to extract, or a block with a terminator this extractor
// doesn't handle (a conditional branch or indirect branch -- those still
// carry real branching decisions and are not safe to leave behind
// unexamined).
func ExtractBlock(m *Module, block *BasicBlock, name string) (*ExtractedFunction, bool) {
	fn := block.Fn
	if block == fn.Entry() {
		return nil, false
	}
	body := block.NonTerminatorInstrs()
	if len(body) == 0 {
		return nil, false
	}
	switch block.Terminator().(type) {
	case *CondBrInst, *IndirectBrInst:
		return nil, false
	}

	defined := make(map[*Value]bool, len(body))
	for _, i := range body {
		if r := i.Result(); r != nil {
			defined[r] = true
		}
	}

	liveIns := collectLiveIns(body, defined)
	liveOuts := collectLiveOuts(fn, block, body, defined)

	params := make([]Type, 0, len(liveIns)+len(liveOuts))
	for _, v := range liveIns {
		params = append(params, v.Typ)
	}
	for range liveOuts {
		params = append(params, Ptr)
	}
	sig := &FuncType{Params: params, Ret: Void}

	b := NewBuilder(m)
	newFn := b.NewFunction(name, sig, LinkageInternal)
	newFn.NoInline = true

	paramFor := make(map[*Value]*Value, len(liveIns))
	for idx, v := range liveIns {
		paramFor[v] = newFn.Params[idx]
	}
	outParamFor := make(map[*Value]*Value, len(liveOuts))
	for idx, v := range liveOuts {
		outParamFor[v] = newFn.Params[len(liveIns)+idx]
	}

	entry := newFn.Entry()
	b.SetInsertPoint(newFn, entry)
	clonedOf := make(map[*Value]*Value, len(body))
	for _, i := range body {
		cl := cloneInstruction(newFn, i, clonedOf, paramFor)
		entry.Append(cl)
		if r := i.Result(); r != nil {
			clonedOf[r] = cl.Result()
		}
	}
	for _, v := range liveOuts {
		src := clonedOf[v]
		if src == nil {
			src = v
		}
		b.EmitStore(outParamFor[v], src, false)
	}
	b.EmitRet(nil)

	// Build the replacement instruction sequence for block: an alloca per
	// live-out, the call itself, then a load per live-out -- all inserted
	// ahead of the terminator, which is left untouched at the tail.
	terminator := block.Terminator()
	var replacement []Instruction
	slots := make([]*Value, len(liveOuts))
	for idx, v := range liveOuts {
		slots[idx] = &Value{ID: fn.nextValue(), Typ: Ptr}
		alloca := &AllocaInst{id: fn.nextInstr(), Res: slots[idx], AllocTyp: v.Typ}
		alloca.SetBlock(block)
		replacement = append(replacement, alloca)
	}

	args := make([]*Value, 0, len(liveIns)+len(liveOuts))
	args = append(args, liveIns...)
	args = append(args, slots...)

	call := &CallInst{id: fn.nextInstr(), Callee: newFn, CalleeTyp: sig, Args: args}
	call.SetBlock(block)
	replacement = append(replacement, call)

	for idx, v := range liveOuts {
		loadRes := &Value{ID: fn.nextValue(), Typ: v.Typ}
		load := &LoadInst{id: fn.nextInstr(), Res: loadRes, Addr: slots[idx]}
		load.SetBlock(block)
		replacement = append(replacement, load)
		replaceAllUses(fn, v, loadRes)
	}

	replacement = append(replacement, terminator)
	block.Instrs = replacement

	return &ExtractedFunction{Fn: newFn, LiveIns: liveIns, LiveOuts: liveOuts}, true
}

func collectLiveIns(body []Instruction, defined map[*Value]bool) []*Value {
	seen := make(map[*Value]bool)
	var ins []*Value
	for _, i := range body {
		for _, op := range i.Operands() {
			if defined[op] || seen[op] || op.Const != nil || op.Global != nil || op.BlockAddr != nil {
				continue
			}
			seen[op] = true
			ins = append(ins, op)
		}
	}
	return ins
}

func collectLiveOuts(fn *Function, block *BasicBlock, body []Instruction, defined map[*Value]bool) []*Value {
	seen := make(map[*Value]bool)
	var outs []*Value
	check := func(v *Value) {
		if !defined[v] || seen[v] {
			return
		}
		seen[v] = true
		outs = append(outs, v)
	}
	if t := block.Terminator(); t != nil {
		for _, op := range t.Operands() {
			check(op)
		}
	}
	for _, b := range fn.Blocks {
		if b == block {
			continue
		}
		for _, i := range b.Instrs {
			for _, op := range i.Operands() {
				check(op)
			}
		}
	}
	return outs
}

// cloneInstruction deep-copies i into newFn's value space, remapping any
// operand found in paramFor (a live-in now arriving as a parameter) or
// clonedOf (a value defined earlier in this same extraction).
func cloneInstruction(newFn *Function, i Instruction, clonedOf, paramFor map[*Value]*Value) Instruction {
	remap := func(v *Value) *Value {
		if v == nil {
			return nil
		}
		if r, ok := paramFor[v]; ok {
			return r
		}
		if r, ok := clonedOf[v]; ok {
			return r
		}
		return v
	}
	newRes := func(typ Type) *Value { return &Value{ID: newFn.nextValue(), Typ: typ} }

	switch v := i.(type) {
	case *AllocaInst:
		return &AllocaInst{id: newFn.nextInstr(), Res: newRes(Ptr), AllocTyp: v.AllocTyp}
	case *LoadInst:
		return &LoadInst{id: newFn.nextInstr(), Res: newRes(v.Res.Typ), Addr: remap(v.Addr), Volatile: v.Volatile}
	case *StoreInst:
		return &StoreInst{id: newFn.nextInstr(), Addr: remap(v.Addr), Val: remap(v.Val), Volatile: v.Volatile}
	case *BinaryInst:
		return &BinaryInst{id: newFn.nextInstr(), Res: newRes(v.Res.Typ), Op: v.Op, LHS: remap(v.LHS), RHS: remap(v.RHS)}
	case *ICmpInst:
		return &ICmpInst{id: newFn.nextInstr(), Res: newRes(v.Res.Typ), Pred: v.Pred, LHS: remap(v.LHS), RHS: remap(v.RHS)}
	case *SelectInst:
		return &SelectInst{id: newFn.nextInstr(), Res: newRes(v.Res.Typ), Cond: remap(v.Cond), TrueVal: remap(v.TrueVal), FalseVal: remap(v.FalseVal)}
	case *CastInst:
		return &CastInst{id: newFn.nextInstr(), Res: newRes(v.ToTyp), Op: v.Op, Val: remap(v.Val), ToTyp: v.ToTyp}
	case *GEPInst:
		return &GEPInst{id: newFn.nextInstr(), Res: newRes(Ptr), Base: remap(v.Base), Index: remap(v.Index)}
	case *CallInst:
		args := make([]*Value, len(v.Args))
		for idx, a := range v.Args {
			args[idx] = remap(a)
		}
		var res *Value
		if v.Res != nil {
			res = newRes(v.Res.Typ)
		}
		return &CallInst{id: newFn.nextInstr(), Res: res, Callee: v.Callee, CalleePtr: remap(v.CalleePtr), CalleeTyp: v.CalleeTyp, Args: args, Intrinsic: v.Intrinsic}
	default:
		// PHIs and terminators never appear in a non-terminator instruction
		// list; panicking here would indicate a bug in the caller's
		// filtering, not reachable input.
		panic("ir: cloneInstruction: unexpected instruction kind")
	}
}
