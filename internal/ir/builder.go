package ir

// Builder is a cursor-based emitter: it tracks a current function and a
// current block, and every Emit* call appends to that block and advances
// nothing but the cursor's own counters. Passes that need to splice new
// code into existing blocks (Opaque Predicates, Control-Flow Flattening,
// API Hiding's call rewriting) construct a Builder pointed
// at the block they're editing rather than building a whole new function.
type Builder struct {
	Module *Module

	currentFunc  *Function
	currentBlock *BasicBlock
}

// NewBuilder creates a builder over an existing module. Passes share one
// module but each obtains its own Builder so cursor state never leaks
// across passes.
func NewBuilder(m *Module) *Builder {
	return &Builder{Module: m}
}

// SetInsertPoint points the builder at a specific function and block, the
// cursor used by every Emit* call until changed again.
func (b *Builder) SetInsertPoint(fn *Function, block *BasicBlock) {
	b.currentFunc = fn
	b.currentBlock = block
}

func (b *Builder) CurrentFunc() *Function   { return b.currentFunc }
func (b *Builder) CurrentBlock() *BasicBlock { return b.currentBlock }

func (b *Builder) newValue(typ Type) *Value {
	return &Value{ID: b.currentFunc.nextValue(), Typ: typ}
}

func (b *Builder) emit(i Instruction) {
	b.currentBlock.Append(i)
}

// NewFunction creates a function, appends it to the module, and creates one
// Param per typ.Params entry (named a, b, c, ...). A defined function gets
// one empty entry block; a declaration (LinkageExternalDecl) gets none.
func (b *Builder) NewFunction(name string, typ *FuncType, linkage Linkage) *Function {
	fn := &Function{Name: name, Typ: typ, Linkage: linkage}
	for idx, pt := range typ.Params {
		fn.Params = append(fn.Params, &Value{ID: fn.nextValue(), Typ: pt, Name: paramName(idx)})
	}
	if linkage != LinkageExternalDecl {
		fn.Blocks = append(fn.Blocks, &BasicBlock{Label: "entry", Fn: fn})
	}
	b.Module.AddFunction(fn)
	return fn
}

func paramName(idx int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	if idx < len(alphabet) {
		return string(alphabet[idx])
	}
	return "arg" + string(rune('0'+idx%10))
}

// NewBlock creates a fresh block in the current function without making it
// the insertion point -- callers wire it in via a terminator and then call
// SetInsertPoint explicitly.
func (b *Builder) NewBlock(labelHint string) *BasicBlock {
	return b.currentFunc.NewBlock(labelHint)
}

// ConstInt builds an integer constant value of the given width.
func ConstInt(typ Type, v int64) *Value {
	return &Value{Typ: typ, Const: &ConstValue{Int: v}}
}

// NullPtr builds the null pointer constant.
func NullPtr() *Value {
	return &Value{Typ: Ptr, Const: &ConstValue{IsNull: true}}
}

// BlockAddr builds a block-address constant, and marks the target block as
// addressed so later passes know not to delete or merge it without fixing
// up this reference.
func BlockAddr(target *BasicBlock) *Value {
	target.Addressed = true
	return &Value{Typ: Ptr, BlockAddr: target}
}

// GlobalAddr builds the address-of-global value for g.
func GlobalAddr(g *GlobalVariable) *Value {
	return &Value{Typ: Ptr, Global: g}
}

// FunctionAddr builds the address-of-function value for fn, the pointer
// Anti-Tampering reads raw bytes through when hashing a target's code.
func FunctionAddr(fn *Function) *Value {
	return &Value{Typ: Ptr, FuncAddr: fn}
}

func (b *Builder) EmitAlloca(typ Type) *Value {
	res := b.newValue(Ptr)
	i := &AllocaInst{id: b.currentFunc.nextInstr(), Res: res, AllocTyp: typ}
	b.emit(i)
	return res
}

func (b *Builder) EmitLoad(addr *Value, typ Type, volatile bool) *Value {
	res := b.newValue(typ)
	i := &LoadInst{id: b.currentFunc.nextInstr(), Res: res, Addr: addr, Volatile: volatile}
	b.emit(i)
	return res
}

func (b *Builder) EmitStore(addr, val *Value, volatile bool) {
	i := &StoreInst{id: b.currentFunc.nextInstr(), Addr: addr, Val: val, Volatile: volatile}
	b.emit(i)
}

func (b *Builder) EmitBinary(op string, typ Type, lhs, rhs *Value) *Value {
	res := b.newValue(typ)
	i := &BinaryInst{id: b.currentFunc.nextInstr(), Res: res, Op: op, LHS: lhs, RHS: rhs}
	b.emit(i)
	return res
}

func (b *Builder) EmitICmp(pred string, lhs, rhs *Value) *Value {
	res := b.newValue(I8)
	i := &ICmpInst{id: b.currentFunc.nextInstr(), Res: res, Pred: pred, LHS: lhs, RHS: rhs}
	b.emit(i)
	return res
}

func (b *Builder) EmitSelect(cond, t, f *Value) *Value {
	res := b.newValue(t.Typ)
	i := &SelectInst{id: b.currentFunc.nextInstr(), Res: res, Cond: cond, TrueVal: t, FalseVal: f}
	b.emit(i)
	return res
}

func (b *Builder) EmitCast(op string, val *Value, to Type) *Value {
	res := b.newValue(to)
	i := &CastInst{id: b.currentFunc.nextInstr(), Res: res, Op: op, Val: val, ToTyp: to}
	b.emit(i)
	return res
}

func (b *Builder) EmitGEP(base, index *Value) *Value {
	res := b.newValue(Ptr)
	i := &GEPInst{id: b.currentFunc.nextInstr(), Res: res, Base: base, Index: index}
	b.emit(i)
	return res
}

// EmitCall emits a direct call to callee. If callee's return type is void,
// the returned *Value is nil.
func (b *Builder) EmitCall(callee *Function, args []*Value) *Value {
	var res *Value
	if _, isVoid := callee.Typ.Ret.(*VoidType); !isVoid {
		res = b.newValue(callee.Typ.Ret)
	}
	i := &CallInst{id: b.currentFunc.nextInstr(), Res: res, Callee: callee, CalleeTyp: callee.Typ, Args: args}
	b.emit(i)
	return res
}

// EmitIndirectCall emits a call through a runtime-resolved function
// pointer, the shape API Hiding rewrites direct calls into.
func (b *Builder) EmitIndirectCall(calleePtr *Value, sig *FuncType, args []*Value) *Value {
	var res *Value
	if _, isVoid := sig.Ret.(*VoidType); !isVoid {
		res = b.newValue(sig.Ret)
	}
	i := &CallInst{id: b.currentFunc.nextInstr(), Res: res, CalleePtr: calleePtr, CalleeTyp: sig, Args: args}
	b.emit(i)
	return res
}

func (b *Builder) EmitPhi(typ Type) *PhiInst {
	res := b.newValue(typ)
	i := &PhiInst{id: b.currentFunc.nextInstr(), Res: res}
	b.emit(i)
	return i
}

func (b *Builder) EmitRet(val *Value) {
	b.emit(&RetInst{id: b.currentFunc.nextInstr(), Val: val})
}

func (b *Builder) EmitUnreachable() {
	b.emit(&UnreachableInst{id: b.currentFunc.nextInstr()})
}

func (b *Builder) EmitBr(target *BasicBlock) {
	b.emit(&BrInst{id: b.currentFunc.nextInstr(), Target: target})
	wireEdge(b.currentBlock, target)
}

func (b *Builder) EmitCondBr(cond *Value, t, f *BasicBlock) {
	b.emit(&CondBrInst{id: b.currentFunc.nextInstr(), Cond: cond, TrueBlock: t, FalseBlock: f})
	wireEdge(b.currentBlock, t)
	wireEdge(b.currentBlock, f)
}

func (b *Builder) EmitIndirectBr(addr *Value, dests []*BasicBlock) *IndirectBrInst {
	i := &IndirectBrInst{id: b.currentFunc.nextInstr(), Addr: addr, Dests: append([]*BasicBlock(nil), dests...)}
	b.emit(i)
	for _, d := range dests {
		wireEdge(b.currentBlock, d)
	}
	return i
}

func wireEdge(from, to *BasicBlock) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// RecomputeCFG rebuilds every block's Preds/Succs from its terminator. Call
// once after a pass finishes rewriting terminators in bulk (Flattening in
// particular rewrites many terminators without maintaining edges
// incrementally).
func RecomputeCFG(fn *Function) {
	for _, b := range fn.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range fn.Blocks {
		t := b.Terminator()
		if t == nil {
			continue
		}
		for _, s := range t.Successors() {
			wireEdge(b, s)
		}
	}
}
