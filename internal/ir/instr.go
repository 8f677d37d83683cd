package ir

// Instruction is any non-terminator or terminator operation inside a basic
// block. Mirrors the teacher IR's instruction interface shape (GetID /
// GetResult / GetOperands / GetBlock / IsTerminator), generalized from the
// EVM instruction set to the small LLVM-flavored set the obfuscation passes
// need to emit and rewrite.
type Instruction interface {
	ID() int
	Result() *Value
	Operands() []*Value
	Block() *BasicBlock
	SetBlock(b *BasicBlock)
	IsTerminator() bool
	// ReplaceOperand substitutes old for new wherever old appears as an
	// operand, returning whether a substitution happened.
	ReplaceOperand(old, new_ *Value) bool
	String() string
}

// Terminator is the subset of Instruction that ends a basic block.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// --- Alloca ---------------------------------------------------------------

type AllocaInst struct {
	id       int
	Res      *Value
	AllocTyp Type
	block    *BasicBlock
}

func (i *AllocaInst) ID() int             { return i.id }
func (i *AllocaInst) Result() *Value      { return i.Res }
func (i *AllocaInst) Operands() []*Value  { return nil }
func (i *AllocaInst) Block() *BasicBlock  { return i.block }
func (i *AllocaInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *AllocaInst) IsTerminator() bool  { return false }
func (i *AllocaInst) ReplaceOperand(old, new_ *Value) bool { return false }
func (i *AllocaInst) String() string {
	return i.Res.String() + " = alloca " + i.AllocTyp.String()
}

// --- Load / Store -----------------------------------------------------------

type LoadInst struct {
	id       int
	Res      *Value
	Addr     *Value
	Volatile bool
	block    *BasicBlock
}

func (i *LoadInst) ID() int            { return i.id }
func (i *LoadInst) Result() *Value     { return i.Res }
func (i *LoadInst) Operands() []*Value { return []*Value{i.Addr} }
func (i *LoadInst) Block() *BasicBlock { return i.block }
func (i *LoadInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *LoadInst) IsTerminator() bool { return false }
func (i *LoadInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Addr == old {
		i.Addr = new_
		return true
	}
	return false
}
func (i *LoadInst) String() string {
	v := ""
	if i.Volatile {
		v = "volatile "
	}
	return i.Res.String() + " = " + v + "load " + i.Addr.String()
}

type StoreInst struct {
	id       int
	Addr     *Value
	Val      *Value
	Volatile bool
	block    *BasicBlock
}

func (i *StoreInst) ID() int            { return i.id }
func (i *StoreInst) Result() *Value     { return nil }
func (i *StoreInst) Operands() []*Value { return []*Value{i.Addr, i.Val} }
func (i *StoreInst) Block() *BasicBlock { return i.block }
func (i *StoreInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *StoreInst) IsTerminator() bool { return false }
func (i *StoreInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.Addr == old {
		i.Addr = new_
		changed = true
	}
	if i.Val == old {
		i.Val = new_
		changed = true
	}
	return changed
}
func (i *StoreInst) String() string {
	v := ""
	if i.Volatile {
		v = "volatile "
	}
	return v + "store " + i.Val.String() + ", " + i.Addr.String()
}

// --- Binary / ICmp ----------------------------------------------------------

type BinaryInst struct {
	id    int
	Res   *Value
	Op    string // "add", "sub", "mul", "xor", ...
	LHS   *Value
	RHS   *Value
	block *BasicBlock
}

func (i *BinaryInst) ID() int            { return i.id }
func (i *BinaryInst) Result() *Value     { return i.Res }
func (i *BinaryInst) Operands() []*Value { return []*Value{i.LHS, i.RHS} }
func (i *BinaryInst) Block() *BasicBlock { return i.block }
func (i *BinaryInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *BinaryInst) IsTerminator() bool { return false }
func (i *BinaryInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.LHS == old {
		i.LHS = new_
		changed = true
	}
	if i.RHS == old {
		i.RHS = new_
		changed = true
	}
	return changed
}
func (i *BinaryInst) String() string {
	return i.Res.String() + " = " + i.Op + " " + i.LHS.String() + ", " + i.RHS.String()
}

type ICmpInst struct {
	id    int
	Res   *Value
	Pred  string // "eq", "ne", "ugt", "slt", ...
	LHS   *Value
	RHS   *Value
	block *BasicBlock
}

func (i *ICmpInst) ID() int            { return i.id }
func (i *ICmpInst) Result() *Value     { return i.Res }
func (i *ICmpInst) Operands() []*Value { return []*Value{i.LHS, i.RHS} }
func (i *ICmpInst) Block() *BasicBlock { return i.block }
func (i *ICmpInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *ICmpInst) IsTerminator() bool { return false }
func (i *ICmpInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.LHS == old {
		i.LHS = new_
		changed = true
	}
	if i.RHS == old {
		i.RHS = new_
		changed = true
	}
	return changed
}
func (i *ICmpInst) String() string {
	return i.Res.String() + " = icmp " + i.Pred + " " + i.LHS.String() + ", " + i.RHS.String()
}

// --- Select -----------------------------------------------------------------

type SelectInst struct {
	id        int
	Res       *Value
	Cond      *Value
	TrueVal   *Value
	FalseVal  *Value
	block     *BasicBlock
}

func (i *SelectInst) ID() int            { return i.id }
func (i *SelectInst) Result() *Value     { return i.Res }
func (i *SelectInst) Operands() []*Value { return []*Value{i.Cond, i.TrueVal, i.FalseVal} }
func (i *SelectInst) Block() *BasicBlock { return i.block }
func (i *SelectInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *SelectInst) IsTerminator() bool { return false }
func (i *SelectInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.Cond == old {
		i.Cond = new_
		changed = true
	}
	if i.TrueVal == old {
		i.TrueVal = new_
		changed = true
	}
	if i.FalseVal == old {
		i.FalseVal = new_
		changed = true
	}
	return changed
}
func (i *SelectInst) String() string {
	return i.Res.String() + " = select " + i.Cond.String() + ", " + i.TrueVal.String() + ", " + i.FalseVal.String()
}

// --- Cast -------------------------------------------------------------------

type CastInst struct {
	id     int
	Res    *Value
	Op     string // "ptrtoint", "inttoptr", "bitcast", "zext"
	Val    *Value
	ToTyp  Type
	block  *BasicBlock
}

func (i *CastInst) ID() int            { return i.id }
func (i *CastInst) Result() *Value     { return i.Res }
func (i *CastInst) Operands() []*Value { return []*Value{i.Val} }
func (i *CastInst) Block() *BasicBlock { return i.block }
func (i *CastInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *CastInst) IsTerminator() bool { return false }
func (i *CastInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Val == old {
		i.Val = new_
		return true
	}
	return false
}
func (i *CastInst) String() string {
	return i.Res.String() + " = " + i.Op + " " + i.Val.String() + " to " + i.ToTyp.String()
}

// --- GEP (byte-offset addressing) -------------------------------------------

// GEPInst computes base + index, treated as byte addressing (the only
// addressing mode the obfuscation passes need: indexing into a byte-array
// global or a function's code bytes).
type GEPInst struct {
	id    int
	Res   *Value
	Base  *Value
	Index *Value
	block *BasicBlock
}

func (i *GEPInst) ID() int            { return i.id }
func (i *GEPInst) Result() *Value     { return i.Res }
func (i *GEPInst) Operands() []*Value { return []*Value{i.Base, i.Index} }
func (i *GEPInst) Block() *BasicBlock { return i.block }
func (i *GEPInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *GEPInst) IsTerminator() bool { return false }
func (i *GEPInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.Base == old {
		i.Base = new_
		changed = true
	}
	if i.Index == old {
		i.Index = new_
		changed = true
	}
	return changed
}
func (i *GEPInst) String() string {
	return i.Res.String() + " = gep " + i.Base.String() + ", " + i.Index.String()
}

// --- Call -------------------------------------------------------------------

type CallInst struct {
	id        int
	Res       *Value // nil for void calls
	Callee    *Function // direct callee, nil for indirect calls
	CalleePtr *Value    // indirect target, nil for direct calls
	CalleeTyp *FuncType
	Args      []*Value
	Intrinsic bool
	block     *BasicBlock
}

func (i *CallInst) ID() int        { return i.id }
func (i *CallInst) Result() *Value { return i.Res }
func (i *CallInst) Operands() []*Value {
	ops := make([]*Value, 0, len(i.Args)+1)
	if i.CalleePtr != nil {
		ops = append(ops, i.CalleePtr)
	}
	ops = append(ops, i.Args...)
	return ops
}
func (i *CallInst) Block() *BasicBlock { return i.block }
func (i *CallInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *CallInst) IsTerminator() bool { return false }
func (i *CallInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	if i.CalleePtr == old {
		i.CalleePtr = new_
		changed = true
	}
	for idx, a := range i.Args {
		if a == old {
			i.Args[idx] = new_
			changed = true
		}
	}
	return changed
}
func (i *CallInst) CalleeName() string {
	if i.Callee != nil {
		return i.Callee.Name
	}
	return ""
}
func (i *CallInst) String() string {
	name := i.CalleeName()
	if name == "" {
		name = i.CalleePtr.String()
	}
	s := "call " + name + "("
	for idx, a := range i.Args {
		if idx > 0 {
			s += ", "
		}
		s += a.String()
	}
	s += ")"
	if i.Res != nil {
		s = i.Res.String() + " = " + s
	}
	return s
}

// --- Phi ----------------------------------------------------------------

// PhiIncoming pairs a predecessor with the value flowing from it. Kept as a
// slice, not a map, so printer/test output is deterministic.
type PhiIncoming struct {
	Pred *BasicBlock
	Val  *Value
}

type PhiInst struct {
	id       int
	Res      *Value
	Incoming []PhiIncoming
	block    *BasicBlock
}

func (i *PhiInst) ID() int        { return i.id }
func (i *PhiInst) Result() *Value { return i.Res }
func (i *PhiInst) Operands() []*Value {
	ops := make([]*Value, len(i.Incoming))
	for idx, in := range i.Incoming {
		ops[idx] = in.Val
	}
	return ops
}
func (i *PhiInst) Block() *BasicBlock { return i.block }
func (i *PhiInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *PhiInst) IsTerminator() bool { return false }
func (i *PhiInst) ReplaceOperand(old, new_ *Value) bool {
	changed := false
	for idx := range i.Incoming {
		if i.Incoming[idx].Val == old {
			i.Incoming[idx].Val = new_
			changed = true
		}
	}
	return changed
}
func (i *PhiInst) AddIncoming(pred *BasicBlock, v *Value) {
	i.Incoming = append(i.Incoming, PhiIncoming{Pred: pred, Val: v})
}
func (i *PhiInst) String() string {
	s := i.Res.String() + " = phi "
	for idx, in := range i.Incoming {
		if idx > 0 {
			s += ", "
		}
		s += "[" + in.Val.String() + ", %" + in.Pred.Label + "]"
	}
	return s
}

// --- Terminators -------------------------------------------------------

type RetInst struct {
	id    int
	Val   *Value // nil for a void return
	block *BasicBlock
}

func (i *RetInst) ID() int        { return i.id }
func (i *RetInst) Result() *Value { return nil }
func (i *RetInst) Operands() []*Value {
	if i.Val != nil {
		return []*Value{i.Val}
	}
	return nil
}
func (i *RetInst) Block() *BasicBlock { return i.block }
func (i *RetInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *RetInst) IsTerminator() bool { return true }
func (i *RetInst) Successors() []*BasicBlock { return nil }
func (i *RetInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Val == old {
		i.Val = new_
		return true
	}
	return false
}
func (i *RetInst) String() string {
	if i.Val == nil {
		return "ret void"
	}
	return "ret " + i.Val.String()
}

type ResumeInst struct {
	id    int
	Val   *Value
	block *BasicBlock
}

func (i *ResumeInst) ID() int            { return i.id }
func (i *ResumeInst) Result() *Value     { return nil }
func (i *ResumeInst) Operands() []*Value { return []*Value{i.Val} }
func (i *ResumeInst) Block() *BasicBlock { return i.block }
func (i *ResumeInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *ResumeInst) IsTerminator() bool { return true }
func (i *ResumeInst) Successors() []*BasicBlock { return nil }
func (i *ResumeInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Val == old {
		i.Val = new_
		return true
	}
	return false
}
func (i *ResumeInst) String() string { return "resume " + i.Val.String() }

type UnreachableInst struct {
	id    int
	block *BasicBlock
}

func (i *UnreachableInst) ID() int               { return i.id }
func (i *UnreachableInst) Result() *Value        { return nil }
func (i *UnreachableInst) Operands() []*Value    { return nil }
func (i *UnreachableInst) Block() *BasicBlock    { return i.block }
func (i *UnreachableInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *UnreachableInst) IsTerminator() bool    { return true }
func (i *UnreachableInst) Successors() []*BasicBlock { return nil }
func (i *UnreachableInst) ReplaceOperand(old, new_ *Value) bool { return false }
func (i *UnreachableInst) String() string { return "unreachable" }

type BrInst struct {
	id     int
	Target *BasicBlock
	block  *BasicBlock
}

func (i *BrInst) ID() int            { return i.id }
func (i *BrInst) Result() *Value     { return nil }
func (i *BrInst) Operands() []*Value { return nil }
func (i *BrInst) Block() *BasicBlock { return i.block }
func (i *BrInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *BrInst) IsTerminator() bool { return true }
func (i *BrInst) Successors() []*BasicBlock { return []*BasicBlock{i.Target} }
func (i *BrInst) ReplaceOperand(old, new_ *Value) bool { return false }
func (i *BrInst) String() string { return "br %" + i.Target.Label }

type CondBrInst struct {
	id         int
	Cond       *Value
	TrueBlock  *BasicBlock
	FalseBlock *BasicBlock
	block      *BasicBlock
}

func (i *CondBrInst) ID() int            { return i.id }
func (i *CondBrInst) Result() *Value     { return nil }
func (i *CondBrInst) Operands() []*Value { return []*Value{i.Cond} }
func (i *CondBrInst) Block() *BasicBlock { return i.block }
func (i *CondBrInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *CondBrInst) IsTerminator() bool { return true }
func (i *CondBrInst) Successors() []*BasicBlock {
	return []*BasicBlock{i.TrueBlock, i.FalseBlock}
}
func (i *CondBrInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Cond == old {
		i.Cond = new_
		return true
	}
	return false
}
func (i *CondBrInst) String() string {
	return "br " + i.Cond.String() + ", %" + i.TrueBlock.Label + ", %" + i.FalseBlock.Label
}

// IndirectBrInst transfers control to one of a declared set of blocks,
// selected by a runtime pointer -- control-flow flattening's dispatcher and
// the destination set grow as originally-distinct blocks are re-routed into
// it.
type IndirectBrInst struct {
	id    int
	Addr  *Value
	Dests []*BasicBlock
	block *BasicBlock
}

func (i *IndirectBrInst) ID() int            { return i.id }
func (i *IndirectBrInst) Result() *Value     { return nil }
func (i *IndirectBrInst) Operands() []*Value { return []*Value{i.Addr} }
func (i *IndirectBrInst) Block() *BasicBlock { return i.block }
func (i *IndirectBrInst) SetBlock(b *BasicBlock) { i.block = b }
func (i *IndirectBrInst) IsTerminator() bool { return true }
func (i *IndirectBrInst) Successors() []*BasicBlock { return i.Dests }
func (i *IndirectBrInst) ReplaceOperand(old, new_ *Value) bool {
	if i.Addr == old {
		i.Addr = new_
		return true
	}
	return false
}
func (i *IndirectBrInst) AddDestination(b *BasicBlock) { i.Dests = append(i.Dests, b) }
func (i *IndirectBrInst) String() string {
	s := "indirectbr " + i.Addr.String() + ", ["
	for idx, d := range i.Dests {
		if idx > 0 {
			s += ", "
		}
		s += "%" + d.Label
	}
	return s + "]"
}
