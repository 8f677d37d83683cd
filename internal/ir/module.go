package ir

import "strconv"

// Linkage mirrors LLVM's handful of externally-observable linkages, enough
// for API Hiding to tell "defined here" from "resolved at load time" and for
// outlining to avoid touching anything the module doesn't own the body of.
type Linkage int

const (
	LinkageInternal Linkage = iota
	LinkageExternal
	LinkageExternalDecl // declared, no body -- import from the host runtime/libc
)

func (l Linkage) String() string {
	switch l {
	case LinkageInternal:
		return "internal"
	case LinkageExternalDecl:
		return "external declare"
	default:
		return "external"
	}
}

// GlobalVariable is a module-level storage slot: a byte buffer (encrypted
// string literals), a scalar (the opaque-predicate key, the anti-tamper
// expected hash), or an externally-resolved symbol (an imported API the
// module calls indirectly once API Hiding runs).
type GlobalVariable struct {
	Name     string
	Typ      Type
	Linkage  Linkage
	Init     []byte // raw initializer bytes, nil for a declaration
	Constant bool
}

func (g *GlobalVariable) String() string {
	return "@" + g.Name
}

// GlobalCtor.Priority is lower-runs-first, matching LLVM's llvm.global_ctors
// convention. The passes that install constructors (string decryption,
// anti-tamper init) care about relative ordering, not absolute values.
type GlobalCtor struct {
	Fn       *Function
	Priority int
}

// BasicBlock is a maximal straight-line instruction sequence ending in
// exactly one terminator. Predecessors/Successors are recomputed by
// RecomputeCFG rather than kept incrementally consistent by every pass --
// passes are free to rewrite terminators and call RecomputeCFG once when
// they're done.
type BasicBlock struct {
	Label string
	Fn    *Function
	Instrs []Instruction

	Preds []*BasicBlock
	Succs []*BasicBlock

	// Addressed is set once something takes this block's address (a
	// blockaddress constant). Flattening and outlining must never delete or
	// merge a block with Addressed set without rewriting every use of that
	// address first.
	Addressed bool
}

// Terminator returns the block's terminator, or nil if the block is
// (transiently, mid-construction) empty.
func (b *BasicBlock) Terminator() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if t, ok := last.(Terminator); ok {
		return t
	}
	return nil
}

// NonTerminatorInstrs returns every instruction in the block except a
// trailing terminator, if present.
func (b *BasicBlock) NonTerminatorInstrs() []Instruction {
	if t := b.Terminator(); t != nil {
		return b.Instrs[:len(b.Instrs)-1]
	}
	return b.Instrs
}

// Append adds an instruction to the end of the block and sets its owning
// block pointer.
func (b *BasicBlock) Append(i Instruction) {
	i.SetBlock(b)
	b.Instrs = append(b.Instrs, i)
}

// InsertAt inserts an instruction at the given index, shifting later
// instructions down. Used by SSA-demotion's store/load insertion.
func (b *BasicBlock) InsertAt(idx int, i Instruction) {
	i.SetBlock(b)
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[idx+1:], b.Instrs[idx:])
	b.Instrs[idx] = i
}

// Phis returns the leading run of PhiInst in the block, in order.
func (b *BasicBlock) Phis() []*PhiInst {
	var phis []*PhiInst
	for _, i := range b.Instrs {
		p, ok := i.(*PhiInst)
		if !ok {
			break
		}
		phis = append(phis, p)
	}
	return phis
}

// Function is a defined or declared procedure. Blocks[0] is always the
// entry block by convention (the single predecessor-less block other than
// unreachable ones introduced by the passes themselves).
type Function struct {
	Name    string
	Typ     *FuncType
	Params  []*Value
	Linkage Linkage
	Blocks  []*BasicBlock

	NoInline   bool
	NoOptimize bool

	nextValueID  int
	nextInstrID  int
	nextBlockID  int
}

// IsDeclaration reports whether the function has no body to rewrite.
func (f *Function) IsDeclaration() bool {
	return f.Linkage == LinkageExternalDecl || len(f.Blocks) == 0
}

// Entry returns the function's entry block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) nextValue() int {
	f.nextValueID++
	return f.nextValueID
}

func (f *Function) nextInstr() int {
	f.nextInstrID++
	return f.nextInstrID
}

func (f *Function) nextBlock() int {
	f.nextBlockID++
	return f.nextBlockID
}

// NewValue allocates a fresh SSA value of the given type in f's numbering
// space, without appending any defining instruction -- callers that build
// instructions by hand (rather than through a Builder) use this plus
// NewInstrID to keep IDs unique.
func (f *Function) NewValue(typ Type) *Value {
	return &Value{ID: f.nextValue(), Typ: typ}
}

// NewInstrID allocates a fresh instruction ID in f's numbering space.
func (f *Function) NewInstrID() int {
	return f.nextInstr()
}

// NewBlock creates and appends a fresh block to the function, labeling it
// uniquely within the function.
func (f *Function) NewBlock(labelHint string) *BasicBlock {
	label := labelHint
	if label == "" {
		label = "bb"
	}
	b := &BasicBlock{Label: uniqueLabel(f, label), Fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

func uniqueLabel(f *Function, hint string) string {
	n := f.nextBlock()
	return hint + "." + strconv.Itoa(n)
}

// AllInstructions yields every instruction across every block, in block
// order then intra-block order -- the iteration order most passes want.
func (f *Function) AllInstructions() []Instruction {
	var out []Instruction
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
	}
	return out
}

// RemoveBlock deletes a block from the function's block list. Callers must
// have already redirected every predecessor's terminator away from it.
func (f *Function) RemoveBlock(target *BasicBlock) {
	out := f.Blocks[:0]
	for _, b := range f.Blocks {
		if b != target {
			out = append(out, b)
		}
	}
	f.Blocks = out
}

// Module is the top-level unit the passes operate on: a set of functions, a
// set of global variables, and an ordered constructor list (lower priority
// runs first, mirroring llvm.global_ctors).
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*GlobalVariable
	Ctors     []GlobalCtor

	TargetTriple string

	nextGlobalID int
}

// FindFunction looks up a function by exact name.
func (m *Module) FindFunction(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindGlobal looks up a global variable by exact name.
func (m *Module) FindGlobal(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// AddGlobal appends a global variable, assuming the caller already picked a
// unique name (see UniqueObfName in ctors.go for the naming convention
// every pass uses for synthesized symbols).
func (m *Module) AddGlobal(g *GlobalVariable) {
	m.Globals = append(m.Globals, g)
}

// AddFunction appends a function to the module.
func (m *Module) AddFunction(f *Function) {
	m.Functions = append(m.Functions, f)
}
