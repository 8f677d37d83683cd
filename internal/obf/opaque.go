package obf

import "hideir/internal/ir"

// opaqueKeyGlobal is the module-wide key every opaque predicate reads
// through a volatile load: always zero at runtime, but the optimizer
// cannot prove that without seeing every store to it (there are none),
// which the volatile qualifier additionally forbids it from assuming away.
const opaqueKeyGlobal = "obf.opaque_key"

// OpaquePredicatePass rewrites every block's terminator into a conditional
// branch on an always-true identity, `(key*a+b)==b`, whose true edge
// continues to the original successor and whose false edge leads to a dead
// junk block that just branches on to the true one. A disassembler sees a real branch it must consider both
// sides of; at runtime only one side ever executes.
type OpaquePredicatePass struct{}

func NewOpaquePredicatePass() *OpaquePredicatePass { return &OpaquePredicatePass{} }

func (p *OpaquePredicatePass) Name() string { return "EnterpriseOpaquePredicate" }

func (p *OpaquePredicatePass) Run(m *ir.Module, rng Rand) (Signal, error) {
	key := m.FindGlobal(opaqueKeyGlobal)
	if key == nil {
		key = &ir.GlobalVariable{Name: opaqueKeyGlobal, Typ: ir.I32, Linkage: ir.LinkageInternal, Init: []byte{0, 0, 0, 0}}
		m.AddGlobal(key)
	}

	modified := false
	for _, fn := range m.Functions {
		if skipTarget(fn) {
			continue
		}
		original := append([]*ir.BasicBlock(nil), fn.Blocks...)
		for _, b := range original {
			t := b.Terminator()
			switch t.(type) {
			case *ir.IndirectBrInst:
				continue // a flattened dispatcher's edge set is load-bearing; leave it alone
			case nil:
				continue
			}
			if insertOpaquePredicate(m, fn, b, key, rng) {
				modified = true
			}
		}
	}

	if !modified {
		return Signal{Outcome: NoOp, Reason: "no eligible terminators"}, nil
	}
	return Signal{Outcome: Modified}, nil
}

func insertOpaquePredicate(m *ir.Module, fn *ir.Function, b *ir.BasicBlock, key *ir.GlobalVariable, rng Rand) bool {
	val1 := int64(2 + rng.Intn(49))
	val2 := int64(2 + rng.Intn(49))

	// trueBlock inherits the original terminator by becoming a new block
	// holding it; b keeps only the instructions before the terminator.
	term := b.Terminator()
	trueBlock := &ir.BasicBlock{Label: b.Label + ".op.true", Fn: fn}
	trueBlock.Append(term)
	b.Instrs = b.Instrs[:len(b.Instrs)-1]

	insertBlockAfter(fn, b, trueBlock)

	falseBlock := fn.NewBlock("op.false")
	fb := ir.NewBuilder(m)
	fb.SetInsertPoint(fn, falseBlock)
	fb.EmitBr(trueBlock)

	eb := ir.NewBuilder(m)
	eb.SetInsertPoint(fn, b)
	loadKey := eb.EmitLoad(ir.GlobalAddr(key), ir.I32, true)
	mul := eb.EmitBinary("mul", ir.I32, loadKey, ir.ConstInt(ir.I32, val1))
	add := eb.EmitBinary("add", ir.I32, mul, ir.ConstInt(ir.I32, val2))
	cmp := eb.EmitICmp("eq", add, ir.ConstInt(ir.I32, val2))
	eb.EmitCondBr(cmp, trueBlock, falseBlock)

	ir.RecomputeCFG(fn)
	return true
}

func insertBlockAfter(fn *ir.Function, after, b *ir.BasicBlock) {
	idx := indexOfBlock(fn, after)
	fn.Blocks = append(fn.Blocks, nil)
	copy(fn.Blocks[idx+2:], fn.Blocks[idx+1:])
	fn.Blocks[idx+1] = b
}
