package obf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hideir/internal/ir"
)

func TestSplitBasicBlockSplitsLongBlock(t *testing.T) {
	m := newEmptyModule("m")
	b := ir.NewBuilder(m)
	fn := b.NewFunction("f", &ir.FuncType{Params: []ir.Type{ir.I32}, Ret: ir.I32}, ir.LinkageInternal)
	entry := fn.Entry()
	b.SetInsertPoint(fn, entry)

	a := b.EmitBinary("add", ir.I32, fn.Params[0], ir.ConstInt(ir.I32, 1))
	c := b.EmitBinary("add", ir.I32, a, ir.ConstInt(ir.I32, 2))
	d := b.EmitBinary("add", ir.I32, c, ir.ConstInt(ir.I32, 3))
	b.EmitRet(d)

	originalBlockCount := len(fn.Blocks)

	pass := NewSplitBasicBlockPass()
	sig, err := pass.Run(m, &fixedRand{ints: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, Modified, sig.Outcome)
	assert.Greater(t, len(fn.Blocks), originalBlockCount)

	if errs := ir.VerifyFunction(fn); len(errs) != 0 {
		t.Errorf("function failed verification after split: %v", errs)
	}

	found := false
	for _, bb := range fn.Blocks {
		if bb.Label == entry.Label+".split" {
			found = true
		}
	}
	assert.True(t, found, "expected a .split block")
}

func TestSplitBasicBlockSkipsShortBlocks(t *testing.T) {
	m := newEmptyModule("m")
	b := ir.NewBuilder(m)
	fn := b.NewFunction("f", &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	b.SetInsertPoint(fn, fn.Entry())
	b.EmitRet(nil)

	pass := NewSplitBasicBlockPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, NoOp, sig.Outcome)
	assert.Len(t, fn.Blocks, 1)
}

func TestSplitBasicBlockNeverSplitsBeforePhi(t *testing.T) {
	m := newEmptyModule("m")
	b := ir.NewBuilder(m)
	fn := b.NewFunction("f", &ir.FuncType{Ret: ir.I32}, ir.LinkageInternal)
	entry := fn.Entry()
	left := b.NewBlock("left")
	join := b.NewBlock("join")

	b.SetInsertPoint(fn, entry)
	b.EmitBr(left)

	b.SetInsertPoint(fn, left)
	b.EmitBr(join)

	b.SetInsertPoint(fn, join)
	phi := b.EmitPhi(ir.I32)
	phi.AddIncoming(left, ir.ConstInt(ir.I32, 1))
	v := b.EmitBinary("add", ir.I32, phi.Res, ir.ConstInt(ir.I32, 1))
	b.EmitRet(v)

	assert.False(t, splitAt(fn, join, 0), "splitting at index 0 must never cut in front of a leading phi")
}
