package obf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hideir/internal/ir"
)

func TestFunctionOutliningLiftsNonEntryBlocks(t *testing.T) {
	m := newEmptyModule("m")
	b := ir.NewBuilder(m)
	fn := b.NewFunction("f", &ir.FuncType{Params: []ir.Type{ir.I32}, Ret: ir.I32}, ir.LinkageInternal)
	entry := fn.Entry()
	tail := b.NewBlock("tail")

	b.SetInsertPoint(fn, entry)
	b.EmitBr(tail)

	b.SetInsertPoint(fn, tail)
	v := b.EmitBinary("add", ir.I32, fn.Params[0], ir.ConstInt(ir.I32, 1))
	b.EmitRet(v)

	originalFnCount := len(m.Functions)

	pass := NewFunctionOutliningPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, Modified, sig.Outcome)
	assert.Greater(t, len(m.Functions), originalFnCount, "outlining should add a new function")

	var outlined *ir.Function
	for _, f := range m.Functions {
		if ir.IsObfSymbol(f.Name) {
			outlined = f
		}
	}
	require.NotNil(t, outlined, "expected an obf.outlined.* function")
	if errs := ir.VerifyFunction(outlined); len(errs) != 0 {
		t.Errorf("outlined function failed verification: %v", errs)
	}
	if errs := ir.VerifyFunction(fn); len(errs) != 0 {
		t.Errorf("caller failed verification after outlining: %v", errs)
	}
}

func TestFunctionOutliningNeverTouchesEntryBlock(t *testing.T) {
	m := newEmptyModule("m")
	fn, b := newSimpleFunc(m, "f")
	b.SetInsertPoint(fn, fn.Entry())
	b.EmitRet(nil)

	pass := NewFunctionOutliningPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, NoOp, sig.Outcome, "a single entry-only block has nothing eligible to outline")
	assert.Len(t, fn.Blocks, 1)
}
