package obf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hideir/internal/ir"
)

func TestAntiTamperingHashesCanonicalTargetAndGuardsEveryFunction(t *testing.T) {
	m := newEmptyModule("m")
	fnA, bA := newSimpleFunc(m, "a")
	bA.SetInsertPoint(fnA, fnA.Entry())
	bA.EmitAlloca(ir.I32)
	bA.EmitRet(nil)

	fnB, bB := newSimpleFunc(m, "b")
	bB.SetInsertPoint(fnB, fnB.Entry())
	bB.EmitRet(nil)

	pass := NewAntiTamperingPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, Modified, sig.Outcome)
	assert.Equal(t, "a", pass.CanonicalTarget(), "the first eligible function becomes the canonical hash target")

	expected := m.FindGlobal("obf.expected_hash")
	require.NotNil(t, expected)

	initFn := m.FindFunction("obf.tamper_init")
	require.NotNil(t, initFn)
	require.Len(t, m.Ctors, 1)
	assert.Equal(t, initFn, m.Ctors[0].Fn)
	if errs := ir.VerifyFunction(initFn); len(errs) != 0 {
		t.Errorf("tamper_init failed verification: %v", errs)
	}

	for _, fn := range []*ir.Function{fnA, fnB} {
		foundTrap := false
		for _, bb := range fn.Blocks {
			if bb.Label == fn.Entry().Label+".tamper.trap" {
				foundTrap = true
			}
		}
		assert.True(t, foundTrap, "expected a tamper.trap block guarding %s", fn.Name)
		if errs := ir.VerifyFunction(fn); len(errs) != 0 {
			t.Errorf("%s failed verification after anti-tamper instrumentation: %v", fn.Name, errs)
		}
	}
}

func TestAntiTamperingNoOpOnEmptyModule(t *testing.T) {
	m := newEmptyModule("m")
	declareOrGet(m, "external_only", &ir.FuncType{Ret: ir.Void})

	pass := NewAntiTamperingPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, NoOp, sig.Outcome)
	assert.Empty(t, pass.CanonicalTarget())
}

func TestBuildHashLoopProducesValidSSA(t *testing.T) {
	m := newEmptyModule("m")
	target, tb := newSimpleFunc(m, "target")
	tb.SetInsertPoint(target, target.Entry())
	tb.EmitRet(nil)

	b := ir.NewBuilder(m)
	host := b.NewFunction("host", &ir.FuncType{Ret: ir.I32}, ir.LinkageInternal)
	hash, end := buildHashLoop(m, host, target, host.Entry())
	require.NotNil(t, hash)

	eb := ir.NewBuilder(m)
	eb.SetInsertPoint(host, end)
	eb.EmitRet(hash)
	ir.RecomputeCFG(host)

	if errs := ir.VerifyFunction(host); len(errs) != 0 {
		t.Errorf("host failed verification: %v", errs)
	}

	var loopHeader *ir.BasicBlock
	for _, bb := range host.Blocks {
		if bb.Label == "hash.loop" {
			loopHeader = bb
		}
	}
	require.NotNil(t, loopHeader)
	assert.Len(t, loopHeader.Phis(), 2, "expected an index accumulator and a hash accumulator phi")
}
