package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hideir/internal/ir"
	"hideir/internal/obf"
)

func newLinuxModule(name string) *ir.Module {
	return &ir.Module{Name: name, TargetTriple: "x86_64-unknown-linux-gnu"}
}

func TestDefaultRunsPassesInRecommendedOrder(t *testing.T) {
	regs := []obf.Registration{
		{Pass: obf.NewFunctionOutliningPass(), DefaultEnabled: true},
		{Pass: obf.NewStringEncryptionPass(), DefaultEnabled: true},
		{Pass: obf.NewAntiTamperingPass(), DefaultEnabled: true},
		{Pass: obf.NewOpaquePredicatePass(), DefaultEnabled: false},
	}
	pl := Default(regs, obf.NewRand(1))

	var names []string
	for _, s := range pl.steps {
		names = append(names, s.Pass.Name())
	}
	require.Equal(t, []string{"EnterpriseStringEncryption", "EnterpriseAntiTampering", "EnterpriseFunctionOutlining"}, names,
		"Default must order enabled passes per the recommended pipeline, and must never include a pass with DefaultEnabled=false")
}

func TestRunExecutesEveryStepAndReturnsResults(t *testing.T) {
	m := newLinuxModule("m")
	b := ir.NewBuilder(m)
	fn := b.NewFunction("f", &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	b.SetInsertPoint(fn, fn.Entry())
	b.EmitRet(nil)

	pl := New([]obf.Pass{obf.NewStringEncryptionPass(), obf.NewSplitBasicBlockPass()}, obf.NewRand(42))
	results, err := pl.Run(m)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "EnterpriseStringEncryption", results[0].Pass)
	assert.Equal(t, obf.NoOp, results[0].Signal.Outcome)
	assert.Equal(t, "EnterpriseSplitBasicBlock", results[1].Pass)
}

func TestRunStopsOnFatalError(t *testing.T) {
	m := &ir.Module{Name: "m"} // no target triple set

	pl := New([]obf.Pass{obf.NewAPIHidingPass(), obf.NewSplitBasicBlockPass()}, obf.NewRand(1))
	results, err := pl.Run(m)
	require.Error(t, err)
	require.Len(t, results, 1, "the second pass must never run after the first one fails fatally")
	assert.Equal(t, "EnterpriseAPIHiding", results[0].Pass)
}

func TestRunIsSerializedAcrossConcurrentCallers(t *testing.T) {
	m := newLinuxModule("m")
	pl := New([]obf.Pass{obf.NewStringEncryptionPass()}, obf.NewRand(7))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pl.Run(m)
	}()
	_, err := pl.Run(m)
	<-done
	assert.NoError(t, err)
}
