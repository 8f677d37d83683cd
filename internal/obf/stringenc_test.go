package obf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hideir/internal/ir"
)

func newEmptyModule(name string) *ir.Module {
	return &ir.Module{Name: name, TargetTriple: "x86_64-unknown-linux-gnu"}
}

func newSimpleFunc(m *ir.Module, name string) (*ir.Function, *ir.Builder) {
	b := ir.NewBuilder(m)
	fn := b.NewFunction(name, &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	return fn, b
}

func TestStringEncryptionEncryptsEligibleGlobals(t *testing.T) {
	m := newEmptyModule("m")
	plain := []byte("secret!!")
	g := &ir.GlobalVariable{Name: "msg", Typ: &ir.ArrayType{Elem: ir.I8, Len: len(plain)}, Init: append([]byte(nil), plain...), Constant: true}
	m.AddGlobal(g)

	pass := NewStringEncryptionPass()
	sig, err := pass.Run(m, &fixedRand{ints: []int{7}})
	require.NoError(t, err)
	assert.Equal(t, Modified, sig.Outcome)

	assert.NotEqual(t, plain, g.Init, "initializer should no longer be plaintext")
	assert.False(t, g.Constant, "global must stay mutable so the ctor can decrypt it in place")

	key := byte(1 + 7)
	decrypted := make([]byte, len(g.Init))
	for i, c := range g.Init {
		decrypted[i] = c ^ key
	}
	assert.Equal(t, plain, decrypted)

	require.Len(t, m.Ctors, 1)
	assert.Equal(t, "obf.decrypt_strings", m.Ctors[0].Fn.Name)
	assert.True(t, m.Ctors[0].Fn.NoInline)
	assert.True(t, m.Ctors[0].Fn.NoOptimize)
	if errs := ir.VerifyFunction(m.Ctors[0].Fn); len(errs) != 0 {
		t.Errorf("decrypt_strings failed verification: %v", errs)
	}
}

func TestStringEncryptionSkipsShortAndNonByteGlobals(t *testing.T) {
	m := newEmptyModule("m")
	short := &ir.GlobalVariable{Name: "short", Typ: &ir.ArrayType{Elem: ir.I8, Len: 2}, Init: []byte{1, 2}}
	wide := &ir.GlobalVariable{Name: "wide", Typ: &ir.ArrayType{Elem: ir.I32, Len: 4}, Init: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	m.AddGlobal(short)
	m.AddGlobal(wide)

	pass := NewStringEncryptionPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, NoOp, sig.Outcome)
	assert.Equal(t, []byte{1, 2}, short.Init)
	assert.Empty(t, m.Ctors)
}

func TestStringEncryptionSkipsAlreadyObfGlobals(t *testing.T) {
	m := newEmptyModule("m")
	g := &ir.GlobalVariable{Name: "obf.other", Typ: &ir.ArrayType{Elem: ir.I8, Len: 8}, Init: make([]byte, 8)}
	m.AddGlobal(g)

	pass := NewStringEncryptionPass()
	sig, err := pass.Run(m, &fixedRand{})
	require.NoError(t, err)
	assert.Equal(t, NoOp, sig.Outcome)
}
