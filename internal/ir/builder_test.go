package ir

import (
	"testing"
)

// ============================================================================
// Builder Basic Tests
// ============================================================================

func newTestModule(name string) *Module {
	return &Module{Name: name}
}

func TestNewBuilder(t *testing.T) {
	m := newTestModule("test")
	b := NewBuilder(m)

	if b == nil {
		t.Fatal("NewBuilder should not return nil")
	}
	if b.Module != m {
		t.Error("Builder module not set correctly")
	}
}

func TestNewFunctionEntryBlock(t *testing.T) {
	m := newTestModule("test")
	b := NewBuilder(m)

	fn := b.NewFunction("f", &FuncType{Params: []Type{I32}, Ret: I32}, LinkageInternal)
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 entry block, got %d", len(fn.Blocks))
	}
	if fn.Entry().Label != "entry" {
		t.Errorf("expected entry label 'entry', got %q", fn.Entry().Label)
	}
	if len(fn.Params) != 1 {
		t.Fatalf("expected 1 param, got %d", len(fn.Params))
	}
	if fn.Params[0].Name != "a" {
		t.Errorf("expected first param named 'a', got %q", fn.Params[0].Name)
	}
}

func TestDeclarationHasNoBlocks(t *testing.T) {
	m := newTestModule("test")
	b := NewBuilder(m)

	fn := b.NewFunction("extern_fn", &FuncType{Ret: Void}, LinkageExternalDecl)
	if len(fn.Blocks) != 0 {
		t.Errorf("declared function should have no blocks, got %d", len(fn.Blocks))
	}
	if !fn.IsDeclaration() {
		t.Error("expected IsDeclaration true")
	}
}

func TestEmitArithmeticChain(t *testing.T) {
	m := newTestModule("test")
	b := NewBuilder(m)

	fn := b.NewFunction("add_one", &FuncType{Params: []Type{I32}, Ret: I32}, LinkageInternal)
	b.SetInsertPoint(fn, fn.Entry())

	one := ConstInt(I32, 1)
	sum := b.EmitBinary("add", I32, fn.Params[0], one)
	b.EmitRet(sum)

	if len(fn.Entry().Instrs) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(fn.Entry().Instrs))
	}
	if _, ok := fn.Entry().Instrs[0].(*BinaryInst); !ok {
		t.Errorf("expected first instruction to be BinaryInst, got %T", fn.Entry().Instrs[0])
	}
	ret, ok := fn.Entry().Instrs[1].(*RetInst)
	if !ok {
		t.Fatalf("expected second instruction to be RetInst, got %T", fn.Entry().Instrs[1])
	}
	if ret.Val != sum {
		t.Error("ret should return the computed sum")
	}
}

func TestEmitCondBrWiresEdges(t *testing.T) {
	m := newTestModule("test")
	b := NewBuilder(m)

	fn := b.NewFunction("branchy", &FuncType{Params: []Type{I32}, Ret: Void}, LinkageInternal)
	entry := fn.Entry()
	b.SetInsertPoint(fn, entry)

	thenBlk := b.NewBlock("then")
	elseBlk := b.NewBlock("else")

	cond := b.EmitICmp("eq", fn.Params[0], ConstInt(I32, 0))
	b.EmitCondBr(cond, thenBlk, elseBlk)

	if len(entry.Succs) != 2 {
		t.Fatalf("expected 2 successors, got %d", len(entry.Succs))
	}
	if thenBlk.Preds[0] != entry || elseBlk.Preds[0] != entry {
		t.Error("then/else predecessors not wired to entry")
	}
}

func TestGlobalAddrAndBlockAddr(t *testing.T) {
	m := newTestModule("test")
	g := &GlobalVariable{Name: "obf.key", Typ: I32}
	m.AddGlobal(g)

	addr := GlobalAddr(g)
	if addr.Global != g {
		t.Error("GlobalAddr did not set Global field")
	}

	b := NewBuilder(m)
	fn := b.NewFunction("f", &FuncType{Ret: Void}, LinkageInternal)
	target := fn.Entry()

	ba := BlockAddr(target)
	if ba.BlockAddr != target {
		t.Error("BlockAddr did not set BlockAddr field")
	}
	if !target.Addressed {
		t.Error("BlockAddr should mark target block Addressed")
	}
}
