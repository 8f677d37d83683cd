package ir

import "testing"

func TestExtractBlockRejectsEntryBlock(t *testing.T) {
	m := newTestModule("m")
	b := NewBuilder(m)
	fn := b.NewFunction("f", &FuncType{Ret: Void}, LinkageInternal)
	b.SetInsertPoint(fn, fn.Entry())
	b.EmitRet(nil)

	if _, ok := ExtractBlock(m, fn.Entry(), "obf.outlined.0"); ok {
		t.Error("expected ExtractBlock to reject the entry block")
	}
}

func TestExtractBlockRejectsCondBrTerminator(t *testing.T) {
	m := newTestModule("m")
	b := NewBuilder(m)
	fn := b.NewFunction("f", &FuncType{Params: []Type{I32}, Ret: Void}, LinkageInternal)
	b.SetInsertPoint(fn, fn.Entry())
	body := b.NewBlock("body")
	b.EmitBr(body)

	b.SetInsertPoint(fn, body)
	left := b.NewBlock("left")
	right := b.NewBlock("right")
	b.EmitAlloca(I32)
	cond := b.EmitICmp("eq", fn.Params[0], ConstInt(I32, 0))
	b.EmitCondBr(cond, left, right)

	b.SetInsertPoint(fn, left)
	b.EmitRet(nil)
	b.SetInsertPoint(fn, right)
	b.EmitRet(nil)

	if _, ok := ExtractBlock(m, body, "obf.outlined.0"); ok {
		t.Error("expected ExtractBlock to reject a conditional-branch terminator")
	}
}

func TestExtractBlockLiftsStraightLineCode(t *testing.T) {
	m := newTestModule("m")
	b := NewBuilder(m)
	fn := b.NewFunction("f", &FuncType{Params: []Type{I32}, Ret: I32}, LinkageInternal)
	entry := fn.Entry()
	b.SetInsertPoint(fn, entry)

	body := b.NewBlock("body")
	b.EmitBr(body)

	b.SetInsertPoint(fn, body)
	doubled := b.EmitBinary("add", I32, fn.Params[0], fn.Params[0])
	tripled := b.EmitBinary("add", I32, doubled, fn.Params[0])
	exitBlk := b.NewBlock("exit")
	b.EmitBr(exitBlk)

	b.SetInsertPoint(fn, exitBlk)
	b.EmitRet(tripled)

	extracted, ok := ExtractBlock(m, body, "obf.outlined.0")
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if extracted.Fn.Name != "obf.outlined.0" {
		t.Errorf("unexpected extracted function name %q", extracted.Fn.Name)
	}
	if len(extracted.LiveIns) != 1 {
		t.Fatalf("expected 1 live-in (the parameter), got %d", len(extracted.LiveIns))
	}
	if len(extracted.LiveOuts) != 1 {
		t.Fatalf("expected 1 live-out (tripled), got %d", len(extracted.LiveOuts))
	}

	foundCall := false
	for _, i := range body.Instrs {
		if _, ok := i.(*CallInst); ok {
			foundCall = true
		}
	}
	if !foundCall {
		t.Error("expected body block to contain a call to the extracted function after extraction")
	}
	if _, ok := body.Terminator().(*BrInst); !ok {
		t.Error("expected body block's original unconditional branch to survive extraction")
	}
	if errs := VerifyFunction(fn); len(errs) != 0 {
		t.Errorf("expected caller function to remain valid after extraction, got %v", errs)
	}
	if errs := VerifyFunction(extracted.Fn); len(errs) != 0 {
		t.Errorf("expected extracted function to be valid, got %v", errs)
	}
}
