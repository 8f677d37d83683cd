package ir

import "testing"

func TestUniqueObfNameAvoidsCollisions(t *testing.T) {
	m := newTestModule("m")
	m.AddGlobal(&GlobalVariable{Name: "obf.key", Typ: I32})

	name := UniqueObfName(m, "key")
	if name != "obf.key.1" {
		t.Errorf("expected obf.key.1, got %s", name)
	}
}

func TestUniqueObfNameFreshBase(t *testing.T) {
	m := newTestModule("m")
	name := UniqueObfName(m, "decrypt_strings")
	if name != "obf.decrypt_strings" {
		t.Errorf("expected obf.decrypt_strings, got %s", name)
	}
}

func TestIsObfSymbol(t *testing.T) {
	if !IsObfSymbol("obf.tamper_init") {
		t.Error("expected obf.tamper_init to be recognized as an obf symbol")
	}
	if IsObfSymbol("main") {
		t.Error("did not expect main to be recognized as an obf symbol")
	}
}

func TestAppendGlobalCtorOrdersByPriority(t *testing.T) {
	m := newTestModule("m")
	b := NewBuilder(m)

	late := b.NewFunction("obf.late_init", &FuncType{Ret: Void}, LinkageInternal)
	early := b.NewFunction("obf.early_init", &FuncType{Ret: Void}, LinkageInternal)

	AppendGlobalCtor(m, late, 100)
	AppendGlobalCtor(m, early, 0)

	if m.Ctors[0].Fn != early {
		t.Errorf("expected early_init first, got %s", m.Ctors[0].Fn.Name)
	}
	if m.Ctors[1].Fn != late {
		t.Errorf("expected late_init second, got %s", m.Ctors[1].Fn.Name)
	}
}
