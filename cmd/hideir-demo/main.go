// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"hideir/internal/ir"
	"hideir/internal/obf"
	"hideir/pipeline"
)

func main() {
	m := sampleModule()

	fmt.Println(ir.Print(m))
	color.Cyan("── running obfuscation pipeline ──")

	registrations := []obf.Registration{
		{Pass: obf.NewStringEncryptionPass(), DefaultEnabled: true},
		{Pass: obf.NewAPIHidingPass(), DefaultEnabled: true},
		{Pass: obf.NewAntiDebuggingPass(), DefaultEnabled: true},
		{Pass: obf.NewAntiTamperingPass(), DefaultEnabled: true},
		{Pass: obf.NewSplitBasicBlockPass(), DefaultEnabled: true},
		{Pass: obf.NewOpaquePredicatePass(), DefaultEnabled: true},
		{Pass: obf.NewFlatteningPass(), DefaultEnabled: true},
		{Pass: obf.NewFunctionOutliningPass(), DefaultEnabled: true},
	}
	pl := pipeline.Default(registrations, obf.NewRand(1))

	results, err := pl.Run(m)
	for _, r := range results {
		switch {
		case r.Err != nil:
			color.Red("✗ %s: %v", r.Pass, r.Err)
		case r.Signal.Outcome == obf.Modified:
			color.Green("✓ %s: %s", r.Pass, r.Signal)
		default:
			color.Yellow("• %s: %s", r.Pass, r.Signal)
		}
	}
	if err != nil {
		color.Red("pipeline aborted: %v", err)
		os.Exit(1)
	}

	color.Cyan("── obfuscated module ──")
	fmt.Println(ir.Print(m))

	for _, fn := range m.Functions {
		if fn.IsDeclaration() {
			continue
		}
		if errs := ir.VerifyFunction(fn); len(errs) != 0 {
			color.Red("✗ %s failed verification:", fn.Name)
			for _, e := range errs {
				fmt.Println("   ", e)
			}
			os.Exit(1)
		}
	}
	color.Green("✅ every function verified clean after obfuscation")
}

// sampleModule builds a small, hand-written program: a function that
// branches on its argument and returns one of two constants, plus a
// greeting string and a call out to libc's puts -- enough surface for
// every pass in the default pipeline to find real work to do.
func sampleModule() *ir.Module {
	m := &ir.Module{Name: "demo", TargetTriple: "x86_64-unknown-linux-gnu"}

	greeting := []byte("hello, hideir\x00")
	m.AddGlobal(&ir.GlobalVariable{
		Name:     "greeting",
		Typ:      &ir.ArrayType{Elem: ir.I8, Len: len(greeting)},
		Init:     greeting,
		Constant: true,
	})

	b := ir.NewBuilder(m)
	puts := b.NewFunction("puts", &ir.FuncType{Params: []ir.Type{ir.Ptr}, Ret: ir.I32}, ir.LinkageExternalDecl)

	choose := b.NewFunction("choose", &ir.FuncType{Params: []ir.Type{ir.I32}, Ret: ir.I32}, ir.LinkageInternal)
	entry := choose.Entry()
	onZero := b.NewBlock("on_zero")
	onNonZero := b.NewBlock("on_nonzero")
	join := b.NewBlock("join")

	b.SetInsertPoint(choose, entry)
	g := m.FindGlobal("greeting")
	b.EmitCall(puts, []*ir.Value{ir.GlobalAddr(g)})
	cond := b.EmitICmp("eq", choose.Params[0], ir.ConstInt(ir.I32, 0))
	b.EmitCondBr(cond, onZero, onNonZero)

	b.SetInsertPoint(choose, onZero)
	b.EmitBr(join)

	b.SetInsertPoint(choose, onNonZero)
	b.EmitBr(join)

	b.SetInsertPoint(choose, join)
	phi := b.EmitPhi(ir.I32)
	phi.AddIncoming(onZero, ir.ConstInt(ir.I32, 100))
	phi.AddIncoming(onNonZero, ir.ConstInt(ir.I32, -100))
	b.EmitRet(phi.Res)

	return m
}
