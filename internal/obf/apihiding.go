package obf

import (
	"strings"

	"hideir/internal/ir"
)

// rtldDefaultElse/rtldDefaultMacOS are dlsym's RTLD_DEFAULT pseudo-handle
// on non-macOS and macOS Unix triples respectively -- reproduced from the
// original's platform table rather than re-derived.
const (
	rtldDefaultElse  = 0
	rtldDefaultMacOS = -2
)

// APIHidingPass rewrites every direct call to an externally-declared,
// non-intrinsic function into a runtime symbol lookup (dlsym on Unix,
// GetProcAddress+GetModuleHandleA on Windows) followed by an indirect call
// through the resolved pointer, so the import table no longer names the
// API being called.
type APIHidingPass struct{}

func NewAPIHidingPass() *APIHidingPass { return &APIHidingPass{} }

func (p *APIHidingPass) Name() string { return "EnterpriseAPIHiding" }

func (p *APIHidingPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	isWindows, isMacOS, ok := classifyTriple(m.TargetTriple)
	if !ok {
		return Signal{}, NewTripleUnsupported(p.Name(), m.TargetTriple)
	}

	type target struct {
		fn   *ir.Function
		call *ir.CallInst
		callee *ir.Function
	}
	var targets []target

	for _, fn := range m.Functions {
		if fn.IsDeclaration() || ir.IsObfSymbol(fn.Name) {
			continue
		}
		for _, i := range fn.AllInstructions() {
			call, ok := i.(*ir.CallInst)
			if !ok || call.Callee == nil {
				continue
			}
			callee := call.Callee
			if !callee.IsDeclaration() || callee.Linkage != ir.LinkageExternalDecl {
				continue
			}
			if call.Intrinsic || strings.HasPrefix(callee.Name, "llvm.") || isResolverSymbol(callee.Name) {
				continue
			}
			targets = append(targets, target{fn: fn, call: call, callee: callee})
		}
	}

	if len(targets) == 0 {
		return Signal{Outcome: NoOp, Reason: "no direct external calls to hide"}, nil
	}

	var resolveFn *ir.Function
	var getModuleFn *ir.Function
	if isWindows {
		resolveFn = declareOrGet(m, "GetProcAddress", &ir.FuncType{Params: []ir.Type{ir.Ptr, ir.Ptr}, Ret: ir.Ptr})
		getModuleFn = declareOrGet(m, "GetModuleHandleA", &ir.FuncType{Params: []ir.Type{ir.Ptr}, Ret: ir.Ptr})
	} else {
		resolveFn = declareOrGet(m, "dlsym", &ir.FuncType{Params: []ir.Type{ir.Ptr, ir.Ptr}, Ret: ir.Ptr})
	}

	for _, t := range targets {
		blk := t.call.Block()
		mark := len(blk.Instrs)
		b := ir.NewBuilder(m)
		b.SetInsertPoint(t.fn, blk)

		nameGlobal := internStringGlobal(m, ir.UniqueObfName(m, "api."+t.callee.Name), t.callee.Name)
		nameAddr := ir.GlobalAddr(nameGlobal)

		var resolved *ir.Value
		if isWindows {
			hModule := b.EmitCall(getModuleFn, []*ir.Value{ir.NullPtr()})
			resolved = b.EmitCall(resolveFn, []*ir.Value{hModule, nameAddr})
		} else {
			handleVal := rtldDefaultElse
			if isMacOS {
				handleVal = rtldDefaultMacOS
			}
			handle := b.EmitCast("inttoptr", ir.ConstInt(ir.I64, int64(handleVal)), ir.Ptr)
			resolved = b.EmitCall(resolveFn, []*ir.Value{handle, nameAddr})
		}

		indirect := b.EmitIndirectCall(resolved, t.callee.Typ, t.call.Args)

		// The builder appended the lookup and the indirect call at the end of
		// the block; move them into the direct call's place.
		emitted := append([]ir.Instruction(nil), blk.Instrs[mark:]...)
		blk.Instrs = blk.Instrs[:mark]
		for idx, i := range blk.Instrs {
			if i == t.call {
				blk.Instrs = append(blk.Instrs[:idx], append(emitted, blk.Instrs[idx+1:]...)...)
				break
			}
		}
		if t.call.Res != nil {
			replaceAllUsesModule(m, t.call.Res, indirect)
		}
	}

	return Signal{Outcome: Modified}, nil
}

func classifyTriple(triple string) (isWindows, isMacOS, ok bool) {
	switch triple {
	case "":
		return false, false, false
	case "x86_64-pc-windows-msvc", "aarch64-pc-windows-msvc":
		return true, false, true
	case "x86_64-apple-darwin", "aarch64-apple-darwin":
		return false, true, true
	case "x86_64-unknown-linux-gnu", "aarch64-unknown-linux-gnu":
		return false, false, true
	default:
		return false, false, false
	}
}

func isResolverSymbol(name string) bool {
	switch name {
	case "dlsym", "GetProcAddress", "LoadLibraryA", "GetModuleHandleA":
		return true
	default:
		return false
	}
}

func declareOrGet(m *ir.Module, name string, sig *ir.FuncType) *ir.Function {
	if fn := m.FindFunction(name); fn != nil {
		return fn
	}
	b := ir.NewBuilder(m)
	return b.NewFunction(name, sig, ir.LinkageExternalDecl)
}

func internStringGlobal(m *ir.Module, name, s string) *ir.GlobalVariable {
	bytes := append([]byte(s), 0) // NUL-terminated, matching CreateGlobalStringPtr
	g := &ir.GlobalVariable{
		Name:     name,
		Typ:      &ir.ArrayType{Elem: ir.I8, Len: len(bytes)},
		Linkage:  ir.LinkageInternal,
		Init:     bytes,
		Constant: true,
	}
	m.AddGlobal(g)
	return g
}

// replaceAllUsesModule replaces old with new_ across every function in the
// module -- a call result can be used outside its own block before later
// passes run SSA demotion, so this must not be scoped to a single function.
func replaceAllUsesModule(m *ir.Module, old, new_ *ir.Value) {
	for _, fn := range m.Functions {
		ir.ReplaceAllUses(fn, old, new_)
	}
}
