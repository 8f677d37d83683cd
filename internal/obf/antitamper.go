package obf

import "hideir/internal/ir"

// FNV-1a basis/prime and the hashed-prefix length, reproduced verbatim
// from the original rather than re-derived: the hash loop walks the first
// 64 bytes of the canonical target function's code.
const (
	fnvBasis     = 0x811c9dc5
	fnvPrime     = 16777619
	hashedPrefix = 64
)

// AntiTamperingPass hashes the first 64 bytes of one canonical target
// function's code with FNV-1a, both once at load time (stored into
// obf.expected_hash by obf.tamper_init) and again at the top of every
// target function's body, trapping if the two disagree. A binary patcher
// that flips a byte inside the canonical target after the baseline hash
// was computed breaks the equality the next time any instrumented
// function runs.
type AntiTamperingPass struct {
	// canonicalTarget records the function every hash loop actually reads,
	// once chosen, so a caller reading it back through CanonicalTarget can
	// warn if some other pass mutates that function afterward -- see
	// pipeline's ordering contract.
	canonicalTarget string
}

func NewAntiTamperingPass() *AntiTamperingPass { return &AntiTamperingPass{} }

func (p *AntiTamperingPass) Name() string { return "EnterpriseAntiTampering" }

// CanonicalTarget returns the name of the function hashed by the most
// recent Run, or "" if Run has not produced a target yet.
func (p *AntiTamperingPass) CanonicalTarget() string { return p.canonicalTarget }

func (p *AntiTamperingPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	var targets []*ir.Function
	for _, fn := range m.Functions {
		if !fn.IsDeclaration() && !ir.IsObfSymbol(fn.Name) {
			targets = append(targets, fn)
		}
	}
	if len(targets) == 0 {
		return Signal{Outcome: NoOp, Reason: "no eligible functions to protect"}, nil
	}

	canonical := targets[0]
	p.canonicalTarget = canonical.Name

	expectedHash := m.FindGlobal("obf.expected_hash")
	if expectedHash == nil {
		expectedHash = &ir.GlobalVariable{Name: "obf.expected_hash", Typ: ir.I32, Linkage: ir.LinkageInternal, Init: []byte{0, 0, 0, 0}}
		m.AddGlobal(expectedHash)
	}

	trapFn := declareOrGet(m, "llvm.trap", &ir.FuncType{Ret: ir.Void})

	b := ir.NewBuilder(m)
	initFn := b.NewFunction(ir.UniqueObfName(m, "tamper_init"), &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	initHash, initEnd := buildHashLoop(m, initFn, canonical, initFn.Entry())
	eb := ir.NewBuilder(m)
	eb.SetInsertPoint(initFn, initEnd)
	eb.EmitStore(ir.GlobalAddr(expectedHash), initHash, true)
	eb.EmitRet(nil)
	ir.RecomputeCFG(initFn)
	ir.AppendGlobalCtor(m, initFn, 0)

	for _, fn := range targets {
		instrumentFunctionEntry(m, fn, canonical, expectedHash, trapFn)
	}

	return Signal{Outcome: Modified}, nil
}

// buildHashLoop emits a 64-iteration FNV-1a loop over target's code
// address into parentFn, starting at startBlock, and returns the final
// hash value plus the block after the loop (where the caller continues).
func buildHashLoop(m *ir.Module, parentFn, target *ir.Function, startBlock *ir.BasicBlock) (*ir.Value, *ir.BasicBlock) {
	loopHeader := &ir.BasicBlock{Label: "hash.loop", Fn: parentFn}
	loopEnd := &ir.BasicBlock{Label: "hash.end", Fn: parentFn}
	parentFn.Blocks = append(parentFn.Blocks, loopHeader, loopEnd)

	sb := ir.NewBuilder(m)
	sb.SetInsertPoint(parentFn, startBlock)
	sb.EmitBr(loopHeader)

	iPhi := &ir.PhiInst{Res: parentFn.NewValue(ir.I32)}
	hashPhi := &ir.PhiInst{Res: parentFn.NewValue(ir.I32)}
	iPhi.SetBlock(loopHeader)
	hashPhi.SetBlock(loopHeader)
	iPhi.AddIncoming(startBlock, ir.ConstInt(ir.I32, 0))
	hashPhi.AddIncoming(startBlock, ir.ConstInt(ir.I32, fnvBasis))
	loopHeader.Instrs = append(loopHeader.Instrs, iPhi, hashPhi)

	lb := ir.NewBuilder(m)
	lb.SetInsertPoint(parentFn, loopHeader)

	funcPtr := ir.FunctionAddr(target)
	bytePtr := lb.EmitGEP(funcPtr, iPhi.Res)
	byteVal := lb.EmitLoad(bytePtr, ir.I8, true)
	byteExt := lb.EmitCast("zext", byteVal, ir.I32)
	xored := lb.EmitBinary("xor", ir.I32, hashPhi.Res, byteExt)
	newHash := lb.EmitBinary("mul", ir.I32, xored, ir.ConstInt(ir.I32, fnvPrime))
	nextI := lb.EmitBinary("add", ir.I32, iPhi.Res, ir.ConstInt(ir.I32, 1))
	cond := lb.EmitICmp("slt", nextI, ir.ConstInt(ir.I32, hashedPrefix))
	lb.EmitCondBr(cond, loopHeader, loopEnd)

	iPhi.AddIncoming(loopHeader, nextI)
	hashPhi.AddIncoming(loopHeader, newHash)

	return newHash, loopEnd
}

// instrumentFunctionEntry splits fn's entry block right after its leading
// allocas, inserting a hash-loop-and-compare before the rest of the
// original entry logic runs.
func instrumentFunctionEntry(m *ir.Module, fn, target *ir.Function, expectedHash *ir.GlobalVariable, trapFn *ir.Function) {
	entry := fn.Entry()
	insertIdx := 0
	for insertIdx < len(entry.Instrs) {
		if _, ok := entry.Instrs[insertIdx].(*ir.AllocaInst); !ok {
			break
		}
		insertIdx++
	}

	cont := &ir.BasicBlock{Label: entry.Label + ".tamper.cont", Fn: fn}
	cont.Instrs = append(cont.Instrs, entry.Instrs[insertIdx:]...)
	for _, i := range cont.Instrs {
		i.SetBlock(cont)
	}
	entry.Instrs = entry.Instrs[:insertIdx]
	fn.Blocks = append(fn.Blocks, cont)

	runtimeHash, endBlock := buildHashLoop(m, fn, target, entry)

	cb := ir.NewBuilder(m)
	cb.SetInsertPoint(fn, endBlock)
	stored := cb.EmitLoad(ir.GlobalAddr(expectedHash), ir.I32, true)
	valid := cb.EmitICmp("eq", runtimeHash, stored)

	trapBlock := &ir.BasicBlock{Label: entry.Label + ".tamper.trap", Fn: fn}
	tb := ir.NewBuilder(m)
	tb.SetInsertPoint(fn, trapBlock)
	tb.EmitCall(trapFn, nil)
	tb.EmitUnreachable()
	fn.Blocks = append(fn.Blocks, trapBlock)

	cb.EmitCondBr(valid, cont, trapBlock)

	ir.RecomputeCFG(fn)
}
