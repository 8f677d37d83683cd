package obf

import "hideir/internal/ir"

// Cycle-counter timing trap constants, reproduced from the original: a
// 20% per-block injection probability and a threshold (in cycles) no
// human single-stepping through a debugger could stay under.
const (
	timingTrapProbabilityPct = 20
	timingThresholdCycles    = 0x0FFFFFFF
	ptDenyAttach             = 31 // macOS
	ptraceTraceMe            = 0  // Linux/Solaris
)

// AntiDebuggingPass installs two independent defenses: a constructor
// (obf.anti_debug_init) that asks the OS whether a debugger is attached
// (IsDebuggerPresent on Windows, ptrace(PTRACE_TRACEME/PT_DENY_ATTACH, ...)
// elsewhere) and traps if so, plus per-block cycle-counter timing checks
// injected into roughly one block in five -- a human stepping through
// assembly takes orders of magnitude longer between two points than the
// CPU does natively, so an elapsed-cycle count above the threshold implies
// single-stepping.
type AntiDebuggingPass struct{}

func NewAntiDebuggingPass() *AntiDebuggingPass { return &AntiDebuggingPass{} }

func (p *AntiDebuggingPass) Name() string { return "EnterpriseAntiDebugging" }

func (p *AntiDebuggingPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	isWindows, isMacOS, ok := classifyTriple(m.TargetTriple)
	if !ok {
		return Signal{}, NewTripleUnsupported(p.Name(), m.TargetTriple)
	}

	trapFn := declareOrGet(m, "llvm.trap", &ir.FuncType{Ret: ir.Void})

	installDebuggerAPITrap(m, isWindows, isMacOS, trapFn)

	timingTraps := injectTimingTraps(m, rng, trapFn)

	reason := "installed debugger-API trap"
	if timingTraps > 0 {
		reason += " and timing traps"
	}
	return Signal{Outcome: Modified, Reason: reason}, nil
}

func installDebuggerAPITrap(m *ir.Module, isWindows, isMacOS bool, trapFn *ir.Function) {
	b := ir.NewBuilder(m)
	name := ir.UniqueObfName(m, "anti_debug_init")
	fn := b.NewFunction(name, &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	fn.NoInline = true
	fn.NoOptimize = true

	entry := fn.Entry()
	trapBlock := fn.NewBlock("trap")
	retBlock := fn.NewBlock("ret")

	b.SetInsertPoint(fn, trapBlock)
	b.EmitCall(trapFn, nil)
	b.EmitUnreachable()

	b.SetInsertPoint(fn, retBlock)
	b.EmitRet(nil)

	b.SetInsertPoint(fn, entry)
	var cond *ir.Value
	if isWindows {
		idp := declareOrGet(m, "IsDebuggerPresent", &ir.FuncType{Ret: ir.I32})
		ret := b.EmitCall(idp, nil)
		cond = b.EmitICmp("ne", ret, ir.ConstInt(ir.I32, 0))
	} else {
		req := ptraceTraceMe
		if isMacOS {
			req = ptDenyAttach
		}
		ptrace := declareOrGet(m, "ptrace", &ir.FuncType{Params: []ir.Type{ir.I32, ir.I32, ir.Ptr, ir.Ptr}, Ret: ir.I64})
		args := []*ir.Value{ir.ConstInt(ir.I32, int64(req)), ir.ConstInt(ir.I32, 0), ir.NullPtr(), ir.NullPtr()}
		ret := b.EmitCall(ptrace, args)
		cond = b.EmitICmp("eq", ret, ir.ConstInt(ir.I64, -1))
	}
	b.EmitCondBr(cond, trapBlock, retBlock)
	ir.RecomputeCFG(fn)

	ir.AppendGlobalCtor(m, fn, 0)
}

// injectTimingTraps wraps roughly one block in five with a
// readcyclecounter start/end pair and splits off its terminator into a
// continuation block reached only if the elapsed cycle count stays under
// the threshold -- the block's new tail is built as a flat instruction
// list rather than through a Builder, since a Builder always appends at
// the end of the current block and the terminator must stay last
// throughout.
func injectTimingTraps(m *ir.Module, rng Rand, trapFn *ir.Function) int {
	cycleCounter := declareOrGet(m, "llvm.readcyclecounter", &ir.FuncType{Ret: ir.I64})
	count := 0

	for _, fn := range m.Functions {
		if skipTarget(fn) {
			continue
		}
		original := append([]*ir.BasicBlock(nil), fn.Blocks...)
		for _, bb := range original {
			if rng.Intn(100) >= timingTrapProbabilityPct {
				continue
			}
			nonTerm := bb.NonTerminatorInstrs()
			if len(nonTerm) == 0 {
				continue
			}
			if _, isPhi := bb.Instrs[0].(*ir.PhiInst); isPhi {
				continue
			}

			term := bb.Terminator()

			startRes := fn.NewValue(ir.I64)
			startCall := &ir.CallInst{Res: startRes, Callee: cycleCounter, CalleeTyp: cycleCounter.Typ}
			startCall.SetBlock(bb)

			endRes := fn.NewValue(ir.I64)
			endCall := &ir.CallInst{Res: endRes, Callee: cycleCounter, CalleeTyp: cycleCounter.Typ}
			endCall.SetBlock(bb)

			diffRes := fn.NewValue(ir.I64)
			diff := &ir.BinaryInst{Res: diffRes, Op: "sub", LHS: endRes, RHS: startRes}
			diff.SetBlock(bb)

			cmpRes := fn.NewValue(ir.I8)
			isStepping := &ir.ICmpInst{Res: cmpRes, Pred: "ugt", LHS: diffRes, RHS: ir.ConstInt(ir.I64, timingThresholdCycles)}
			isStepping.SetBlock(bb)

			timeTrapBB := &ir.BasicBlock{Label: bb.Label + ".time_trap", Fn: fn}
			tb := ir.NewBuilder(m)
			tb.SetInsertPoint(fn, timeTrapBB)
			tb.EmitCall(trapFn, nil)
			tb.EmitUnreachable()

			contBB := &ir.BasicBlock{Label: bb.Label + ".time_cont", Fn: fn}
			term.SetBlock(contBB)
			contBB.Instrs = []ir.Instruction{term}

			condBr := &ir.CondBrInst{Cond: cmpRes, TrueBlock: timeTrapBB, FalseBlock: contBB}
			condBr.SetBlock(bb)

			bb.Instrs = append(append([]ir.Instruction{startCall}, nonTerm...), endCall, diff, isStepping, condBr)

			fn.Blocks = append(fn.Blocks, timeTrapBB, contBB)

			ir.RecomputeCFG(fn)
			count++
		}
	}
	return count
}
