package ir

import "fmt"

// VerifyFunction runs the handful of structural checks a real LLVM verifier
// would enforce that the obfuscation passes actually rely on: every block
// ends in exactly one terminator, every PHI incoming edge names an actual
// predecessor, and every non-constant operand is defined somewhere that
// dominates its use. It is not a general IR verifier -- it exists so pass
// tests can assert "still valid SSA" after a rewrite without hand-checking
// every instruction.
func VerifyFunction(fn *Function) []error {
	var errs []error
	if fn.IsDeclaration() {
		return nil
	}

	for _, b := range fn.Blocks {
		if len(b.Instrs) == 0 {
			errs = append(errs, fmt.Errorf("block %s: empty", b.Label))
			continue
		}
		last := b.Instrs[len(b.Instrs)-1]
		if _, ok := last.(Terminator); !ok {
			errs = append(errs, fmt.Errorf("block %s: last instruction is not a terminator", b.Label))
		}
		for _, i := range b.Instrs[:len(b.Instrs)-1] {
			if _, ok := i.(Terminator); ok {
				errs = append(errs, fmt.Errorf("block %s: terminator %s is not last", b.Label, i.String()))
			}
		}
	}

	for _, b := range fn.Blocks {
		for _, phi := range b.Phis() {
			predSet := make(map[*BasicBlock]bool, len(b.Preds))
			for _, p := range b.Preds {
				predSet[p] = true
			}
			for _, in := range phi.Incoming {
				if !predSet[in.Pred] {
					errs = append(errs, fmt.Errorf("block %s: phi %s names non-predecessor %s", b.Label, phi.Res, in.Pred.Label))
				}
			}
			if len(phi.Incoming) != len(b.Preds) {
				errs = append(errs, fmt.Errorf("block %s: phi %s has %d incoming, block has %d preds", b.Label, phi.Res, len(phi.Incoming), len(b.Preds)))
			}
		}
	}

	dt := ComputeDominators(fn)
	defBlock := make(map[*Value]*BasicBlock)
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if r := i.Result(); r != nil {
				defBlock[r] = b
			}
		}
	}
	for _, pv := range fn.Params {
		defBlock[pv] = fn.Entry()
	}

	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if phi, ok := i.(*PhiInst); ok {
				for _, in := range phi.Incoming {
					if db, ok := defBlock[in.Val]; ok && !dt.Dominates(db, in.Pred) {
						errs = append(errs, fmt.Errorf("phi %s: incoming value from %s not dominated there", phi.Res, in.Pred.Label))
					}
				}
				continue
			}
			for _, op := range i.Operands() {
				db, ok := defBlock[op]
				if !ok {
					continue // constant, global address, or block address
				}
				if db == b {
					continue // same-block def-before-use isn't checked at instruction granularity here
				}
				if !dt.Dominates(db, b) {
					errs = append(errs, fmt.Errorf("%s: operand %s not dominated by its definition", i.String(), op.String()))
				}
			}
		}
	}

	return errs
}
