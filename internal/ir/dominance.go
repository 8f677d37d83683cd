package ir

// DomTree is a simplified dominator tree: iterative dataflow rather than
// Lengauer-Tarjan. Its consumer here is VerifyFunction's operand-dominance
// check; the questions it answers are "does A dominate B" and "what is
// B's immediate dominator", both of which this representation answers
// directly. Not a general-purpose analysis -- it recomputes from scratch
// per query set and assumes Preds/Succs are current (call RecomputeCFG
// first if in doubt).
type DomTree struct {
	fn     *Function
	idom   map[*BasicBlock]*BasicBlock
	order  map[*BasicBlock]int // reverse postorder index, for the dataflow fixpoint
}

// ComputeDominators runs the standard Cooper-Harvey-Kennedy iterative
// dominator algorithm over fn's current CFG.
func ComputeDominators(fn *Function) *DomTree {
	entry := fn.Entry()
	dt := &DomTree{fn: fn, idom: make(map[*BasicBlock]*BasicBlock)}
	if entry == nil {
		return dt
	}

	rpo := reversePostorder(entry)
	dt.order = make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		dt.order[b] = i
	}

	dt.idom[entry] = entry
	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom *BasicBlock
			for _, p := range b.Preds {
				if _, ok := dt.idom[p]; !ok {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = dt.intersect(newIdom, p)
			}
			if newIdom != nil && dt.idom[b] != newIdom {
				dt.idom[b] = newIdom
				changed = true
			}
		}
	}
	return dt
}

func (dt *DomTree) intersect(a, b *BasicBlock) *BasicBlock {
	for a != b {
		for dt.order[a] > dt.order[b] {
			a = dt.idom[a]
		}
		for dt.order[b] > dt.order[a] {
			b = dt.idom[b]
		}
	}
	return a
}

// IDom returns b's immediate dominator, or nil if b is unreachable from the
// entry block (dead code the passes should leave alone).
func (dt *DomTree) IDom(b *BasicBlock) *BasicBlock {
	if b == dt.fn.Entry() {
		return nil
	}
	return dt.idom[b]
}

// Dominates reports whether a dominates b (reflexively -- a dominates
// itself).
func (dt *DomTree) Dominates(a, b *BasicBlock) bool {
	if a == b {
		return true
	}
	if _, ok := dt.idom[b]; !ok {
		return false
	}
	for cur := dt.idom[b]; ; cur = dt.idom[cur] {
		if cur == a {
			return true
		}
		if cur == dt.fn.Entry() {
			return cur == a
		}
	}
}

func reversePostorder(entry *BasicBlock) []*BasicBlock {
	var post []*BasicBlock
	visited := make(map[*BasicBlock]bool)
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]*BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}
