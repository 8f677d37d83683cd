package ir

import "strconv"

// ObfPrefix is the sole naming convention every obfuscation pass uses to
// mark symbols it synthesizes, and the sole re-entrancy guard: a pass that
// wants to know whether it (or another obf pass) already ran over a given
// function checks this prefix rather than keeping separate per-pass
// bookkeeping on the side.
const ObfPrefix = "obf."

// IsObfSymbol reports whether name was synthesized by one of this
// package's passes.
func IsObfSymbol(name string) bool {
	return len(name) >= len(ObfPrefix) && name[:len(ObfPrefix)] == ObfPrefix
}

// UniqueObfName returns an obf.-prefixed name derived from base that does
// not collide with any existing function or global in m, appending a
// numeric suffix if needed.
func UniqueObfName(m *Module, base string) string {
	name := ObfPrefix + base
	if m.FindFunction(name) == nil && m.FindGlobal(name) == nil {
		return name
	}
	for n := 1; ; n++ {
		candidate := name + "." + strconv.Itoa(n)
		if m.FindFunction(candidate) == nil && m.FindGlobal(candidate) == nil {
			return candidate
		}
	}
}

// AppendGlobalCtor registers fn to run at module-load time with the given
// priority (lower runs first). fn must take no arguments and return void.
func AppendGlobalCtor(m *Module, fn *Function, priority int) {
	m.Ctors = append(m.Ctors, GlobalCtor{Fn: fn, Priority: priority})
	sortCtorsByPriority(m)
}

func sortCtorsByPriority(m *Module) {
	// insertion sort: the ctor list is always short (a handful of passes
	// each register at most one), so this stays O(n) in practice without
	// pulling in sort for three comparisons.
	for i := 1; i < len(m.Ctors); i++ {
		for j := i; j > 0 && m.Ctors[j].Priority < m.Ctors[j-1].Priority; j-- {
			m.Ctors[j], m.Ctors[j-1] = m.Ctors[j-1], m.Ctors[j]
		}
	}
}
