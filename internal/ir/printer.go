package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Module as readable text, used by the demo CLI and by
// tests that assert a pass produced a specific shape without comparing
// pointer graphs directly.
type Printer struct {
	indent int
	output strings.Builder
}

func NewPrinter() *Printer {
	return &Printer{indent: 0}
}

// Print returns the text form of m.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("MODULE %s", m.Name)
	if m.TargetTriple != "" {
		p.writeLine("target triple = %q", m.TargetTriple)
	}
	p.writeLine("")

	if len(m.Globals) > 0 {
		p.writeLine("GLOBALS:")
		p.indent++
		for _, g := range m.Globals {
			p.writeLine("@%-24s : %-10s %s", g.Name, g.Typ.String(), g.Linkage.String())
		}
		p.indent--
		p.writeLine("")
	}

	if len(m.Ctors) > 0 {
		p.writeLine("CTORS:")
		p.indent++
		for _, c := range m.Ctors {
			p.writeLine("priority %-4d -> %s", c.Priority, c.Fn.Name)
		}
		p.indent--
		p.writeLine("")
	}

	for _, fn := range m.Functions {
		p.printFunction(fn)
		p.writeLine("")
	}
}

func (p *Printer) printFunction(fn *Function) {
	attrs := ""
	if fn.NoInline {
		attrs += " noinline"
	}
	if fn.NoOptimize {
		attrs += " noopt"
	}

	if fn.IsDeclaration() {
		p.writeLine("declare %s %s%s", fn.Typ.Ret.String(), fn.Name, fn.Typ.String())
		return
	}

	params := make([]string, len(fn.Params))
	for i, pv := range fn.Params {
		params[i] = pv.String() + ": " + pv.Typ.String()
	}
	p.writeLine("function %s(%s) -> %s%s {", fn.Name, strings.Join(params, ", "), fn.Typ.Ret.String(), attrs)
	p.indent++
	for _, b := range fn.Blocks {
		p.printBlock(b)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	marker := ""
	if b.Addressed {
		marker = "  ; addressed"
	}
	p.writeLine("%s:%s", b.Label, marker)
	p.indent++
	for _, i := range b.Instrs {
		p.writeLine("%s", i.String())
	}
	p.indent--
}
