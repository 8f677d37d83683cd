package obf

import (
	"strconv"

	"hideir/internal/ir"
)

// StringEncryptionPass XOR-encrypts every byte-array global's initializer
// with a per-global random key in [1, 255], and installs a single
// obf.decrypt_strings constructor (priority 0, so it runs before every
// other ctor) that walks each target byte-by-byte, undoing the XOR with
// volatile loads/stores so the optimizer cannot constant-fold the
// decryption away and recover the plaintext statically.
type StringEncryptionPass struct{}

func NewStringEncryptionPass() *StringEncryptionPass { return &StringEncryptionPass{} }

func (p *StringEncryptionPass) Name() string { return "EnterpriseStringEncryption" }

func (p *StringEncryptionPass) Run(m *ir.Module, rng Rand) (Signal, error) {
	type target struct {
		g   *ir.GlobalVariable
		key byte
	}
	var targets []target

	for _, g := range m.Globals {
		if ir.IsObfSymbol(g.Name) || g.Init == nil {
			continue
		}
		arr, ok := g.Typ.(*ir.ArrayType)
		if !ok {
			continue
		}
		if _, isByte := arr.Elem.(*ir.IntType); !isByte || arr.Elem.(*ir.IntType).Bits != 8 {
			continue
		}
		if len(g.Init) < 4 {
			continue
		}

		key := byte(1 + rng.Intn(255))
		encrypted := make([]byte, len(g.Init))
		for i, c := range g.Init {
			encrypted[i] = c ^ key
		}
		g.Init = encrypted
		g.Constant = false

		targets = append(targets, target{g: g, key: key})
	}

	if len(targets) == 0 {
		return Signal{Outcome: NoOp, Reason: "no byte-array globals eligible for encryption"}, nil
	}

	b := ir.NewBuilder(m)
	name := ir.UniqueObfName(m, "decrypt_strings")
	decryptFn := b.NewFunction(name, &ir.FuncType{Ret: ir.Void}, ir.LinkageInternal)
	decryptFn.NoInline = true
	decryptFn.NoOptimize = true

	b.SetInsertPoint(decryptFn, decryptFn.Entry())
	for _, t := range targets {
		arr := t.g.Typ.(*ir.ArrayType)
		base := ir.GlobalAddr(t.g)
		for j := 0; j < arr.Len; j++ {
			idx := ir.ConstInt(ir.I64, int64(j))
			gep := b.EmitGEP(base, idx)
			loaded := b.EmitLoad(gep, ir.I8, true)
			xored := b.EmitBinary("xor", ir.I8, loaded, ir.ConstInt(ir.I8, int64(t.key)))
			b.EmitStore(gep, xored, true)
		}
	}
	b.EmitRet(nil)

	ir.AppendGlobalCtor(m, decryptFn, 0)

	return Signal{Outcome: Modified, Reason: "encrypted " + strconv.Itoa(len(targets)) + " string globals"}, nil
}
