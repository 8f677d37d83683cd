package ir

import "strconv"

// Value is an SSA value: the result of exactly one defining instruction, a
// function parameter, a global variable's address, an immediate constant,
// a block-address, or a function's address. At most one of
// Def/Const/Global/BlockAddr/FuncAddr is set; a parameter has none of them.
type Value struct {
	ID   int
	Name string
	Typ  Type

	Def   Instruction  // the instruction that produces this value, when recorded (the Builder does not set it)
	Const *ConstValue  // set when this is a compile-time immediate
	Global *GlobalVariable // set when this is the address of a global
	BlockAddr *BasicBlock   // set when this is a block-address constant
	FuncAddr  *Function     // set when this is the address of a function's code
}

func (v *Value) Type() Type { return v.Typ }

func (v *Value) String() string {
	if v.Name != "" {
		return "%" + v.Name
	}
	return "%v" + strconv.Itoa(v.ID)
}

// ConstValue is an immediate integer or null-pointer constant.
type ConstValue struct {
	Int    int64
	IsNull bool
}
