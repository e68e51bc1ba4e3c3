package program

// Opcode identifies the operation an Instruction performs.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Moves
	OpNop
	OpMove
	OpMoveWide
	OpMoveObject
	OpMoveResult
	OpMoveResultWide
	OpMoveResultObject

	// Returns
	OpReturnVoid
	OpReturn
	OpReturnWide
	OpReturnObject

	// Constants
	OpConst4
	OpConst16
	OpConst
	OpConstHigh16
	OpConstWide16
	OpConstWide
	OpConstString
	OpConstClass

	// Objects
	OpCheckCast
	OpNewInstance
	OpThrow

	// Branches
	OpGoto
	OpIfEq
	OpIfNe
	OpIfLt
	OpIfGe
	OpIfGt
	OpIfLe
	OpIfEqz
	OpIfNez
	OpIfLtz
	OpIfGez
	OpIfGtz
	OpIfLez

	// Instance fields
	OpIget
	OpIgetWide
	OpIgetObject
	OpIgetBoolean
	OpIput
	OpIputWide
	OpIputObject
	OpIputBoolean

	// Static fields
	OpSget
	OpSgetWide
	OpSgetObject
	OpSgetBoolean
	OpSput
	OpSputWide
	OpSputObject
	OpSputBoolean

	// Calls
	OpInvokeVirtual
	OpInvokeSuper
	OpInvokeDirect
	OpInvokeStatic
	OpInvokeInterface

	opcodeCount
)

// Shape is the operand layout of an opcode.
type Shape uint8

const (
	ShapeNone         Shape = iota // no operands
	ShapeReg                       // vA
	ShapeRegReg                    // vA, vB
	ShapeRegLiteral                // vA, #literal
	ShapeRegString                 // vA, "string"
	ShapeRegType                   // vA, Ltype;
	ShapeRegField                  // vA, field
	ShapeRegRegField               // vA, vB, field
	ShapeInvoke                    // {vA, ...}, method
	ShapeBranch                    // :target
	ShapeRegBranch                 // vA, :target
	ShapeRegRegBranch              // vA, vB, :target
)

// Info describes an opcode. Writes is set when the instruction stores a
// value into its first register operand.
type Info struct {
	Name   string
	Shape  Shape
	Writes bool
}

var opcodeInfo = [opcodeCount]Info{
	OpInvalid:          {"<invalid>", ShapeNone, false},
	OpNop:              {"nop", ShapeNone, false},
	OpMove:             {"move", ShapeRegReg, true},
	OpMoveWide:         {"move-wide", ShapeRegReg, true},
	OpMoveObject:       {"move-object", ShapeRegReg, true},
	OpMoveResult:       {"move-result", ShapeReg, true},
	OpMoveResultWide:   {"move-result-wide", ShapeReg, true},
	OpMoveResultObject: {"move-result-object", ShapeReg, true},
	OpReturnVoid:       {"return-void", ShapeNone, false},
	OpReturn:           {"return", ShapeReg, false},
	OpReturnWide:       {"return-wide", ShapeReg, false},
	OpReturnObject:     {"return-object", ShapeReg, false},
	OpConst4:           {"const/4", ShapeRegLiteral, true},
	OpConst16:          {"const/16", ShapeRegLiteral, true},
	OpConst:            {"const", ShapeRegLiteral, true},
	OpConstHigh16:      {"const/high16", ShapeRegLiteral, true},
	OpConstWide16:      {"const-wide/16", ShapeRegLiteral, true},
	OpConstWide:        {"const-wide", ShapeRegLiteral, true},
	OpConstString:      {"const-string", ShapeRegString, true},
	OpConstClass:       {"const-class", ShapeRegType, true},
	OpCheckCast:        {"check-cast", ShapeRegType, false},
	OpNewInstance:      {"new-instance", ShapeRegType, true},
	OpThrow:            {"throw", ShapeReg, false},
	OpGoto:             {"goto", ShapeBranch, false},
	OpIfEq:             {"if-eq", ShapeRegRegBranch, false},
	OpIfNe:             {"if-ne", ShapeRegRegBranch, false},
	OpIfLt:             {"if-lt", ShapeRegRegBranch, false},
	OpIfGe:             {"if-ge", ShapeRegRegBranch, false},
	OpIfGt:             {"if-gt", ShapeRegRegBranch, false},
	OpIfLe:             {"if-le", ShapeRegRegBranch, false},
	OpIfEqz:            {"if-eqz", ShapeRegBranch, false},
	OpIfNez:            {"if-nez", ShapeRegBranch, false},
	OpIfLtz:            {"if-ltz", ShapeRegBranch, false},
	OpIfGez:            {"if-gez", ShapeRegBranch, false},
	OpIfGtz:            {"if-gtz", ShapeRegBranch, false},
	OpIfLez:            {"if-lez", ShapeRegBranch, false},
	OpIget:             {"iget", ShapeRegRegField, true},
	OpIgetWide:         {"iget-wide", ShapeRegRegField, true},
	OpIgetObject:       {"iget-object", ShapeRegRegField, true},
	OpIgetBoolean:      {"iget-boolean", ShapeRegRegField, true},
	OpIput:             {"iput", ShapeRegRegField, false},
	OpIputWide:         {"iput-wide", ShapeRegRegField, false},
	OpIputObject:       {"iput-object", ShapeRegRegField, false},
	OpIputBoolean:      {"iput-boolean", ShapeRegRegField, false},
	OpSget:             {"sget", ShapeRegField, true},
	OpSgetWide:         {"sget-wide", ShapeRegField, true},
	OpSgetObject:       {"sget-object", ShapeRegField, true},
	OpSgetBoolean:      {"sget-boolean", ShapeRegField, true},
	OpSput:             {"sput", ShapeRegField, false},
	OpSputWide:         {"sput-wide", ShapeRegField, false},
	OpSputObject:       {"sput-object", ShapeRegField, false},
	OpSputBoolean:      {"sput-boolean", ShapeRegField, false},
	OpInvokeVirtual:    {"invoke-virtual", ShapeInvoke, false},
	OpInvokeSuper:      {"invoke-super", ShapeInvoke, false},
	OpInvokeDirect:     {"invoke-direct", ShapeInvoke, false},
	OpInvokeStatic:     {"invoke-static", ShapeInvoke, false},
	OpInvokeInterface:  {"invoke-interface", ShapeInvoke, false},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := OpNop; op < opcodeCount; op++ {
		m[opcodeInfo[op].Name] = op
	}
	return m
}()

// Info returns the description of op. Unknown opcodes describe as invalid.
func (op Opcode) Info() Info {
	if op >= opcodeCount {
		return opcodeInfo[OpInvalid]
	}
	return opcodeInfo[op]
}

func (op Opcode) String() string { return op.Info().Name }
func (op Opcode) Shape() Shape   { return op.Info().Shape }
func (op Opcode) Valid() bool    { return op != OpInvalid && op < opcodeCount }

// LookupOpcode finds an opcode by its mnemonic, e.g. "sget-object".
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

func (op Opcode) IsInvoke() bool {
	return op.Shape() == ShapeInvoke
}

func (op Opcode) IsMoveResult() bool {
	return op == OpMoveResult || op == OpMoveResultWide || op == OpMoveResultObject
}

func (op Opcode) IsReturn() bool {
	return op >= OpReturnVoid && op <= OpReturnObject
}

func (op Opcode) IsBranch() bool {
	switch op.Shape() {
	case ShapeBranch, ShapeRegBranch, ShapeRegRegBranch:
		return true
	}
	return false
}

func (op Opcode) IsStaticGet() bool {
	return op >= OpSget && op <= OpSgetBoolean
}

// RefKind returns the kind of reference operand op carries.
func (op Opcode) RefKind() RefKind {
	switch op.Shape() {
	case ShapeRegString:
		return RefString
	case ShapeRegType:
		return RefType
	case ShapeRegField, ShapeRegRegField:
		return RefField
	case ShapeInvoke:
		return RefMethod
	default:
		return RefNone
	}
}

// registerCount is the fixed number of register operands for a shape, or
// -1 when variable.
func (s Shape) registerCount() int {
	switch s {
	case ShapeNone, ShapeBranch:
		return 0
	case ShapeReg, ShapeRegLiteral, ShapeRegString, ShapeRegType, ShapeRegField, ShapeRegBranch:
		return 1
	case ShapeRegReg, ShapeRegRegField, ShapeRegRegBranch:
		return 2
	default:
		return -1
	}
}
