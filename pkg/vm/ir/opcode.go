// Opcode definitions and the static effect table driving the codec,
// validator, and interpreter.
package ir

// Opcode identifies one instruction. The numeric values are wire-stable;
// never reorder existing entries.
type Opcode uint8

// Stack manipulation.
const (
	OpPushConst Opcode = 0x00 // A = constant index
	OpPop       Opcode = 0x01
	OpDup       Opcode = 0x02
	OpSwap      Opcode = 0x03
	OpPick      Opcode = 0x04 // A = depth below top to copy
)

// Integer arithmetic.
const (
	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpNeg Opcode = 0x15
)

// Bitwise and shifts.
const (
	OpAnd Opcode = 0x20
	OpOr  Opcode = 0x21
	OpXor Opcode = 0x22
	OpNot Opcode = 0x23
	OpShl Opcode = 0x24
	OpShr Opcode = 0x25
)

// Comparisons push bool.
const (
	OpEq     Opcode = 0x30
	OpNe     Opcode = 0x31
	OpLt     Opcode = 0x32
	OpLe     Opcode = 0x33
	OpGt     Opcode = 0x34
	OpGe     Opcode = 0x35
	OpIsZero Opcode = 0x36
)

// Bytes operations.
const (
	OpConcat Opcode = 0x40
	OpSlice  Opcode = 0x41 // pops end, start, bytes
	OpLen    Opcode = 0x42
	OpI2B    Opcode = 0x43 // int -> minimal big-endian bytes
	OpB2I    Opcode = 0x44 // big-endian bytes -> int
)

// Control flow. Every block ends in exactly one of these.
const (
	OpJump       Opcode = 0x50 // A = target label
	OpJumpI      Opcode = 0x51 // A = taken label, B = not-taken label
	OpRet        Opcode = 0x52
	OpRevert     Opcode = 0x53 // pops reason bytes
	OpCall       Opcode = 0x54 // A = function id, B = argc
	OpCallExtern Opcode = 0x55 // A = extern id, B = argc
)

var opNames = map[Opcode]string{
	OpPushConst:  "PUSH_CONST",
	OpPop:        "POP",
	OpDup:        "DUP",
	OpSwap:       "SWAP",
	OpPick:       "PICK",
	OpAdd:        "ADD",
	OpSub:        "SUB",
	OpMul:        "MUL",
	OpDiv:        "DIV",
	OpMod:        "MOD",
	OpNeg:        "NEG",
	OpAnd:        "AND",
	OpOr:         "OR",
	OpXor:        "XOR",
	OpNot:        "NOT",
	OpShl:        "SHL",
	OpShr:        "SHR",
	OpEq:         "EQ",
	OpNe:         "NE",
	OpLt:         "LT",
	OpLe:         "LE",
	OpGt:         "GT",
	OpGe:         "GE",
	OpIsZero:     "ISZERO",
	OpConcat:     "CONCAT",
	OpSlice:      "SLICE",
	OpLen:        "LEN",
	OpI2B:        "I2B",
	OpB2I:        "B2I",
	OpJump:       "JUMP",
	OpJumpI:      "JUMPI",
	OpRet:        "RET",
	OpRevert:     "REVERT",
	OpCall:       "CALL",
	OpCallExtern: "CALL_EXTERN",
}

// String returns the mnemonic.
func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opNames[op]
	return ok
}

// operandCounts maps each opcode to its encoded operand count.
var operandCounts = map[Opcode]int{
	OpPushConst:  1,
	OpPop:        0,
	OpDup:        0,
	OpSwap:       0,
	OpPick:       1,
	OpAdd:        0,
	OpSub:        0,
	OpMul:        0,
	OpDiv:        0,
	OpMod:        0,
	OpNeg:        0,
	OpAnd:        0,
	OpOr:         0,
	OpXor:        0,
	OpNot:        0,
	OpShl:        0,
	OpShr:        0,
	OpEq:         0,
	OpNe:         0,
	OpLt:         0,
	OpLe:         0,
	OpGt:         0,
	OpGe:         0,
	OpIsZero:     0,
	OpConcat:     0,
	OpSlice:      0,
	OpLen:        0,
	OpI2B:        0,
	OpB2I:        0,
	OpJump:       1,
	OpJumpI:      2,
	OpRet:        0,
	OpRevert:     0,
	OpCall:       2,
	OpCallExtern: 2,
}

// OperandCount returns the number of encoded operands for op.
func OperandCount(op Opcode) int {
	return operandCounts[op]
}

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op Opcode) bool {
	switch op {
	case OpJump, OpJumpI, OpRet, OpRevert:
		return true
	default:
		return false
	}
}

// StackEffect describes the static stack behavior of an opcode. Pops and
// Pushes are -1 where the effect depends on context (constants, signatures);
// the validator resolves those cases itself.
type StackEffect struct {
	Pops   int
	Pushes int
}

var stackEffects = map[Opcode]StackEffect{
	OpPushConst:  {0, -1},
	OpPop:        {1, 0},
	OpDup:        {1, 2},
	OpSwap:       {2, 2},
	OpPick:       {0, 1}, // requires height >= A+1
	OpAdd:        {2, 1},
	OpSub:        {2, 1},
	OpMul:        {2, 1},
	OpDiv:        {2, 1},
	OpMod:        {2, 1},
	OpNeg:        {1, 1},
	OpAnd:        {2, 1},
	OpOr:         {2, 1},
	OpXor:        {2, 1},
	OpNot:        {1, 1},
	OpShl:        {2, 1},
	OpShr:        {2, 1},
	OpEq:         {2, 1},
	OpNe:         {2, 1},
	OpLt:         {2, 1},
	OpLe:         {2, 1},
	OpGt:         {2, 1},
	OpGe:         {2, 1},
	OpIsZero:     {1, 1},
	OpConcat:     {2, 1},
	OpSlice:      {3, 1},
	OpLen:        {1, 1},
	OpI2B:        {1, 1},
	OpB2I:        {1, 1},
	OpJump:       {0, 0},
	OpJumpI:      {1, 0},
	OpRet:        {-1, 0},
	OpRevert:     {1, 0},
	OpCall:       {-1, -1},
	OpCallExtern: {-1, -1},
}

// Effect returns the static stack effect of op.
func Effect(op Opcode) StackEffect {
	return stackEffects[op]
}
