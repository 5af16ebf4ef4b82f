package code

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type Instructions []byte

type Opcode byte

const (
	OpConstant Opcode = iota
	OpPop
	OpDup
	OpNull
	OpTrue
	OpFalse

	OpArray
	OpObject

	OpBinary
	OpUnary

	OpJump
	OpJumpIfFalse
	OpJumpIfFalseKeep
	OpJumpIfTrueKeep

	OpGetGlobal
	OpSetGlobal
	OpGetLocal
	OpSetLocal
	OpGetFree
	OpSetFree
	OpGetFreeCell
	OpMakeCell
	OpClosure

	OpCall
	OpReturn
	OpDefault

	OpIndex
	OpSetIndex
	OpGetMember
	OpSetMember

	OpGetIter
	OpIterNext

	OpThrow
	OpTryBegin
	OpTryEnd
	OpRethrow
	OpRaise

	OpMakeClass
	OpNew
	OpGetSuper

	OpAwait
)

// TryNone marks an absent catch or finally target in OpTryBegin operands.
const TryNone = 0xFFFF

// Binary and unary operator operands index these tables.
var BinaryOps = []string{
	"+", "-", "*", "/", "%", "**",
	"==", "!=", "<", "<=", ">", ">=",
	"&", "|", "^", "<<", ">>",
}

var UnaryOps = []string{"-", "!", "~"}

// RaiseKinds is the error-kind table indexed by OpRaise's first operand.
var RaiseKinds = []string{"ImmutableBindingError", "TypeError", "UnresolvedNameError", "ArityError"}

func RaiseKindIndex(kind string) (int, bool) {
	for i, s := range RaiseKinds {
		if s == kind {
			return i, true
		}
	}
	return 0, false
}

func BinaryOpIndex(op string) (int, bool) {
	for i, s := range BinaryOps {
		if s == op {
			return i, true
		}
	}
	return 0, false
}

func UnaryOpIndex(op string) (int, bool) {
	for i, s := range UnaryOps {
		if s == op {
			return i, true
		}
	}
	return 0, false
}

type Definition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*Definition{
	OpConstant:        {"OpConstant", []int{2}},
	OpPop:             {"OpPop", []int{}},
	OpDup:             {"OpDup", []int{}},
	OpNull:            {"OpNull", []int{}},
	OpTrue:            {"OpTrue", []int{}},
	OpFalse:           {"OpFalse", []int{}},
	OpArray:           {"OpArray", []int{2}},
	OpObject:          {"OpObject", []int{2}},
	OpBinary:          {"OpBinary", []int{1}},
	OpUnary:           {"OpUnary", []int{1}},
	OpJump:            {"OpJump", []int{2}},
	OpJumpIfFalse:     {"OpJumpIfFalse", []int{2}},
	OpJumpIfFalseKeep: {"OpJumpIfFalseKeep", []int{2}},
	OpJumpIfTrueKeep:  {"OpJumpIfTrueKeep", []int{2}},
	OpGetGlobal:       {"OpGetGlobal", []int{2}},
	OpSetGlobal:       {"OpSetGlobal", []int{2}},
	OpGetLocal:        {"OpGetLocal", []int{1}},
	OpSetLocal:        {"OpSetLocal", []int{1}},
	OpGetFree:         {"OpGetFree", []int{1}},
	OpSetFree:         {"OpSetFree", []int{1}},
	OpGetFreeCell:     {"OpGetFreeCell", []int{1}},
	OpMakeCell:        {"OpMakeCell", []int{1, 1}},
	OpClosure:         {"OpClosure", []int{2, 1}},
	OpCall:            {"OpCall", []int{1}},
	OpReturn:          {"OpReturn", []int{}},
	OpDefault:         {"OpDefault", []int{1, 2}},
	OpIndex:           {"OpIndex", []int{}},
	OpSetIndex:        {"OpSetIndex", []int{}},
	OpGetMember:       {"OpGetMember", []int{2}},
	OpSetMember:       {"OpSetMember", []int{2}},
	OpGetIter:         {"OpGetIter", []int{}},
	OpIterNext:        {"OpIterNext", []int{2}},
	OpThrow:           {"OpThrow", []int{}},
	OpTryBegin:        {"OpTryBegin", []int{2, 2}},
	OpTryEnd:          {"OpTryEnd", []int{}},
	OpRethrow:         {"OpRethrow", []int{}},
	OpRaise:           {"OpRaise", []int{1, 2}},
	OpMakeClass:       {"OpMakeClass", []int{2, 1}},
	OpNew:             {"OpNew", []int{1}},
	OpGetSuper:        {"OpGetSuper", []int{2}},
	OpAwait:           {"OpAwait", []int{}},
}

func Lookup(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// Make encodes one instruction.
func Make(op Opcode, operands ...int) []byte {
	def, ok := definitions[op]
	if !ok {
		return []byte{}
	}
	instructionLen := 1
	for _, w := range def.OperandWidths {
		instructionLen += w
	}
	instruction := make([]byte, instructionLen)
	instruction[0] = byte(op)
	offset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 2:
			binary.BigEndian.PutUint16(instruction[offset:], uint16(operand))
		case 1:
			instruction[offset] = byte(operand)
		}
		offset += width
	}
	return instruction
}

func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0
	for i, width := range def.OperandWidths {
		switch width {
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		case 1:
			operands[i] = int(ins[offset])
		}
		offset += width
	}
	return operands, offset
}

func ReadUint16(ins Instructions) uint16 {
	return binary.BigEndian.Uint16(ins)
}

// String renders instructions one per line for debugging and tests.
func (ins Instructions) String() string {
	var out bytes.Buffer
	i := 0
	for i < len(ins) {
		def, err := Lookup(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "ERROR: %s\n", err)
			i++
			continue
		}
		operands, read := ReadOperands(def, ins[i+1:])
		fmt.Fprintf(&out, "%04d %s\n", i, fmtInstruction(def, operands))
		i += 1 + read
	}
	return out.String()
}

func fmtInstruction(def *Definition, operands []int) string {
	if len(operands) != len(def.OperandWidths) {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d",
			len(operands), len(def.OperandWidths))
	}
	switch len(operands) {
	case 0:
		return def.Name
	case 1:
		return fmt.Sprintf("%s %d", def.Name, operands[0])
	case 2:
		return fmt.Sprintf("%s %d %d", def.Name, operands[0], operands[1])
	}
	return fmt.Sprintf("ERROR: unhandled operand count for %s", def.Name)
}
