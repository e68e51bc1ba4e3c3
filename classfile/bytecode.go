package classfile

import (
	"encoding/binary"
	"fmt"
)

const (
	opLdc          = 0x12
	opLdcW         = 0x13
	opIinc         = 0x84
	opTableSwitch  = 0xaa
	opLookupSwitch = 0xab
	opWide         = 0xc4
)

// instructionLength returns the size in bytes of the instruction at pc.
func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	switch {
	case op <= 0x0f:
		return 1, nil
	case op == 0x10, op == opLdc: // bipush, ldc
		return 2, nil
	case op == 0x11, op == opLdcW, op == 0x14: // sipush, ldc_w, ldc2_w
		return 3, nil
	case op >= 0x15 && op <= 0x19: // loads with index
		return 2, nil
	case op >= 0x1a && op <= 0x35:
		return 1, nil
	case op >= 0x36 && op <= 0x3a: // stores with index
		return 2, nil
	case op >= 0x3b && op <= 0x83:
		return 1, nil
	case op == opIinc:
		return 3, nil
	case op >= 0x85 && op <= 0x98:
		return 1, nil
	case op >= 0x99 && op <= 0xa8: // if*, goto, jsr
		return 3, nil
	case op == 0xa9: // ret
		return 2, nil
	case op == opTableSwitch:
		return tableSwitchLength(code, pc)
	case op == opLookupSwitch:
		return lookupSwitchLength(code, pc)
	case op >= 0xac && op <= 0xb1: // returns
		return 1, nil
	case op >= 0xb2 && op <= 0xb8: // field access, invokevirtual/special/static
		return 3, nil
	case op == 0xb9, op == 0xba: // invokeinterface, invokedynamic
		return 5, nil
	case op == 0xbb, op == 0xbd, op == 0xc0, op == 0xc1: // new, anewarray, checkcast, instanceof
		return 3, nil
	case op == 0xbc: // newarray
		return 2, nil
	case op >= 0xbe && op <= 0xc3:
		return 1, nil
	case op == opWide:
		if pc+1 < len(code) && code[pc+1] == opIinc {
			return 6, nil
		}
		return 4, nil
	case op == 0xc5: // multianewarray
		return 4, nil
	case op == 0xc6, op == 0xc7: // ifnull, ifnonnull
		return 3, nil
	case op == 0xc8, op == 0xc9: // goto_w, jsr_w
		return 5, nil
	default:
		return 0, fmt.Errorf("unknown opcode 0x%02x at %d", op, pc)
	}
}

// switchOperands returns the offset of the first 4-byte aligned operand
// after a switch opcode at pc.
func switchOperands(pc int) int {
	return pc + 1 + (4-(pc+1)%4)%4
}

func tableSwitchLength(code []byte, pc int) (int, error) {
	at := switchOperands(pc)
	if at+12 > len(code) {
		return 0, fmt.Errorf("truncated tableswitch at %d", pc)
	}
	low := int32(binary.BigEndian.Uint32(code[at+4:]))
	high := int32(binary.BigEndian.Uint32(code[at+8:]))
	if high < low {
		return 0, fmt.Errorf("tableswitch at %d has high < low", pc)
	}
	offsets := int64(high) - int64(low) + 1
	if offsets*4 > int64(len(code)-at-12) {
		return 0, fmt.Errorf("tableswitch at %d has %d offsets past the end of the code", pc, offsets)
	}
	return at - pc + 12 + int(offsets)*4, nil
}

func lookupSwitchLength(code []byte, pc int) (int, error) {
	at := switchOperands(pc)
	if at+8 > len(code) {
		return 0, fmt.Errorf("truncated lookupswitch at %d", pc)
	}
	pairs := int32(binary.BigEndian.Uint32(code[at+4:]))
	if pairs < 0 {
		return 0, fmt.Errorf("lookupswitch at %d has negative pair count", pc)
	}
	if int64(pairs)*8 > int64(len(code)-at-8) {
		return 0, fmt.Errorf("lookupswitch at %d has %d pairs past the end of the code", pc, pairs)
	}
	return at - pc + 8 + int(pairs)*8, nil
}

// loadedStrings returns the string constants pushed by ldc and ldc_w in
// code, in order of appearance.
func loadedStrings(code []byte, cp ConstantPool) ([]string, error) {
	var out []string
	for pc := 0; pc < len(code); {
		n, err := instructionLength(code, pc)
		if err != nil {
			return nil, err
		}
		if pc+n > len(code) {
			return nil, fmt.Errorf("instruction at %d runs past the end of the code", pc)
		}

		var index uint16
		switch code[pc] {
		case opLdc:
			index = uint16(code[pc+1])
		case opLdcW:
			index = binary.BigEndian.Uint16(code[pc+1:])
		}
		if index != 0 {
			if s, ok := cp.String(index); ok {
				out = append(out, s)
			}
		}
		pc += n
	}
	return out, nil
}
