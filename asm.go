package inject

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

const (
	opcodeCALLrel = 0xe8 // CALL rel32
	opcodeINT3    = 0xcc
	opcodeJMP     = 0xe9 // JMP rel32
	opcodeRET     = 0xc3

	rel32Size = 5 // 1 byte opcode + 4 byte address
)

// Instruction is one decoded instruction of a method body.
type Instruction struct {
	Offset int
	x86asm.Inst

	// Target is the token fixed up into the instruction's rel32 operand. It
	// is only meaningful when HasTarget is set.
	Target    Token
	HasTarget bool
}

// Instructions decodes the whole body.
func (b *MethodBody) Instructions() ([]Instruction, error) {
	return b.decode(-1)
}

// decode decodes up to n instructions from the start of the body, or all of
// them if n is negative. On error the instructions before the bad offset are
// still returned.
func (b *MethodBody) decode(n int) ([]Instruction, error) {
	var out []Instruction
	for i := 0; i < len(b.Code) && (n < 0 || len(out) < n); {
		inst, err := x86asm.Decode(b.Code[i:], 64)
		if err != nil {
			return out, fmt.Errorf("decode error at offset %d: %w", i, err)
		}

		ins := Instruction{Offset: i, Inst: inst}
		if inst.Len == rel32Size && (inst.Op == x86asm.CALL || inst.Op == x86asm.JMP) {
			ins.Target, ins.HasTarget = b.Fixup(i + 1)
		}
		out = append(out, ins)

		i += inst.Len
	}
	return out, nil
}

// rel32 returns a CALL or JMP to token. The operand is left zero for the host
// loader to fill in.
func rel32(opcode byte, token Token) ([]byte, Fixup) {
	buf := make([]byte, rel32Size)
	buf[0] = opcode
	return buf, Fixup{Offset: 1, Token: token}
}

// replace swaps the length bytes at offset for code. Fixups inside the
// replaced range are dropped, fixups after it move with the bytes that follow,
// and fixups (relative to code) are added.
func (b *MethodBody) replace(offset, length int, code []byte, fixups ...Fixup) {
	delta := len(code) - length

	newCode := make([]byte, 0, len(b.Code)+delta)
	newCode = append(newCode, b.Code[:offset]...)
	newCode = append(newCode, code...)
	newCode = append(newCode, b.Code[offset+length:]...)

	var newFixups []Fixup
	for _, f := range b.Fixups {
		switch {
		case f.Offset < offset:
			newFixups = append(newFixups, f)
		case f.Offset >= offset+length:
			f.Offset += delta
			newFixups = append(newFixups, f)
		}
	}
	for _, f := range fixups {
		f.Offset += offset
		newFixups = append(newFixups, f)
	}

	b.Code = newCode
	b.Fixups = newFixups
}

// stubBody returns a body that jumps straight to token, padded with INT3 to
// 16 bytes like compiled functions are.
func stubBody(token Token) *MethodBody {
	code, fixup := rel32(opcodeJMP, token)
	for len(code)%16 != 0 {
		code = append(code, opcodeINT3)
	}
	return &MethodBody{Code: code, Fixups: []Fixup{fixup}}
}

// Disassemble renders the body one instruction per line, resolving fixup
// targets against m.
func (b *MethodBody) Disassemble(m *Module) (string, error) {
	var buf bytes.Buffer

	instructions, err := b.Instructions()
	if err != nil {
		return "", err
	}

	for _, ins := range instructions {
		fmt.Fprintf(&buf, "0x%04x\t%-20s\t%s", ins.Offset, hex.EncodeToString(b.Code[ins.Offset:ins.Offset+ins.Len]), ins.Inst.String())
		if ins.HasTarget {
			name, ok := m.ResolveName(ins.Target)
			if !ok {
				name = "<bad token " + ins.Target.String() + ">"
			}
			fmt.Fprintf(&buf, "\t; %s", name)
		}
		buf.WriteByte('\n')
	}

	return buf.String(), nil
}

