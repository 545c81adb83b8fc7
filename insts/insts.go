// Package insts provides RISC-V instruction definitions and decoding.
//
// This package implements decoding of RV32IMAFD machine code into a compact
// structured representation. Field extraction (opcode, registers, funct3,
// funct7) happens eagerly; immediates are extracted lazily per format with
// the ImmI/ImmS/ImmB/ImmU/ImmJ helpers, because most instructions need at
// most one of them and pre-decoding all five costs real time on the hot path.
//
// Usage:
//
//	inst := insts.Decode(0x00500093) // addi x1, x0, 5
//	fmt.Printf("Op: %#x, Rd: %d, Rs1: %d, Imm: %d\n",
//		inst.Opcode, inst.Rd, inst.Rs1, insts.ImmI(inst.Raw))
package insts
