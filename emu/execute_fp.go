// Package emu provides functional RV32IMAFD emulation.
package emu

import "github.com/sarchlab/rv32sim/insts"

// FP format field (bits [26:25] of OP-FP encodings).
const (
	fmtS uint8 = 0b00
	fmtD uint8 = 0b01
)

// FP load/store funct3 values.
const (
	funct3FLW uint8 = 0b010
	funct3FLD uint8 = 0b011
)

// FSGNJ/FMIN/FCMP funct3 values.
const (
	funct3FSGNJ  uint8 = 0b000
	funct3FSGNJN uint8 = 0b001
	funct3FSGNJX uint8 = 0b010
	funct3FMIN   uint8 = 0b000
	funct3FMAX   uint8 = 0b001
	funct3FLE    uint8 = 0b000
	funct3FLT    uint8 = 0b001
	funct3FEQ    uint8 = 0b010
)

// OP-FP funct7 values.
const (
	funct7FAddS  uint8 = 0b0000000
	funct7FSubS  uint8 = 0b0000100
	funct7FMulS  uint8 = 0b0001000
	funct7FDivS  uint8 = 0b0001100
	funct7FSqrtS uint8 = 0b0101100
	funct7FSgnjS uint8 = 0b0010000
	funct7FMinS  uint8 = 0b0010100
	funct7FCvtWS uint8 = 0b1100000
	funct7FMvXW  uint8 = 0b1110000
	funct7FCmpS  uint8 = 0b1010000
	funct7FCvtSW uint8 = 0b1101000
	funct7FMvWX  uint8 = 0b1111000

	funct7FAddD   uint8 = 0b0000001
	funct7FSubD   uint8 = 0b0000101
	funct7FMulD   uint8 = 0b0001001
	funct7FDivD   uint8 = 0b0001101
	funct7FSqrtD  uint8 = 0b0101101
	funct7FSgnjD  uint8 = 0b0010001
	funct7FMinD   uint8 = 0b0010101
	funct7FCvtSD  uint8 = 0b0100000
	funct7FCvtDS  uint8 = 0b0100001
	funct7FCvtWD  uint8 = 0b1100001
	funct7FCmpD   uint8 = 0b1010001
	funct7FClassD uint8 = 0b1110001
	funct7FCvtDW  uint8 = 0b1101001
)

// fpEnabled reports whether FP instructions are legal (mstatus.FS != Off).
func (cpu *CPU) fpEnabled() bool {
	return cpu.CSR.Mstatus&MstatusFS != 0
}

// executeLoadFP handles FLW and FLD. Misaligned accesses are decomposed
// like their integer counterparts.
func (cpu *CPU) executeLoadFP(d *insts.Instruction, bus Bus) *Trap {
	if !cpu.fpEnabled() {
		return IllegalInstruction(d.Raw)
	}

	vaddr := cpu.ReadReg(d.Rs1) + uint32(insts.ImmI(d.Raw))
	priv := cpu.effectivePriv()

	switch d.Funct3 {
	case funct3FLW:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessLoad32, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		cpu.FPU.WriteF32(d.Rd, cpu.read32Unaligned(bus, vaddr, paddr))

	case funct3FLD:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessLoad64, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		lo := uint64(cpu.read32Unaligned(bus, vaddr, paddr))
		hi := uint64(cpu.read32Unaligned(bus, vaddr+4, paddr+4))
		cpu.FPU.WriteF64(d.Rd, hi<<32|lo)

	default:
		return IllegalInstruction(d.Raw)
	}

	cpu.CSR.Mstatus |= MstatusFS
	cpu.PC += 4
	return nil
}

// executeStoreFP handles FSW and FSD.
func (cpu *CPU) executeStoreFP(d *insts.Instruction, bus Bus) *Trap {
	if !cpu.fpEnabled() {
		return IllegalInstruction(d.Raw)
	}

	vaddr := cpu.ReadReg(d.Rs1) + uint32(insts.ImmS(d.Raw))
	priv := cpu.effectivePriv()

	switch d.Funct3 {
	case funct3FLW:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessStore32, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		cpu.clearReservationAt(paddr, 4)
		cpu.write32Unaligned(bus, vaddr, paddr, cpu.FPU.ReadF32(d.Rs2))

	case funct3FLD:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessStore64, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		cpu.clearReservationAt(paddr, 8)
		value := cpu.FPU.ReadF64(d.Rs2)
		cpu.write32Unaligned(bus, vaddr, paddr, uint32(value))
		cpu.write32Unaligned(bus, vaddr+4, paddr+4, uint32(value>>32))

	default:
		return IllegalInstruction(d.Raw)
	}

	cpu.PC += 4
	return nil
}

// write32Unaligned writes a word, byte by byte when misaligned.
func (cpu *CPU) write32Unaligned(bus Bus, vaddr, paddr, value uint32) {
	if vaddr&3 != 0 {
		bus.Write8(paddr, uint8(value))
		bus.Write8(paddr+1, uint8(value>>8))
		bus.Write8(paddr+2, uint8(value>>16))
		bus.Write8(paddr+3, uint8(value>>24))
	} else {
		bus.Write32(paddr, value)
	}
}

// executeFMA handles FMADD, FMSUB, FNMSUB and FNMADD in both precisions
// by sign-flipping operands around a single fused multiply-add.
func (cpu *CPU) executeFMA(d *insts.Instruction) *Trap {
	if !cpu.fpEnabled() {
		return IllegalInstruction(d.Raw)
	}

	rm := cpu.FPU.EffectiveRM(uint32(d.Funct3))
	fmt := d.Funct7 & 0b11

	switch fmt {
	case fmtS:
		rs1 := cpu.FPU.ReadF32(d.Rs1)
		rs2 := cpu.FPU.ReadF32(d.Rs2)
		rs3 := cpu.FPU.ReadF32(d.Rs3)

		const sign = uint32(0x8000_0000)
		var result uint32
		var flags FFlags
		switch d.Opcode {
		case insts.OpMAdd:
			result, flags = F32FMAdd(rs1, rs2, rs3, rm)
		case insts.OpMSub:
			result, flags = F32FMAdd(rs1, rs2, rs3^sign, rm)
		case insts.OpNMSub:
			result, flags = F32FMAdd(rs1^sign, rs2, rs3, rm)
		default: // OpNMAdd
			result, flags = F32FMAdd(rs1^sign, rs2, rs3^sign, rm)
		}
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case fmtD:
		rs1 := cpu.FPU.ReadF64(d.Rs1)
		rs2 := cpu.FPU.ReadF64(d.Rs2)
		rs3 := cpu.FPU.ReadF64(d.Rs3)

		const sign = uint64(0x8000_0000_0000_0000)
		var result uint64
		var flags FFlags
		switch d.Opcode {
		case insts.OpMAdd:
			result, flags = F64FMAdd(rs1, rs2, rs3, rm)
		case insts.OpMSub:
			result, flags = F64FMAdd(rs1, rs2, rs3^sign, rm)
		case insts.OpNMSub:
			result, flags = F64FMAdd(rs1^sign, rs2, rs3, rm)
		default: // OpNMAdd
			result, flags = F64FMAdd(rs1^sign, rs2, rs3^sign, rm)
		}
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	default:
		return IllegalInstruction(d.Raw)
	}

	cpu.CSR.Mstatus |= MstatusFS
	cpu.PC += 4
	return nil
}

// executeOpFP handles the OP-FP computational instructions.
func (cpu *CPU) executeOpFP(d *insts.Instruction) *Trap {
	if !cpu.fpEnabled() {
		return IllegalInstruction(d.Raw)
	}

	raw := d.Raw
	rm := cpu.FPU.EffectiveRM(uint32(d.Funct3))

	switch d.Funct7 {
	case funct7FAddS:
		result, flags := F32Add(cpu.FPU.ReadF32(d.Rs1), cpu.FPU.ReadF32(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FSubS:
		result, flags := F32Sub(cpu.FPU.ReadF32(d.Rs1), cpu.FPU.ReadF32(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FMulS:
		result, flags := F32Mul(cpu.FPU.ReadF32(d.Rs1), cpu.FPU.ReadF32(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FDivS:
		result, flags := F32Div(cpu.FPU.ReadF32(d.Rs1), cpu.FPU.ReadF32(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FSqrtS:
		result, flags := F32Sqrt(cpu.FPU.ReadF32(d.Rs1), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FSgnjS:
		rs1 := cpu.FPU.ReadF32(d.Rs1)
		rs2 := cpu.FPU.ReadF32(d.Rs2)
		var result uint32
		switch d.Funct3 {
		case funct3FSGNJ:
			result = F32SignInject(rs1, rs2)
		case funct3FSGNJN:
			result = F32SignInjectN(rs1, rs2)
		case funct3FSGNJX:
			result = F32SignInjectX(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FMinS:
		rs1 := cpu.FPU.ReadF32(d.Rs1)
		rs2 := cpu.FPU.ReadF32(d.Rs2)
		var result uint32
		var flags FFlags
		switch d.Funct3 {
		case funct3FMIN:
			result, flags = F32Min(rs1, rs2)
		case funct3FMAX:
			result, flags = F32Max(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FCvtWS:
		rs1 := cpu.FPU.ReadF32(d.Rs1)
		var result uint32
		var flags FFlags
		switch d.Rs2 {
		case 0: // FCVT.W.S
			v, f := F32ToI32(rs1, rm)
			result, flags = uint32(v), f
		case 1: // FCVT.WU.S
			result, flags = F32ToU32(rs1, rm)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.WriteReg(d.Rd, result)

	case funct7FMvXW:
		switch {
		case d.Funct3 == 0 && d.Rs2 == 0: // FMV.X.W
			cpu.WriteReg(d.Rd, cpu.FPU.ReadF32(d.Rs1))
		case d.Funct3 == 1 && d.Rs2 == 0: // FCLASS.S
			cpu.WriteReg(d.Rd, F32Classify(cpu.FPU.ReadF32(d.Rs1)))
		default:
			return IllegalInstruction(raw)
		}

	case funct7FCmpS:
		rs1 := cpu.FPU.ReadF32(d.Rs1)
		rs2 := cpu.FPU.ReadF32(d.Rs2)
		var result bool
		var flags FFlags
		switch d.Funct3 {
		case funct3FEQ:
			result, flags = F32Eq(rs1, rs2)
		case funct3FLT:
			result, flags = F32Lt(rs1, rs2)
		case funct3FLE:
			result, flags = F32Le(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.WriteReg(d.Rd, boolToReg(result))

	case funct7FCvtSW:
		rs1 := cpu.ReadReg(d.Rs1)
		var result uint32
		var flags FFlags
		switch d.Rs2 {
		case 0: // FCVT.S.W
			result, flags = I32ToF32(int32(rs1))
		case 1: // FCVT.S.WU
			result, flags = U32ToF32(rs1)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FMvWX:
		if d.Funct3 != 0 || d.Rs2 != 0 {
			return IllegalInstruction(raw)
		}
		cpu.FPU.WriteF32(d.Rd, cpu.ReadReg(d.Rs1))

	case funct7FAddD:
		result, flags := F64Add(cpu.FPU.ReadF64(d.Rs1), cpu.FPU.ReadF64(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FSubD:
		result, flags := F64Sub(cpu.FPU.ReadF64(d.Rs1), cpu.FPU.ReadF64(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FMulD:
		result, flags := F64Mul(cpu.FPU.ReadF64(d.Rs1), cpu.FPU.ReadF64(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FDivD:
		result, flags := F64Div(cpu.FPU.ReadF64(d.Rs1), cpu.FPU.ReadF64(d.Rs2), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FSqrtD:
		result, flags := F64Sqrt(cpu.FPU.ReadF64(d.Rs1), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FSgnjD:
		rs1 := cpu.FPU.ReadF64(d.Rs1)
		rs2 := cpu.FPU.ReadF64(d.Rs2)
		var result uint64
		switch d.Funct3 {
		case funct3FSGNJ:
			result = F64SignInject(rs1, rs2)
		case funct3FSGNJN:
			result = F64SignInjectN(rs1, rs2)
		case funct3FSGNJX:
			result = F64SignInjectX(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FMinD:
		rs1 := cpu.FPU.ReadF64(d.Rs1)
		rs2 := cpu.FPU.ReadF64(d.Rs2)
		var result uint64
		var flags FFlags
		switch d.Funct3 {
		case funct3FMIN:
			result, flags = F64Min(rs1, rs2)
		case funct3FMAX:
			result, flags = F64Max(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FCvtSD:
		if d.Rs2 != 1 {
			return IllegalInstruction(raw)
		}
		result, flags := F64ToF32(cpu.FPU.ReadF64(d.Rs1), rm)
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF32(d.Rd, result)

	case funct7FCvtDS:
		if d.Rs2 != 0 {
			return IllegalInstruction(raw)
		}
		result, flags := F32ToF64(cpu.FPU.ReadF32(d.Rs1))
		cpu.FPU.Flags |= flags
		cpu.FPU.WriteF64(d.Rd, result)

	case funct7FCvtWD:
		rs1 := cpu.FPU.ReadF64(d.Rs1)
		var result uint32
		var flags FFlags
		switch d.Rs2 {
		case 0: // FCVT.W.D
			v, f := F64ToI32(rs1, rm)
			result, flags = uint32(v), f
		case 1: // FCVT.WU.D
			result, flags = F64ToU32(rs1, rm)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.WriteReg(d.Rd, result)

	case funct7FCmpD:
		rs1 := cpu.FPU.ReadF64(d.Rs1)
		rs2 := cpu.FPU.ReadF64(d.Rs2)
		var result bool
		var flags FFlags
		switch d.Funct3 {
		case funct3FEQ:
			result, flags = F64Eq(rs1, rs2)
		case funct3FLT:
			result, flags = F64Lt(rs1, rs2)
		case funct3FLE:
			result, flags = F64Le(rs1, rs2)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.Flags |= flags
		cpu.WriteReg(d.Rd, boolToReg(result))

	case funct7FClassD:
		if d.Funct3 != 1 || d.Rs2 != 0 {
			return IllegalInstruction(raw)
		}
		cpu.WriteReg(d.Rd, F64Classify(cpu.FPU.ReadF64(d.Rs1)))

	case funct7FCvtDW:
		rs1 := cpu.ReadReg(d.Rs1)
		var result uint64
		switch d.Rs2 {
		case 0: // FCVT.D.W, always exact
			result = I32ToF64(int32(rs1))
		case 1: // FCVT.D.WU, always exact
			result = U32ToF64(rs1)
		default:
			return IllegalInstruction(raw)
		}
		cpu.FPU.WriteF64(d.Rd, result)

	default:
		return IllegalInstruction(raw)
	}

	cpu.CSR.Mstatus |= MstatusFS
	cpu.PC += 4
	return nil
}

// boolToReg converts a comparison result to its x-register encoding.
func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
