// Package emu provides functional RV32IMAFD emulation.
package emu

import "github.com/sarchlab/rv32sim/insts"

// Privileged SYSTEM encodings.
const (
	instECALL  uint32 = 0x00000073
	instEBREAK uint32 = 0x00100073
	instSRET   uint32 = 0x10200073
	instMRET   uint32 = 0x30200073
	instWFI    uint32 = 0x10500073
)

// Execute runs one decoded instruction: it reads operands, performs the
// operation, writes the destination and advances the PC. Branch targets
// are the branch PC plus the B-format immediate; JALR masks the low bit
// of the computed target. A non-nil result is a trap that the caller has
// to deliver; the PC then still points at the trapping instruction.
func (cpu *CPU) Execute(d *insts.Instruction, bus Bus) *Trap {
	raw := d.Raw

	switch d.Opcode {
	case insts.OpLUI:
		cpu.WriteReg(d.Rd, uint32(insts.ImmU(raw)))
		cpu.PC += 4

	case insts.OpAUIPC:
		cpu.WriteReg(d.Rd, cpu.PC+uint32(insts.ImmU(raw)))
		cpu.PC += 4

	case insts.OpJAL:
		cpu.WriteReg(d.Rd, cpu.PC+4)
		cpu.PC += uint32(d.Imm)

	case insts.OpJALR:
		target := (cpu.ReadReg(d.Rs1) + uint32(d.Imm)) &^ 1
		cpu.WriteReg(d.Rd, cpu.PC+4)
		cpu.PC = target

	case insts.OpBranch:
		rs1 := cpu.ReadReg(d.Rs1)
		rs2 := cpu.ReadReg(d.Rs2)

		var taken bool
		switch d.Funct3 {
		case insts.Funct3BEQ:
			taken = rs1 == rs2
		case insts.Funct3BNE:
			taken = rs1 != rs2
		case insts.Funct3BLT:
			taken = int32(rs1) < int32(rs2)
		case insts.Funct3BGE:
			taken = int32(rs1) >= int32(rs2)
		case insts.Funct3BLTU:
			taken = rs1 < rs2
		case insts.Funct3BGEU:
			taken = rs1 >= rs2
		default:
			return IllegalInstruction(raw)
		}

		if taken {
			cpu.PC += uint32(d.Imm)
		} else {
			cpu.PC += 4
		}

	case insts.OpLoad:
		return cpu.executeLoad(d, bus)

	case insts.OpStore:
		return cpu.executeStore(d, bus)

	case insts.OpOpImm:
		rs1 := cpu.ReadReg(d.Rs1)
		imm := uint32(insts.ImmI(raw))
		shamt := imm & 0x1F

		var result uint32
		switch d.Funct3 {
		case insts.Funct3AddSub:
			result = rs1 + imm
		case insts.Funct3SLT:
			if int32(rs1) < int32(imm) {
				result = 1
			}
		case insts.Funct3SLTU:
			if rs1 < imm {
				result = 1
			}
		case insts.Funct3XOR:
			result = rs1 ^ imm
		case insts.Funct3OR:
			result = rs1 | imm
		case insts.Funct3AND:
			result = rs1 & imm
		case insts.Funct3SLL:
			result = rs1 << shamt
		case insts.Funct3SRLSRA:
			if imm>>10&1 != 0 {
				result = uint32(int32(rs1) >> shamt)
			} else {
				result = rs1 >> shamt
			}
		default:
			return IllegalInstruction(raw)
		}

		cpu.WriteReg(d.Rd, result)
		cpu.PC += 4

	case insts.OpOp:
		rs1 := cpu.ReadReg(d.Rs1)
		rs2 := cpu.ReadReg(d.Rs2)

		var result uint32
		if d.Funct7 == 0b0000001 {
			result = executeMExtension(d.Funct3, rs1, rs2)
		} else {
			switch {
			case d.Funct3 == insts.Funct3AddSub && d.Funct7 == 0:
				result = rs1 + rs2
			case d.Funct3 == insts.Funct3AddSub && d.Funct7 == 0b0100000:
				result = rs1 - rs2
			case d.Funct3 == insts.Funct3SLL && d.Funct7 == 0:
				result = rs1 << (rs2 & 0x1F)
			case d.Funct3 == insts.Funct3SLT && d.Funct7 == 0:
				if int32(rs1) < int32(rs2) {
					result = 1
				}
			case d.Funct3 == insts.Funct3SLTU && d.Funct7 == 0:
				if rs1 < rs2 {
					result = 1
				}
			case d.Funct3 == insts.Funct3XOR && d.Funct7 == 0:
				result = rs1 ^ rs2
			case d.Funct3 == insts.Funct3SRLSRA && d.Funct7 == 0:
				result = rs1 >> (rs2 & 0x1F)
			case d.Funct3 == insts.Funct3SRLSRA && d.Funct7 == 0b0100000:
				result = uint32(int32(rs1) >> (rs2 & 0x1F))
			case d.Funct3 == insts.Funct3OR && d.Funct7 == 0:
				result = rs1 | rs2
			case d.Funct3 == insts.Funct3AND && d.Funct7 == 0:
				result = rs1 & rs2
			default:
				return IllegalInstruction(raw)
			}
		}

		cpu.WriteReg(d.Rd, result)
		cpu.PC += 4

	case insts.OpMiscMem:
		if d.Funct3 == 1 {
			// FENCE.I: discard every cached decoded block.
			cpu.InvalidatePending = true
		}
		cpu.PC += 4

	case insts.OpSystem:
		return cpu.executeSystem(d, bus)

	case insts.OpAMO:
		return cpu.executeAMO(d, bus)

	case insts.OpLoadFP:
		return cpu.executeLoadFP(d, bus)

	case insts.OpStoreFP:
		return cpu.executeStoreFP(d, bus)

	case insts.OpMAdd, insts.OpMSub, insts.OpNMSub, insts.OpNMAdd:
		return cpu.executeFMA(d)

	case insts.OpOpFP:
		return cpu.executeOpFP(d)

	default:
		return IllegalInstruction(raw)
	}

	return nil
}

// executeMExtension implements MUL/DIV per the M extension, including
// the divide-by-zero and overflow sentinel results.
func executeMExtension(funct3 uint8, rs1, rs2 uint32) uint32 {
	switch funct3 {
	case insts.Funct3MUL:
		return rs1 * rs2
	case insts.Funct3MULH:
		return uint32(int64(int32(rs1)) * int64(int32(rs2)) >> 32)
	case insts.Funct3MULHSU:
		return uint32(int64(int32(rs1)) * int64(rs2) >> 32)
	case insts.Funct3MULHU:
		return uint32(uint64(rs1) * uint64(rs2) >> 32)
	case insts.Funct3DIV:
		if rs2 == 0 {
			return 0xFFFFFFFF
		}
		if int32(rs1) == -1<<31 && int32(rs2) == -1 {
			return rs1
		}
		return uint32(int32(rs1) / int32(rs2))
	case insts.Funct3DIVU:
		if rs2 == 0 {
			return 0xFFFFFFFF
		}
		return rs1 / rs2
	case insts.Funct3REM:
		if rs2 == 0 {
			return rs1
		}
		if int32(rs1) == -1<<31 && int32(rs2) == -1 {
			return 0
		}
		return uint32(int32(rs1) % int32(rs2))
	default: // Funct3REMU
		if rs2 == 0 {
			return rs1
		}
		return rs1 % rs2
	}
}

// loadAccessFor maps a load funct3 to its translation-cache class.
func loadAccessFor(funct3 uint8) AccessType {
	switch funct3 {
	case insts.Funct3LB, insts.Funct3LBU:
		return AccessLoad8
	case insts.Funct3LH, insts.Funct3LHU:
		return AccessLoad16
	default:
		return AccessLoad32
	}
}

// executeLoad handles LB/LH/LW/LBU/LHU. Misaligned halfwords and words
// do not trap; they are decomposed into byte accesses.
func (cpu *CPU) executeLoad(d *insts.Instruction, bus Bus) *Trap {
	vaddr := cpu.ReadReg(d.Rs1) + uint32(insts.ImmI(d.Raw))

	paddr, trap := cpu.MMU.Translate(vaddr, loadAccessFor(d.Funct3),
		cpu.effectivePriv(), bus, cpu.CSR.Satp, cpu.CSR.Mstatus)
	if trap != nil {
		return trap
	}

	var value uint32
	switch d.Funct3 {
	case insts.Funct3LB:
		value = uint32(int32(int8(bus.Read8(paddr))))
	case insts.Funct3LBU:
		value = uint32(bus.Read8(paddr))
	case insts.Funct3LH:
		value = uint32(int32(int16(cpu.read16Unaligned(bus, vaddr, paddr))))
	case insts.Funct3LHU:
		value = uint32(cpu.read16Unaligned(bus, vaddr, paddr))
	case insts.Funct3LW:
		value = cpu.read32Unaligned(bus, vaddr, paddr)
	default:
		return IllegalInstruction(d.Raw)
	}

	cpu.WriteReg(d.Rd, value)
	cpu.PC += 4
	return nil
}

// executeStore handles SB/SH/SW with the same misalignment policy as
// loads. Any store into the reserved word kills the LR/SC reservation.
func (cpu *CPU) executeStore(d *insts.Instruction, bus Bus) *Trap {
	vaddr := cpu.ReadReg(d.Rs1) + uint32(insts.ImmS(d.Raw))
	value := cpu.ReadReg(d.Rs2)

	var access AccessType
	switch d.Funct3 {
	case insts.Funct3SB:
		access = AccessStore8
	case insts.Funct3SH:
		access = AccessStore16
	case insts.Funct3SW:
		access = AccessStore32
	default:
		return IllegalInstruction(d.Raw)
	}

	paddr, trap := cpu.MMU.Translate(vaddr, access,
		cpu.effectivePriv(), bus, cpu.CSR.Satp, cpu.CSR.Mstatus)
	if trap != nil {
		return trap
	}

	cpu.clearReservationAt(paddr, 1<<d.Funct3)

	switch d.Funct3 {
	case insts.Funct3SB:
		bus.Write8(paddr, uint8(value))
	case insts.Funct3SH:
		if vaddr&1 != 0 {
			bus.Write8(paddr, uint8(value))
			bus.Write8(paddr+1, uint8(value>>8))
		} else {
			bus.Write16(paddr, uint16(value))
		}
	case insts.Funct3SW:
		if vaddr&3 != 0 {
			bus.Write8(paddr, uint8(value))
			bus.Write8(paddr+1, uint8(value>>8))
			bus.Write8(paddr+2, uint8(value>>16))
			bus.Write8(paddr+3, uint8(value>>24))
		} else {
			bus.Write32(paddr, value)
		}
	}

	cpu.PC += 4
	return nil
}

// read16Unaligned reads a halfword, byte by byte when misaligned.
func (cpu *CPU) read16Unaligned(bus Bus, vaddr, paddr uint32) uint16 {
	if vaddr&1 != 0 {
		lo := uint16(bus.Read8(paddr))
		hi := uint16(bus.Read8(paddr + 1))
		return hi<<8 | lo
	}
	return bus.Read16(paddr)
}

// read32Unaligned reads a word, byte by byte when misaligned.
func (cpu *CPU) read32Unaligned(bus Bus, vaddr, paddr uint32) uint32 {
	if vaddr&3 != 0 {
		b0 := uint32(bus.Read8(paddr))
		b1 := uint32(bus.Read8(paddr + 1))
		b2 := uint32(bus.Read8(paddr + 2))
		b3 := uint32(bus.Read8(paddr + 3))
		return b3<<24 | b2<<16 | b1<<8 | b0
	}
	return bus.Read32(paddr)
}

// clearReservationAt invalidates the LR/SC reservation when a store of
// the given size touches any byte of the reserved 4-byte word.
func (cpu *CPU) clearReservationAt(paddr, size uint32) {
	if cpu.ResValid && paddr+size > cpu.ResAddr && paddr < cpu.ResAddr+4 {
		cpu.ResValid = false
	}
}

// executeAMO handles LR/SC and the AMO read-modify-write instructions.
// Atomics require natural alignment; misaligned addresses trap because
// the reservation tracks an aligned physical word.
func (cpu *CPU) executeAMO(d *insts.Instruction, bus Bus) *Trap {
	vaddr := cpu.ReadReg(d.Rs1)
	funct5 := d.Funct7 >> 2

	if vaddr&3 != 0 {
		if funct5 == insts.Funct5LR {
			return NewTrap(CauseLoadAddrMisaligned, vaddr)
		}
		return NewTrap(CauseStoreAddrMisaligned, vaddr)
	}

	priv := cpu.effectivePriv()

	switch funct5 {
	case insts.Funct5LR:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessLoad32, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		cpu.WriteReg(d.Rd, bus.Read32(paddr))
		cpu.ResValid = true
		cpu.ResAddr = paddr

	case insts.Funct5SC:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessStore32, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}
		if cpu.ResValid && cpu.ResAddr == paddr {
			bus.Write32(paddr, cpu.ReadReg(d.Rs2))
			cpu.WriteReg(d.Rd, 0)
		} else {
			cpu.WriteReg(d.Rd, 1)
		}
		cpu.ResValid = false

	default:
		paddr, trap := cpu.MMU.Translate(vaddr, AccessStore32, priv, bus,
			cpu.CSR.Satp, cpu.CSR.Mstatus)
		if trap != nil {
			return trap
		}

		cpu.clearReservationAt(paddr, 4)

		old := bus.Read32(paddr)
		rs2 := cpu.ReadReg(d.Rs2)

		var next uint32
		switch funct5 {
		case insts.Funct5AMOSwap:
			next = rs2
		case insts.Funct5AMOAdd:
			next = old + rs2
		case insts.Funct5AMOXor:
			next = old ^ rs2
		case insts.Funct5AMOAnd:
			next = old & rs2
		case insts.Funct5AMOOr:
			next = old | rs2
		case insts.Funct5AMOMin:
			next = rs2
			if int32(old) < int32(rs2) {
				next = old
			}
		case insts.Funct5AMOMax:
			next = rs2
			if int32(old) > int32(rs2) {
				next = old
			}
		case insts.Funct5AMOMinU:
			next = min(old, rs2)
		case insts.Funct5AMOMaxU:
			next = max(old, rs2)
		default:
			return IllegalInstruction(d.Raw)
		}

		bus.Write32(paddr, next)
		cpu.WriteReg(d.Rd, old)
	}

	cpu.PC += 4
	return nil
}

// executeSystem handles ECALL, EBREAK, xRET, WFI, SFENCE.VMA and the CSR
// instructions.
func (cpu *CPU) executeSystem(d *insts.Instruction, _ Bus) *Trap {
	raw := d.Raw

	if d.Funct3 == insts.Funct3Priv {
		switch raw {
		case instECALL:
			switch cpu.Priv {
			case PrivUser:
				return NewTrap(CauseEcallFromU, 0)
			case PrivSupervisor:
				return NewTrap(CauseEcallFromS, 0)
			default:
				return NewTrap(CauseEcallFromM, 0)
			}
		case instEBREAK:
			return NewTrap(CauseBreakpoint, cpu.PC)
		case instSRET:
			if cpu.Priv < PrivSupervisor {
				return IllegalInstruction(raw)
			}
			cpu.SRet()
			return nil
		case instMRET:
			if cpu.Priv < PrivMachine {
				return IllegalInstruction(raw)
			}
			cpu.MRet()
			return nil
		case instWFI:
			cpu.WFI = true
			cpu.PC += 4
			return nil
		}
		if d.Funct7 == 0b0001001 {
			// SFENCE.VMA: flush translations and cached blocks.
			cpu.MMU.Invalidate()
			cpu.InvalidatePending = true
			cpu.PC += 4
			return nil
		}
		return IllegalInstruction(raw)
	}

	return cpu.executeCSR(d)
}

// executeCSR handles the six CSR access instructions. FP CSRs live in
// the FPU; writing them dirties mstatus.FS. Writing satp swaps the
// address space, so it flushes the TLB and the block cache.
func (cpu *CPU) executeCSR(d *insts.Instruction) *Trap {
	raw := d.Raw
	csrAddr := raw >> 20

	isImm := d.Funct3 >= insts.Funct3CSRRWI
	var operand uint32
	if isImm {
		operand = uint32(d.Rs1) // zimm
	} else {
		operand = cpu.ReadReg(d.Rs1)
	}

	var old uint32
	switch csrAddr {
	case CSRFflags:
		old = uint32(cpu.FPU.Flags)
	case CSRFrm:
		old = uint32(cpu.FPU.Frm)
	case CSRFcsr:
		old = cpu.FPU.ReadFCSR()
	default:
		var ok bool
		old, ok = cpu.CSR.Read(csrAddr, cpu.Priv)
		if !ok {
			return IllegalInstruction(raw)
		}
	}

	var next uint32
	switch d.Funct3 & 0x3 {
	case 0b01: // CSRRW(I)
		next = operand
	case 0b10: // CSRRS(I)
		next = old | operand
	case 0b11: // CSRRC(I)
		next = old &^ operand
	}

	// RS/RC with a zero operand read without writing.
	if d.Funct3&0x3 == 0b01 || operand != 0 {
		switch csrAddr {
		case CSRFflags:
			cpu.FPU.Flags = FFlags(next & 0x1F)
			cpu.CSR.Mstatus |= MstatusFS
		case CSRFrm:
			cpu.FPU.Frm = RoundingModeFromBits(next)
			cpu.CSR.Mstatus |= MstatusFS
		case CSRFcsr:
			cpu.FPU.WriteFCSR(next)
			cpu.CSR.Mstatus |= MstatusFS
		default:
			if !cpu.CSR.Write(csrAddr, next, cpu.Priv) {
				return IllegalInstruction(raw)
			}
			if csrAddr == CSRSatp {
				cpu.MMU.Invalidate()
				cpu.InvalidatePending = true
			}
		}
	}

	cpu.WriteReg(d.Rd, old)
	cpu.PC += 4
	return nil
}
