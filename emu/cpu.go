// Package emu provides functional RV32IMAFD emulation.
package emu

import "github.com/sarchlab/rv32sim/insts"

// ResetPC is the reset program counter, pointing into the boot ROM.
const ResetPC uint32 = 0x0000_1000

// CPU is the architectural state of a single RV32IMAFD hart.
type CPU struct {
	// PC is the program counter.
	PC uint32
	// Regs holds x0-x31. x0 is forced to zero on every write.
	Regs [32]uint32
	// FPU holds f0-f31 plus frm and fflags.
	FPU *FPU
	// CSR is the control-and-status register block.
	CSR *CSR
	// Priv is the current privilege level.
	Priv PrivilegeLevel

	// WFI is set by the WFI instruction and cleared when an interrupt
	// becomes pending; the run loop uses it to idle-skip.
	WFI bool

	// Reservation state for LR/SC: a valid bit and the reserved
	// 4-byte-aligned physical address.
	ResValid bool
	ResAddr  uint32

	// MMU performs Sv32 translation with the per-access-class cache.
	MMU *MMU

	// InstCount counts retired instructions.
	InstCount uint64

	// InvalidatePending is raised by FENCE.I, SFENCE.VMA and satp
	// writes; the system driver flushes the block cache and clears it.
	InvalidatePending bool
}

// NewCPU creates a CPU in the reset state, ready to run the boot ROM in
// M-mode.
func NewCPU() *CPU {
	return &CPU{
		PC:   ResetPC,
		FPU:  NewFPU(),
		CSR:  NewCSR(),
		Priv: PrivMachine,
		MMU:  NewMMU(),
	}
}

// Reset restores the architectural reset state.
func (cpu *CPU) Reset() {
	cpu.PC = ResetPC
	cpu.Regs = [32]uint32{}
	cpu.FPU.Reset()
	cpu.CSR.Reset()
	cpu.Priv = PrivMachine
	cpu.WFI = false
	cpu.ResValid = false
	cpu.ResAddr = 0
	cpu.MMU.Reset()
	cpu.InstCount = 0
	cpu.InvalidatePending = false
}

// ReadReg reads a register; x0 always reads zero.
func (cpu *CPU) ReadReg(reg uint8) uint32 {
	if reg == 0 {
		return 0
	}
	return cpu.Regs[reg&0x1F]
}

// WriteReg writes a register; writes to x0 are discarded.
func (cpu *CPU) WriteReg(reg uint8, value uint32) {
	if reg != 0 {
		cpu.Regs[reg&0x1F] = value
	}
}

// effectivePriv returns the privilege used for load/store translation,
// honoring MSTATUS.MPRV.
func (cpu *CPU) effectivePriv() PrivilegeLevel {
	if cpu.Priv == PrivMachine && cpu.CSR.Mstatus&MstatusMPRV != 0 {
		return PrivilegeFromBits(cpu.CSR.Mstatus >> 11)
	}
	return cpu.Priv
}

// Step fetches, decodes and executes one instruction against the bus.
// A returned trap has not yet been taken; the caller decides whether to
// intercept it (the SBI hook) or deliver it with TakeTrap.
func (cpu *CPU) Step(bus Bus) *Trap {
	paddr, trap := cpu.MMU.Translate(cpu.PC, AccessFetch, cpu.Priv, bus,
		cpu.CSR.Satp, cpu.CSR.Mstatus)
	if trap != nil {
		return trap
	}

	inst := insts.Decode(bus.Read32(paddr))
	if trap := cpu.Execute(&inst, bus); trap != nil {
		return trap
	}

	cpu.InstCount++
	return nil
}
