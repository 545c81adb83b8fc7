// Package emu provides functional RV32IMAFD emulation.
package emu

// PrivilegeLevel is the current operating mode of the hart.
type PrivilegeLevel uint8

// Privilege levels. The encodings match the MPP/SPP fields of mstatus.
const (
	PrivUser       PrivilegeLevel = 0
	PrivSupervisor PrivilegeLevel = 1
	PrivMachine    PrivilegeLevel = 3
)

// PrivilegeFromBits decodes a 2-bit mstatus field into a privilege level.
func PrivilegeFromBits(bits uint32) PrivilegeLevel {
	switch bits & 3 {
	case 0:
		return PrivUser
	case 1:
		return PrivSupervisor
	default:
		return PrivMachine
	}
}

// Exception cause codes (mcause with the interrupt bit clear).
const (
	CauseInstAddrMisaligned  uint32 = 0
	CauseInstAccessFault     uint32 = 1
	CauseIllegalInstruction  uint32 = 2
	CauseBreakpoint          uint32 = 3
	CauseLoadAddrMisaligned  uint32 = 4
	CauseLoadAccessFault     uint32 = 5
	CauseStoreAddrMisaligned uint32 = 6
	CauseStoreAccessFault    uint32 = 7
	CauseEcallFromU          uint32 = 8
	CauseEcallFromS          uint32 = 9
	CauseEcallFromM          uint32 = 11
	CauseInstPageFault       uint32 = 12
	CauseLoadPageFault       uint32 = 13
	CauseStorePageFault      uint32 = 15
)

// Interrupt cause codes (mcause with the interrupt bit set).
const (
	causeInterrupt uint32 = 0x80000000

	CauseSupervisorSoftware = causeInterrupt | 1
	CauseMachineSoftware    = causeInterrupt | 3
	CauseSupervisorTimer    = causeInterrupt | 5
	CauseMachineTimer       = causeInterrupt | 7
	CauseSupervisorExternal = causeInterrupt | 9
	CauseMachineExternal    = causeInterrupt | 11
)

// Trap is a pending exception or interrupt.
//
// Traps are values that flow back to the run loop, not Go errors: from
// the host's perspective they are part of normal guest execution.
type Trap struct {
	// Cause is the mcause/scause encoding, interrupt bit included.
	Cause uint32
	// Value is the xtval payload: faulting address, offending
	// instruction bits, or zero depending on the cause.
	Value uint32
}

// NewTrap builds a trap from a cause code and tval payload.
func NewTrap(cause, value uint32) *Trap {
	return &Trap{Cause: cause, Value: value}
}

// IllegalInstruction builds an illegal-instruction trap carrying the
// offending encoding.
func IllegalInstruction(raw uint32) *Trap {
	return &Trap{Cause: CauseIllegalInstruction, Value: raw}
}

// IsInterrupt reports whether the trap is asynchronous.
func (t *Trap) IsInterrupt() bool {
	return t.Cause&causeInterrupt != 0
}

// code returns the cause with the interrupt bit stripped.
func (t *Trap) code() uint32 {
	return t.Cause &^ causeInterrupt
}

// PendingInterrupt returns the highest-priority deliverable interrupt,
// or nil when none can be taken at the current privilege level.
func (cpu *CPU) PendingInterrupt() *Trap {
	pending := cpu.CSR.Mip & cpu.CSR.Mie
	if pending == 0 {
		return nil
	}

	// An interrupt targeting mode X is deliverable when running below X,
	// or at X with the matching mstatus IE bit set.
	mEnabled := cpu.Priv < PrivMachine ||
		(cpu.Priv == PrivMachine && cpu.CSR.Mstatus&MstatusMIE != 0)
	sEnabled := cpu.Priv < PrivSupervisor ||
		(cpu.Priv == PrivSupervisor && cpu.CSR.Mstatus&MstatusSIE != 0)

	// M-mode interrupts first: MEI > MSI > MTI.
	if m := pending &^ cpu.CSR.Mideleg; mEnabled && m != 0 {
		switch {
		case m&MipMEIP != 0:
			return NewTrap(CauseMachineExternal, 0)
		case m&MipMSIP != 0:
			return NewTrap(CauseMachineSoftware, 0)
		case m&MipMTIP != 0:
			return NewTrap(CauseMachineTimer, 0)
		}
	}

	if s := pending & cpu.CSR.Mideleg; sEnabled && s != 0 {
		switch {
		case s&MipSEIP != 0:
			return NewTrap(CauseSupervisorExternal, 0)
		case s&MipSSIP != 0:
			return NewTrap(CauseSupervisorSoftware, 0)
		case s&MipSTIP != 0:
			return NewTrap(CauseSupervisorTimer, 0)
		}
	}

	return nil
}

// TakeTrap performs the privilege transition for a trap: it selects the
// delivery mode via medeleg/mideleg, fills xepc/xcause/xtval, updates the
// mstatus interrupt-enable stack and redirects the PC to xtvec.
func (cpu *CPU) TakeTrap(trap *Trap) {
	bit := trap.code()
	deleg := cpu.CSR.Medeleg
	if trap.IsInterrupt() {
		deleg = cpu.CSR.Mideleg
	}

	toSupervisor := cpu.Priv <= PrivSupervisor && bit < 32 && deleg&(1<<bit) != 0

	if toSupervisor {
		cpu.CSR.Sepc = cpu.PC
		cpu.CSR.Scause = trap.Cause
		cpu.CSR.Stval = trap.Value

		status := cpu.CSR.Mstatus
		if status&MstatusSIE != 0 {
			status |= MstatusSPIE
		} else {
			status &^= MstatusSPIE
		}
		if cpu.Priv == PrivSupervisor {
			status |= MstatusSPP
		} else {
			status &^= MstatusSPP
		}
		status &^= MstatusSIE
		cpu.CSR.Mstatus = status
		cpu.Priv = PrivSupervisor

		cpu.PC = vectorFor(cpu.CSR.Stvec, trap, bit)
	} else {
		cpu.CSR.Mepc = cpu.PC
		cpu.CSR.Mcause = trap.Cause
		cpu.CSR.Mtval = trap.Value

		status := cpu.CSR.Mstatus
		if status&MstatusMIE != 0 {
			status |= MstatusMPIE
		} else {
			status &^= MstatusMPIE
		}
		status = (status &^ MstatusMPP) | (uint32(cpu.Priv) << 11)
		status &^= MstatusMIE
		cpu.CSR.Mstatus = status
		cpu.Priv = PrivMachine

		cpu.PC = vectorFor(cpu.CSR.Mtvec, trap, bit)
	}

	cpu.WFI = false
}

// vectorFor resolves the handler address from an xtvec register:
// direct mode jumps to the base, vectored mode offsets interrupts by
// four bytes per cause.
func vectorFor(tvec uint32, trap *Trap, bit uint32) uint32 {
	if trap.IsInterrupt() && tvec&1 != 0 {
		return (tvec &^ 1) + bit*4
	}
	return tvec &^ 1
}

// MRet returns from an M-mode trap handler.
func (cpu *CPU) MRet() {
	cpu.Priv = PrivilegeFromBits(cpu.CSR.Mstatus >> 11)

	status := cpu.CSR.Mstatus
	if status&MstatusMPIE != 0 {
		status |= MstatusMIE
	} else {
		status &^= MstatusMIE
	}
	status |= MstatusMPIE
	status &^= MstatusMPP
	cpu.CSR.Mstatus = status

	cpu.PC = cpu.CSR.Mepc
}

// SRet returns from an S-mode trap handler.
func (cpu *CPU) SRet() {
	if cpu.CSR.Mstatus&MstatusSPP != 0 {
		cpu.Priv = PrivSupervisor
	} else {
		cpu.Priv = PrivUser
	}

	status := cpu.CSR.Mstatus
	if status&MstatusSPIE != 0 {
		status |= MstatusSIE
	} else {
		status &^= MstatusSIE
	}
	status |= MstatusSPIE
	status &^= MstatusSPP
	cpu.CSR.Mstatus = status

	cpu.PC = cpu.CSR.Sepc
}
