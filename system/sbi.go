// Package system wires the CPU, physical memory and devices into a
// bootable machine and drives the execution loop.
package system

import "github.com/sarchlab/rv32sim/emu"

// SBI return codes.
const (
	sbiSuccess      uint32 = 0
	sbiNotSupported uint32 = 0xFFFFFFFE // -2
)

// SBI extension ids.
const (
	sbiExtSetTimer  uint32 = 0x00 // legacy
	sbiExtPutchar   uint32 = 0x01 // legacy
	sbiExtGetchar   uint32 = 0x02 // legacy
	sbiExtBase      uint32 = 0x10
	sbiExtTime      uint32 = 0x54494D45 // "TIME"
	sbiExtIPI       uint32 = 0x735049   // "sPI"
	sbiExtRfence    uint32 = 0x52464E43 // "RFNC"
	sbiExtHSM       uint32 = 0x48534D   // "HSM"
	sbiExtReset     uint32 = 0x53525354 // "SRST"
	sbiExtDebugCons uint32 = 0x4442434E // "DBCN"
)

// handleSBI services an environment call from Supervisor mode. The call
// never reaches the trap machinery: the result is synthesized in the
// guest's registers (a0 = error, a1 = value) and the PC advances past
// the ECALL. This is how the console, timer and shutdown services the
// guest expects from M-mode firmware are provided without hosting any.
func (s *System) handleSBI() {
	eid := s.CPU.ReadReg(17) // a7
	fid := s.CPU.ReadReg(16) // a6
	a0 := s.CPU.ReadReg(10)
	a1 := s.CPU.ReadReg(11)
	a2 := s.CPU.ReadReg(12)

	if s.log != nil {
		s.log.Debug("sbi", "eid", eid, "fid", fid, "a0", a0)
	}

	var errCode, value uint32
	switch eid {
	case sbiExtSetTimer:
		s.setTimer(a0, a1)

	case sbiExtPutchar:
		s.uart.Write8(0, uint8(a0))

	case sbiExtGetchar:
		if b, ok := s.uart.ReadByte(); ok {
			errCode = uint32(b)
		} else {
			errCode = 0xFFFFFFFF // -1: no input pending
		}

	case sbiExtBase:
		errCode, value = s.sbiBase(fid, a0)

	case sbiExtTime:
		if fid == 0 {
			s.setTimer(a0, a1)
		} else {
			errCode = sbiNotSupported
		}

	case sbiExtIPI:
		// Single hart: an IPI to ourselves is a supervisor software
		// interrupt.
		if fid == 0 {
			s.CPU.CSR.SetPending(emu.MipSSIP)
		} else {
			errCode = sbiNotSupported
		}

	case sbiExtDebugCons:
		errCode, value = s.sbiDebugConsole(fid, a0, a1, a2)

	case sbiExtReset:
		if fid == 0 {
			s.halted = true
		} else {
			errCode = sbiNotSupported
		}

	case sbiExtRfence, sbiExtHSM:
		// Probed as absent; answer calls anyway so an optimistic
		// guest does not wedge.

	default:
		errCode = sbiNotSupported
	}

	s.CPU.WriteReg(10, errCode)
	s.CPU.WriteReg(11, value)
	s.CPU.PC += 4
}

// setTimer programs the CLINT comparator and retracts any pending
// supervisor timer interrupt.
func (s *System) setTimer(lo, hi uint32) {
	s.clint.SetMTimeCmp(uint64(hi)<<32 | uint64(lo))
	s.CPU.CSR.ClearPending(emu.MipSTIP)
	if !s.clint.TimerInterrupt {
		s.CPU.CSR.ClearPending(emu.MipMTIP)
	}
}

// sbiBase answers the base-extension probe functions.
func (s *System) sbiBase(fid, a0 uint32) (uint32, uint32) {
	switch fid {
	case 0: // get_spec_version
		return sbiSuccess, 0x0000_0002
	case 1: // get_impl_id
		return sbiSuccess, 0
	case 2: // get_impl_version
		return sbiSuccess, 0
	case 3: // probe_extension
		switch a0 {
		case sbiExtSetTimer, sbiExtPutchar, sbiExtGetchar,
			sbiExtBase, sbiExtTime, sbiExtIPI,
			sbiExtReset, sbiExtDebugCons:
			return sbiSuccess, 1
		}
		return sbiSuccess, 0
	case 4, 5, 6: // mvendorid, marchid, mimpid
		return sbiSuccess, 0
	}
	return sbiNotSupported, 0
}

// sbiDebugConsole implements the DBCN extension against the UART.
func (s *System) sbiDebugConsole(fid, numBytes, baseLo, _ uint32) (uint32, uint32) {
	switch fid {
	case 0: // console_write
		for i := uint32(0); i < numBytes; i++ {
			s.uart.Write8(0, s.bus.Read8(baseLo+i))
		}
		return sbiSuccess, numBytes
	case 1: // console_read
		var n uint32
		for n < numBytes {
			b, ok := s.uart.ReadByte()
			if !ok {
				break
			}
			s.bus.Write8(baseLo+n, b)
			n++
		}
		return sbiSuccess, n
	case 2: // console_write_byte
		s.uart.Write8(0, uint8(numBytes))
		return sbiSuccess, 0
	}
	return sbiNotSupported, 0
}
