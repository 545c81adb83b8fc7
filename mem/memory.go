// Package mem provides the physical memory of the emulated machine: a
// flat RAM region at DRAMBase plus a small boot ROM, with direct
// little-endian access paths for the bus fast path.
package mem

import (
	"encoding/binary"
	"fmt"
)

// Physical memory layout constants.
const (
	// DRAMBase is where RAM begins; kernels are loaded here.
	DRAMBase uint32 = 0x8000_0000
	// ROMBase is where the boot ROM lives; the CPU resets into it.
	ROMBase uint32 = 0x0000_1000
	// ROMSize is the boot ROM window size.
	ROMSize uint32 = 0x0000_2000
)

// Memory is the flat byte-addressable physical memory.
type Memory struct {
	ram []byte
	rom []byte
}

// New allocates memory with the given RAM size and installs the boot ROM.
func New(ramSizeMB uint32) (*Memory, error) {
	if ramSizeMB == 0 || ramSizeMB > 2048 {
		return nil, fmt.Errorf("invalid RAM size: %dMB", ramSizeMB)
	}
	m := &Memory{
		ram: make([]byte, int(ramSizeMB)*1024*1024),
		rom: make([]byte, ROMSize),
	}
	m.initBootROM()
	return m, nil
}

// RAMSize returns the RAM size in bytes.
func (m *Memory) RAMSize() uint32 {
	return uint32(len(m.ram))
}

// RAM exposes the backing buffer for DMA-style access (DTB placement,
// kernel loading, virtqueue processing).
func (m *Memory) RAM() []byte {
	return m.ram
}

// RAMOffset converts a physical address to a RAM offset, reporting
// whether the full n-byte access fits inside RAM.
func (m *Memory) RAMOffset(addr, n uint32) (uint32, bool) {
	if addr < DRAMBase {
		return 0, false
	}
	off := addr - DRAMBase
	if uint64(off)+uint64(n) > uint64(len(m.ram)) {
		return 0, false
	}
	return off, true
}

// LoadBinary copies a blob into RAM at the given physical address.
func (m *Memory) LoadBinary(data []byte, addr uint32) error {
	if addr < DRAMBase {
		return fmt.Errorf("load address %#08x below RAM base", addr)
	}
	off := int(addr - DRAMBase)
	if off+len(data) > len(m.ram) {
		return fmt.Errorf("image of %d bytes does not fit at %#08x", len(data), addr)
	}
	copy(m.ram[off:], data)
	return nil
}

// Read8 reads one byte of physical memory. Unmapped addresses read zero.
func (m *Memory) Read8(addr uint32) uint8 {
	if off, ok := m.RAMOffset(addr, 1); ok {
		return m.ram[off]
	}
	if addr >= ROMBase && addr < ROMBase+ROMSize {
		return m.rom[addr-ROMBase]
	}
	return 0
}

// Write8 writes one byte; writes outside RAM are discarded.
func (m *Memory) Write8(addr uint32, value uint8) {
	if off, ok := m.RAMOffset(addr, 1); ok {
		m.ram[off] = value
	}
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint32) uint16 {
	if off, ok := m.RAMOffset(addr, 2); ok {
		return binary.LittleEndian.Uint16(m.ram[off:])
	}
	lo := uint16(m.Read8(addr))
	hi := uint16(m.Read8(addr + 1))
	return hi<<8 | lo
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	if off, ok := m.RAMOffset(addr, 2); ok {
		binary.LittleEndian.PutUint16(m.ram[off:], value)
		return
	}
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint32) uint32 {
	if off, ok := m.RAMOffset(addr, 4); ok {
		return binary.LittleEndian.Uint32(m.ram[off:])
	}
	if addr >= ROMBase && addr+4 <= ROMBase+ROMSize {
		return binary.LittleEndian.Uint32(m.rom[addr-ROMBase:])
	}
	lo := uint32(m.Read16(addr))
	hi := uint32(m.Read16(addr + 2))
	return hi<<16 | lo
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, value uint32) {
	if off, ok := m.RAMOffset(addr, 4); ok {
		binary.LittleEndian.PutUint32(m.ram[off:], value)
		return
	}
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint32) uint64 {
	if off, ok := m.RAMOffset(addr, 8); ok {
		return binary.LittleEndian.Uint64(m.ram[off:])
	}
	lo := uint64(m.Read32(addr))
	hi := uint64(m.Read32(addr + 4))
	return hi<<32 | lo
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint32, value uint64) {
	if off, ok := m.RAMOffset(addr, 8); ok {
		binary.LittleEndian.PutUint64(m.ram[off:], value)
		return
	}
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// Reset zeroes RAM and reinstalls the boot ROM.
func (m *Memory) Reset() {
	clear(m.ram)
	clear(m.rom)
	m.initBootROM()
}

// initBootROM installs the minimal M-mode firmware sequence at ROMBase.
//
// The sequence delegates exceptions 0-8, 12, 13 and 15 plus the supervisor
// interrupt lines to S-mode, arranges mstatus with MPP=Supervisor and
// MPIE=1, points mepc at the kernel entry (DRAMBase), parks mtvec on a
// landing pad inside the ROM, grants S-mode the cycle/time/instret
// counters, and MRETs into the kernel.
func (m *Memory) initBootROM() {
	boot := []uint32{
		// medeleg = 0xB1FF: exceptions 0-8, 12, 13, 15 (U-mode ECALL is
		// delegated, S-mode ECALL is not; it is the SBI entry).
		0x0000b2b7, // lui   t0, 0xB
		0x1ff28293, // addi  t0, t0, 0x1FF
		0x30229073, // csrw  medeleg, t0

		// mideleg = 0x222: SSIP, STIP, SEIP.
		0x00000293, // li    t0, 0
		0x22228293, // addi  t0, t0, 0x222
		0x30329073, // csrw  mideleg, t0

		// mstatus = 0x880: MPP=01 (Supervisor), MPIE=1.
		0x00000297, // auipc t0, 0
		0x00001337, // lui   t1, 1
		0x88030313, // addi  t1, t1, -0x780
		0x30031073, // csrw  mstatus, t1

		// mepc = kernel entry at DRAM base.
		0x800002b7, // lui   t0, 0x80000
		0x34129073, // csrw  mepc, t0

		// mtvec = trap landing pad at ROM+0x80.
		0x000012b7, // lui   t0, 0x1
		0x08028293, // addi  t0, t0, 0x80
		0x30529073, // csrw  mtvec, t0

		// mcounteren = 7: cycle, time, instret visible to S-mode.
		0x00700293, // li    t0, 7
		0x30629073, // csrw  mcounteren, t0

		// Drop to S-mode and enter the kernel.
		0x30200073, // mret
	}
	for i, inst := range boot {
		binary.LittleEndian.PutUint32(m.rom[i*4:], inst)
	}

	// Trap landing pad at ROM+0x80. S-mode ECALLs are intercepted by the
	// system driver before they reach M-mode, so this should never run;
	// spin if it somehow does.
	binary.LittleEndian.PutUint32(m.rom[0x80:], 0x0000006f) // j .
}
