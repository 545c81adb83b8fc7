// Package emu provides functional RV32IMAFD emulation.
package emu

// Bus is the physical address space seen by the CPU.
//
// Implementations route RAM accesses to a flat backing buffer and device
// accesses to memory-mapped peripherals. All quantities are little-endian.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Read64(addr uint32) uint64
	Write8(addr uint32, value uint8)
	Write16(addr uint32, value uint16)
	Write32(addr uint32, value uint32)
	Write64(addr uint32, value uint64)
}
