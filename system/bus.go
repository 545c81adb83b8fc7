// Package system wires the CPU, physical memory and devices into a
// bootable machine and drives the execution loop.
package system

import (
	"github.com/sarchlab/rv32sim/devices"
	"github.com/sarchlab/rv32sim/mem"
)

// Platform device windows.
const (
	ClintBase uint32 = 0x0200_0000
	ClintSize uint32 = 0x0001_0000
	UARTBase  uint32 = 0x0300_0000
	UARTSize  uint32 = 0x0000_1000
	PLICBase  uint32 = 0x0400_0000
	PLICSize  uint32 = 0x0400_0000

	VirtioBase uint32 = 0x2000_0000
	VirtioSize uint32 = 0x0000_1000
)

// UARTIRQ is the UART's source id on the PLIC.
const UARTIRQ uint32 = 10

// VirtioIRQ is the VirtIO transport's source id on the PLIC.
const VirtioIRQ uint32 = 1

// bus routes physical accesses: RAM takes a direct path into the
// backing buffer, everything below the RAM window falls through a flat
// range check to the devices.
type bus struct {
	memory *mem.Memory
	uart   *devices.UART
	clint  *devices.CLINT
	plic   *devices.PLIC
	virtio *devices.VirtioMMIO
}

func (b *bus) Read8(addr uint32) uint8 {
	if off, ok := b.memory.RAMOffset(addr, 1); ok {
		return b.memory.RAM()[off]
	}
	switch {
	case addr >= ClintBase && addr < ClintBase+ClintSize:
		return b.clint.Read8(addr - ClintBase)
	case addr >= UARTBase && addr < UARTBase+UARTSize:
		return b.uart.Read8(addr - UARTBase)
	case addr >= PLICBase && addr < PLICBase+PLICSize:
		return b.plic.Read8(addr - PLICBase)
	case addr >= VirtioBase && addr < VirtioBase+VirtioSize:
		return b.virtio.Read8(addr - VirtioBase)
	}
	return b.memory.Read8(addr)
}

func (b *bus) Write8(addr uint32, value uint8) {
	if off, ok := b.memory.RAMOffset(addr, 1); ok {
		b.memory.RAM()[off] = value
		return
	}
	switch {
	case addr >= ClintBase && addr < ClintBase+ClintSize:
		b.clint.Write8(addr-ClintBase, value)
	case addr >= UARTBase && addr < UARTBase+UARTSize:
		b.uart.Write8(addr-UARTBase, value)
	case addr >= PLICBase && addr < PLICBase+PLICSize:
		b.plic.Write8(addr-PLICBase, value)
	case addr >= VirtioBase && addr < VirtioBase+VirtioSize:
		b.virtio.Write8(addr-VirtioBase, value)
	}
}

func (b *bus) Read16(addr uint32) uint16 {
	if _, ok := b.memory.RAMOffset(addr, 2); ok {
		return b.memory.Read16(addr)
	}
	lo := uint16(b.Read8(addr))
	hi := uint16(b.Read8(addr + 1))
	return hi<<8 | lo
}

func (b *bus) Write16(addr uint32, value uint16) {
	if _, ok := b.memory.RAMOffset(addr, 2); ok {
		b.memory.Write16(addr, value)
		return
	}
	b.Write8(addr, uint8(value))
	b.Write8(addr+1, uint8(value>>8))
}

func (b *bus) Read32(addr uint32) uint32 {
	if _, ok := b.memory.RAMOffset(addr, 4); ok {
		return b.memory.Read32(addr)
	}
	switch {
	case addr >= ClintBase && addr < ClintBase+ClintSize:
		return b.clint.Read32(addr - ClintBase)
	case addr >= UARTBase && addr < UARTBase+UARTSize:
		return b.uart.Read32(addr - UARTBase)
	case addr >= PLICBase && addr < PLICBase+PLICSize:
		return b.plic.Read32(addr - PLICBase)
	case addr >= VirtioBase && addr < VirtioBase+VirtioSize:
		return b.virtio.Read32(addr - VirtioBase)
	}
	return b.memory.Read32(addr)
}

func (b *bus) Write32(addr uint32, value uint32) {
	if _, ok := b.memory.RAMOffset(addr, 4); ok {
		b.memory.Write32(addr, value)
		return
	}
	switch {
	case addr >= ClintBase && addr < ClintBase+ClintSize:
		b.clint.Write32(addr-ClintBase, value)
	case addr >= UARTBase && addr < UARTBase+UARTSize:
		b.uart.Write32(addr-UARTBase, value)
	case addr >= PLICBase && addr < PLICBase+PLICSize:
		b.plic.Write32(addr-PLICBase, value)
	case addr >= VirtioBase && addr < VirtioBase+VirtioSize:
		b.virtio.Write32(addr-VirtioBase, value)
	}
}

func (b *bus) Read64(addr uint32) uint64 {
	if _, ok := b.memory.RAMOffset(addr, 8); ok {
		return b.memory.Read64(addr)
	}
	lo := uint64(b.Read32(addr))
	hi := uint64(b.Read32(addr + 4))
	return hi<<32 | lo
}

func (b *bus) Write64(addr uint32, value uint64) {
	if _, ok := b.memory.RAMOffset(addr, 8); ok {
		b.memory.Write64(addr, value)
		return
	}
	b.Write32(addr, uint32(value))
	b.Write32(addr+4, uint32(value>>32))
}
