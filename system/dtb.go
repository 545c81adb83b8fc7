// Package system wires the CPU, physical memory and devices into a
// bootable machine and drives the execution loop.
package system

import (
	"github.com/sarchlab/rv32sim/fdt"
	"github.com/sarchlab/rv32sim/mem"
)

// Phandles referenced across the tree.
const (
	phandleCPUIntc = 1
	phandlePLIC    = 2
)

// timebaseFrequency is the CLINT tick rate advertised to the guest.
const timebaseFrequency = 10_000_000 // 10 MHz

// GenerateDTB builds the flattened device tree describing this
// platform: the CPU with its ISA string and timebase, the memory node,
// the CLINT/PLIC/UART/VirtIO windows, and the chosen node carrying the
// kernel command line and the initrd range when one is loaded.
func (s *System) GenerateDTB(cmdline string, initrdStart, initrdEnd uint32) []byte {
	b := fdt.NewBuilder()

	b.BeginNode("")
	b.AddPropertyU32("#address-cells", 2)
	b.AddPropertyU32("#size-cells", 2)
	b.AddPropertyString("compatible", "rv32sim")
	b.AddPropertyString("model", "rv32sim")

	b.BeginNode("chosen")
	b.AddPropertyString("bootargs", cmdline)
	b.AddPropertyString("stdout-path", "/soc/uart@3000000")
	if initrdEnd > initrdStart {
		b.AddPropertyU32("linux,initrd-start", initrdStart)
		b.AddPropertyU32("linux,initrd-end", initrdEnd)
	}
	b.EndNode()

	b.BeginNode("cpus")
	b.AddPropertyU32("#address-cells", 1)
	b.AddPropertyU32("#size-cells", 0)
	b.AddPropertyU32("timebase-frequency", timebaseFrequency)

	b.BeginNode("cpu@0")
	b.AddPropertyString("device_type", "cpu")
	b.AddPropertyU32("reg", 0)
	b.AddPropertyString("status", "okay")
	b.AddPropertyString("compatible", "riscv")
	b.AddPropertyString("riscv,isa", "rv32imafd")
	b.AddPropertyString("mmu-type", "riscv,sv32")

	b.BeginNode("interrupt-controller")
	b.AddPropertyU32("#interrupt-cells", 1)
	b.AddPropertyEmpty("interrupt-controller")
	b.AddPropertyString("compatible", "riscv,cpu-intc")
	b.AddPropertyU32("phandle", phandleCPUIntc)
	b.EndNode()

	b.EndNode() // cpu@0
	b.EndNode() // cpus

	b.BeginNode("memory@80000000")
	b.AddPropertyString("device_type", "memory")
	b.AddPropertyU32Array("reg", []uint32{0, mem.DRAMBase, 0, s.memory.RAMSize()})
	b.EndNode()

	b.BeginNode("soc")
	b.AddPropertyU32("#address-cells", 2)
	b.AddPropertyU32("#size-cells", 2)
	b.AddPropertyString("compatible", "simple-bus")
	b.AddPropertyEmpty("ranges")

	b.BeginNode("clint@2000000")
	b.AddPropertyString("compatible", "riscv,clint0")
	// M-mode software (3), M-mode timer (7), S-mode software (1),
	// S-mode timer (5), all routed through the CPU interrupt controller.
	b.AddPropertyU32Array("interrupts-extended",
		[]uint32{phandleCPUIntc, 3, phandleCPUIntc, 7, phandleCPUIntc, 1, phandleCPUIntc, 5})
	b.AddPropertyU32Array("reg", []uint32{0, ClintBase, 0, ClintSize})
	b.EndNode()

	b.BeginNode("plic@4000000")
	b.AddPropertyString("compatible", "riscv,plic0")
	// M-mode external (11) and S-mode external (9).
	b.AddPropertyU32Array("interrupts-extended",
		[]uint32{phandleCPUIntc, 11, phandleCPUIntc, 9})
	b.AddPropertyU32Array("reg", []uint32{0, PLICBase, 0, PLICSize})
	b.AddPropertyU32("riscv,ndev", 32)
	b.AddPropertyU32("#interrupt-cells", 1)
	b.AddPropertyEmpty("interrupt-controller")
	b.AddPropertyU32("phandle", phandlePLIC)
	b.EndNode()

	b.BeginNode("uart@3000000")
	b.AddPropertyString("compatible", "ns16550a")
	b.AddPropertyU32Array("reg", []uint32{0, UARTBase, 0, UARTSize})
	b.AddPropertyU32("interrupts", UARTIRQ)
	b.AddPropertyU32("interrupt-parent", phandlePLIC)
	b.AddPropertyU32("clock-frequency", 3686400)
	b.EndNode()

	b.BeginNode("virtio@20000000")
	b.AddPropertyString("compatible", "virtio,mmio")
	b.AddPropertyU32Array("reg", []uint32{0, VirtioBase, 0, VirtioSize})
	b.AddPropertyU32("interrupts", VirtioIRQ)
	b.AddPropertyU32("interrupt-parent", phandlePLIC)
	b.EndNode()

	b.EndNode() // soc
	b.EndNode() // root

	return b.Build()
}
