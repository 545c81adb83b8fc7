// Package system wires the CPU, physical memory and devices into a
// bootable machine and drives the execution loop.
package system

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/rv32sim/devices"
	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/mem"
)

// timerBatch is how many cycles pass between CLINT ticks and interrupt
// reconciliation. Timer interrupts are observable with up to this much
// latency, which is within guest timekeeping tolerance.
const timerBatch = 64

// Config describes the machine to build.
type Config struct {
	// RAMSizeMB is the RAM size in MiB.
	RAMSizeMB uint32
	// ShareTag is the mount tag the VirtIO-9P transport advertises. The
	// transport is always attached; an empty tag advertises "rootfs".
	ShareTag string
	// JITV2 selects the advanced block-cache path.
	JITV2 bool
	// Logger receives trap and SBI trace output; nil disables tracing.
	Logger *slog.Logger
}

// System owns the processor, bus, devices and block cache, and
// time-slices between execution, interrupt delivery and host I/O.
type System struct {
	// CPU is the emulated hart.
	CPU *emu.CPU

	memory *mem.Memory
	uart   *devices.UART
	clint  *devices.CLINT
	plic   *devices.PLIC
	virtio *devices.VirtioMMIO

	bus    *bus
	blocks *emu.BlockCache

	jitV2  bool
	halted bool

	log *slog.Logger
}

// New builds a machine with the configured RAM size and device set.
func New(cfg Config) (*System, error) {
	memory, err := mem.New(cfg.RAMSizeMB)
	if err != nil {
		return nil, fmt.Errorf("failed to build machine: %w", err)
	}

	tag := cfg.ShareTag
	if tag == "" {
		tag = "rootfs"
	}

	s := &System{
		CPU:    emu.NewCPU(),
		memory: memory,
		uart:   devices.NewUART(UARTIRQ),
		clint:  devices.NewCLINT(),
		plic:   devices.NewPLIC(),
		virtio: devices.New9PTransport(tag),
		blocks: emu.NewBlockCache(),
		jitV2:  cfg.JITV2,
		log:    cfg.Logger,
	}
	s.bus = &bus{
		memory: s.memory,
		uart:   s.uart,
		clint:  s.clint,
		plic:   s.plic,
		virtio: s.virtio,
	}
	return s, nil
}

// EnableJITV2 switches the advanced block-cache path on or off.
//
// Cross-block control-flow structuring is not implemented; the selector
// exists so embedders can flip it without an API change, and currently
// routes to the same single-block cache.
func (s *System) EnableJITV2(enable bool) {
	s.jitV2 = enable
}

// LoadBinary places a raw blob at the given physical address.
func (s *System) LoadBinary(data []byte, addr uint32) error {
	return s.memory.LoadBinary(data, addr)
}

// LoadRaw places an image at the RAM base and points the PC at it,
// bypassing the Linux boot protocol. The hart stays in M-mode.
func (s *System) LoadRaw(image []byte) error {
	if err := s.memory.LoadBinary(image, mem.DRAMBase); err != nil {
		return err
	}
	s.CPU.PC = mem.DRAMBase
	return nil
}

// LoadLinux prepares a Linux boot: the kernel goes to the RAM base, the
// initrd to a high page-aligned address with a 64-KiB tail reserved for
// the DTB, and the generated DTB to the end of RAM. The CPU resets into
// the boot ROM with a0 = hartid and a1 = the DTB address.
func (s *System) LoadLinux(kernel, initrd []byte, cmdline string) error {
	if err := s.memory.LoadBinary(kernel, mem.DRAMBase); err != nil {
		return fmt.Errorf("failed to load kernel: %w", err)
	}

	ramEnd := mem.DRAMBase + s.memory.RAMSize()

	var initrdStart, initrdEnd uint32
	if len(initrd) > 0 {
		const dtbReserve = 64 * 1024
		initrdEnd = (ramEnd - dtbReserve) &^ 0xFFF
		initrdStart = (initrdEnd - uint32(len(initrd))) &^ 0xFFF
		initrdEnd = initrdStart + uint32(len(initrd))

		kernelEnd := mem.DRAMBase + uint32(len(kernel))
		if initrdStart < kernelEnd+0x100000 {
			return fmt.Errorf("not enough RAM for kernel (%d bytes) and initrd (%d bytes)",
				len(kernel), len(initrd))
		}
		if err := s.memory.LoadBinary(initrd, initrdStart); err != nil {
			return fmt.Errorf("failed to load initrd: %w", err)
		}
	}

	dtb := s.GenerateDTB(cmdline, initrdStart, initrdEnd)
	dtbAddr := (ramEnd - uint32(len(dtb))) &^ 0xFFF
	if err := s.memory.LoadBinary(dtb, dtbAddr); err != nil {
		return fmt.Errorf("failed to load device tree: %w", err)
	}

	s.CPU.Reset()
	s.CPU.WriteReg(10, 0)       // a0 = hartid
	s.CPU.WriteReg(11, dtbAddr) // a1 = DTB address
	return nil
}

// Run executes up to maxCycles cycles and returns the number actually
// executed. It returns early when the guest halts.
func (s *System) Run(maxCycles uint32) uint32 {
	var cycles uint32

	for cycles < maxCycles && !s.halted {
		if cycles&(timerBatch-1) == 0 {
			s.clint.Tick(timerBatch)
			s.CPU.CSR.Time = s.clint.MTime()

			s.reconcileInterrupts()
			if trap := s.CPU.PendingInterrupt(); trap != nil {
				s.traceTrap(trap)
				s.CPU.TakeTrap(trap)
			}
		}

		if s.CPU.InvalidatePending {
			s.blocks.InvalidateAll()
			s.CPU.InvalidatePending = false
		}

		if s.CPU.WFI {
			if s.CPU.CSR.Mip&s.CPU.CSR.Mie != 0 {
				s.CPU.WFI = false
			} else {
				cycles += s.idleSkip(maxCycles - cycles)
				continue
			}
		}

		paddr, trap := s.CPU.MMU.Translate(s.CPU.PC, emu.AccessFetch,
			s.CPU.Priv, s.bus, s.CPU.CSR.Satp, s.CPU.CSR.Mstatus)
		if trap != nil {
			s.traceTrap(trap)
			s.CPU.TakeTrap(trap)
			cycles++
			continue
		}

		result := s.stepBlock(paddr)
		executed := result.Executed
		if result.Trap != nil {
			executed++
			if result.Trap.Cause == emu.CauseEcallFromS {
				s.handleSBI()
			} else {
				s.traceTrap(result.Trap)
				s.CPU.TakeTrap(result.Trap)
			}
		}

		cycles += executed
		s.CPU.CSR.Cycle += uint64(executed)
	}

	return cycles
}

// stepBlock runs one compiled block at the given physical address.
func (s *System) stepBlock(paddr uint32) emu.BlockResult {
	if s.jitV2 {
		return s.stepBlockV2(paddr)
	}
	return s.stepBlockV1(paddr)
}

// stepBlockV1 executes through the single-block cache.
func (s *System) stepBlockV1(paddr uint32) emu.BlockResult {
	block := s.blocks.Lookup(paddr)
	if block == nil {
		block = s.blocks.Compile(paddr, s.bus)
	}
	return emu.ExecuteBlock(s.CPU, block, s.bus)
}

// stepBlockV2 is the advanced block-cache path. Cross-block structuring
// caused hangs during Linux boot that were never isolated, so this
// currently executes through the proven single-block path.
func (s *System) stepBlockV2(paddr uint32) emu.BlockResult {
	return s.stepBlockV1(paddr)
}

// idleSkip advances time to the next CLINT comparator match instead of
// spinning on WFI one cycle at a time. The skip is capped by the
// caller's remaining cycle budget.
func (s *System) idleSkip(budget uint32) uint32 {
	ticks := s.clint.TicksUntilInterrupt()
	if ticks > 1 {
		skip := uint32(min(ticks, uint64(budget)))
		if skip > 1 {
			s.clint.Tick(uint64(skip))
			s.CPU.CSR.Time = s.clint.MTime()
			return skip
		}
	}
	return 1
}

// reconcileInterrupts refreshes mip from the device state: the CLINT
// comparator drives MTIP/STIP, msip drives MSIP, and the PLIC aggregate
// lines drive MEIP/SEIP. Level-triggered device flags feed the PLIC
// pending bits first.
func (s *System) reconcileInterrupts() {
	if s.clint.TimerInterrupt {
		s.CPU.CSR.SetPending(emu.MipMTIP | emu.MipSTIP)
	} else {
		s.CPU.CSR.ClearPending(emu.MipMTIP | emu.MipSTIP)
	}

	if s.clint.SoftwareInterrupt {
		s.CPU.CSR.SetPending(emu.MipMSIP)
	} else {
		s.CPU.CSR.ClearPending(emu.MipMSIP)
	}

	if s.uart.HasInterrupt() {
		s.plic.Raise(UARTIRQ)
	} else {
		s.plic.Lower(UARTIRQ)
	}
	if s.virtio.HasInterrupt() {
		s.plic.Raise(VirtioIRQ)
	} else {
		s.plic.Lower(VirtioIRQ)
	}

	if s.plic.MExternal {
		s.CPU.CSR.SetPending(emu.MipMEIP)
	} else {
		s.CPU.CSR.ClearPending(emu.MipMEIP)
	}
	if s.plic.SExternal {
		s.CPU.CSR.SetPending(emu.MipSEIP)
	} else {
		s.CPU.CSR.ClearPending(emu.MipSEIP)
	}
}

func (s *System) traceTrap(trap *emu.Trap) {
	if s.log != nil {
		s.log.Debug("trap",
			"cause", fmt.Sprintf("%#x", trap.Cause),
			"tval", fmt.Sprintf("%#x", trap.Value),
			"pc", fmt.Sprintf("%#010x", s.CPU.PC))
	}
}

// Halted reports whether the guest requested a system reset.
func (s *System) Halted() bool {
	return s.halted
}

// ConsoleInput deposits host bytes into the UART receive FIFO.
func (s *System) ConsoleInput(data []byte) {
	for _, b := range data {
		s.uart.ReceiveByte(b)
	}
}

// ConsoleOutput returns and drains accumulated UART transmit bytes.
func (s *System) ConsoleOutput() []byte {
	return s.uart.Output()
}

// InstCount returns the number of retired instructions.
func (s *System) InstCount() uint64 {
	return s.CPU.InstCount
}

// ReadMemory copies physical memory for debugging; device windows read
// as zero and the copy has no side effects.
func (s *System) ReadMemory(addr, size uint32) []byte {
	data := make([]byte, 0, size)
	for i := uint32(0); i < size; i++ {
		data = append(data, s.memory.Read8(addr+i))
	}
	return data
}

// Reset restores the machine to its power-on state.
func (s *System) Reset() {
	s.CPU.Reset()
	s.memory.Reset()
	s.uart.Reset()
	s.clint.Reset()
	s.plic.Reset()
	s.virtio.Reset()
	s.blocks.Reset()
	s.halted = false
}
