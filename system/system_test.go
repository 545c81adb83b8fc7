package system_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
	"github.com/sarchlab/rv32sim/mem"
	"github.com/sarchlab/rv32sim/system"
)

// words packs encodings into a little-endian byte image.
func words(ws ...uint32) []byte {
	out := make([]byte, len(ws)*4)
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

var _ = Describe("System", func() {
	newSystem := func() *system.System {
		sys, err := system.New(system.Config{RAMSizeMB: 16})
		Expect(err).NotTo(HaveOccurred())
		return sys
	}

	Describe("New", func() {
		It("should reject invalid RAM sizes", func() {
			_, err := system.New(system.Config{RAMSizeMB: 0})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadLinux", func() {
		It("should boot through the ROM into the kernel at supervisor level", func() {
			sys := newSystem()
			// Kernel: wfi.
			Expect(sys.LoadLinux(words(0x10500073), nil, "console=ttyS0")).To(Succeed())

			Expect(sys.CPU.PC).To(Equal(emu.ResetPC))
			Expect(sys.CPU.ReadReg(10)).To(Equal(uint32(0))) // a0 = hartid

			dtbAddr := sys.CPU.ReadReg(11)
			Expect(dtbAddr).To(BeNumerically(">", mem.DRAMBase))
			Expect(dtbAddr & 0xFFF).To(Equal(uint32(0)))

			// FDT magic, stored big-endian.
			magic := sys.ReadMemory(dtbAddr, 4)
			Expect(magic).To(Equal([]byte{0xd0, 0x0d, 0xfe, 0xed}))

			sys.Run(256)

			Expect(sys.CPU.Priv).To(Equal(emu.PrivSupervisor))
			Expect(sys.CPU.CSR.Medeleg).To(Equal(uint32(0xB1FF)))
			Expect(sys.CPU.CSR.Mideleg).To(Equal(uint32(0x222)))
			Expect(sys.CPU.CSR.Mcounteren).To(Equal(uint32(7)))
			Expect(sys.CPU.WFI).To(BeTrue()) // reached the kernel's wfi
		})

		It("should place the initrd high with the boot range in the DTB", func() {
			sys := newSystem()
			initrd := make([]byte, 8192)
			initrd[0] = 0xA5

			Expect(sys.LoadLinux(words(0x10500073), initrd, "root=/dev/ram0")).To(Succeed())

			dtb := sys.ReadMemory(sys.CPU.ReadReg(11), 4096)
			Expect(string(dtb)).To(ContainSubstring("linux,initrd-start"))
			Expect(string(dtb)).To(ContainSubstring("root=/dev/ram0"))
		})

		It("should reject an initrd that cannot fit", func() {
			sys := newSystem()
			kernel := make([]byte, 8*1024*1024)
			initrd := make([]byte, 9*1024*1024)

			Expect(sys.LoadLinux(kernel, initrd, "")).NotTo(Succeed())
		})
	})

	Describe("SBI console", func() {
		It("should service console_putchar from supervisor mode", func() {
			sys := newSystem()
			// li a7, 1; li a0, 'H'; ecall; wfi
			kernel := words(
				0x00100893,
				0x04800513,
				0x00000073,
				0x10500073,
			)
			Expect(sys.LoadLinux(kernel, nil, "")).To(Succeed())

			sys.Run(512)

			Expect(sys.ConsoleOutput()).To(Equal([]byte{0x48}))
			Expect(sys.CPU.ReadReg(10)).To(Equal(uint32(0)))   // a0 = SBI_SUCCESS
			Expect(sys.CPU.PC).To(Equal(mem.DRAMBase + 16))    // past the wfi
			Expect(sys.CPU.CSR.Scause).NotTo(Equal(uint32(9))) // no ECALL trap taken
		})

		It("should return pending input through console_getchar", func() {
			sys := newSystem()
			// li a7, 2; ecall; wfi
			kernel := words(
				0x00200893,
				0x00000073,
				0x10500073,
			)
			Expect(sys.LoadLinux(kernel, nil, "")).To(Succeed())
			sys.ConsoleInput([]byte("q"))

			sys.Run(512)

			Expect(sys.CPU.ReadReg(10)).To(Equal(uint32('q')))
		})

		It("should halt the machine on a system reset call", func() {
			sys := newSystem()
			// li a7, "SRST"; li a6, 0; ecall; wfi
			kernel := words(
				0x535258B7, // lui a7, 0x53525
				0x35488893, // addi a7, a7, 0x354
				0x00000813, // li a6, 0
				0x00000073, // ecall
				0x10500073, // wfi
			)
			Expect(sys.LoadLinux(kernel, nil, "")).To(Succeed())

			sys.Run(1024)

			Expect(sys.Halted()).To(BeTrue())
		})
	})

	Describe("raw mode", func() {
		It("should run an image at the RAM base in machine mode", func() {
			sys := newSystem()
			// addi x1, x0, 5; add x2, x1, x1; wfi
			Expect(sys.LoadRaw(words(0x00500093, 0x00108133, 0x10500073))).To(Succeed())

			sys.Run(64)

			Expect(sys.CPU.ReadReg(1)).To(Equal(uint32(5)))
			Expect(sys.CPU.ReadReg(2)).To(Equal(uint32(10)))
			Expect(sys.CPU.Priv).To(Equal(emu.PrivMachine))
		})
	})

	Describe("Run", func() {
		It("should idle-skip while waiting for interrupts", func() {
			sys := newSystem()
			Expect(sys.LoadRaw(words(0x10500073))).To(Succeed()) // wfi

			ran := sys.Run(1_000_000)

			// The budget is consumed by time advance, not instruction
			// execution.
			Expect(ran).To(Equal(uint32(1_000_000)))
			Expect(sys.InstCount()).To(BeNumerically("<", 16))
		})

		It("should honor the cycle budget", func() {
			sys := newSystem()
			Expect(sys.LoadRaw(words(0x0000006F))).To(Succeed()) // j .

			ran := sys.Run(10_000)

			Expect(ran).To(BeNumerically("~", 10_000, 64))
		})
	})

	Describe("GenerateDTB", func() {
		It("should describe the platform devices", func() {
			sys := newSystem()
			dtb := string(sys.GenerateDTB("console=ttyS0", 0, 0))

			Expect(dtb).To(ContainSubstring("riscv,isa"))
			Expect(dtb).To(ContainSubstring("rv32imafd"))
			Expect(dtb).To(ContainSubstring("riscv,sv32"))
			Expect(dtb).To(ContainSubstring("clint@2000000"))
			Expect(dtb).To(ContainSubstring("plic@4000000"))
			Expect(dtb).To(ContainSubstring("uart@3000000"))
			Expect(dtb).To(ContainSubstring("ns16550a"))
			Expect(dtb).To(ContainSubstring("virtio@20000000"))
			Expect(dtb).To(ContainSubstring("timebase-frequency"))
			Expect(dtb).To(ContainSubstring("console=ttyS0"))
		})

		It("should omit initrd properties when no initrd is loaded", func() {
			sys := newSystem()
			dtb := string(sys.GenerateDTB("", 0, 0))

			Expect(dtb).NotTo(ContainSubstring("linux,initrd-start"))
		})
	})
})
