package devices_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/devices"
)

var _ = Describe("CLINT", func() {
	var clint *devices.CLINT

	BeforeEach(func() {
		clint = devices.NewCLINT()
	})

	Describe("timer", func() {
		It("should track mtime >= mtimecmp", func() {
			clint.Write32(0x4000, 100) // mtimecmp low
			clint.Write32(0x4004, 0)   // mtimecmp high

			clint.Tick(99)
			Expect(clint.TimerInterrupt).To(BeFalse())

			clint.Tick(1)
			Expect(clint.TimerInterrupt).To(BeTrue())
		})

		It("should clear the line when the comparator moves forward", func() {
			clint.Write32(0x4000, 10) // mtimecmp low
			clint.Write32(0x4004, 0)  // mtimecmp high
			clint.Tick(20)
			Expect(clint.TimerInterrupt).To(BeTrue())

			clint.SetMTimeCmp(1000)
			Expect(clint.TimerInterrupt).To(BeFalse())
		})

		It("should report ticks until the next match", func() {
			clint.Write32(0x4000, 100) // mtimecmp low
			clint.Write32(0x4004, 0)   // mtimecmp high
			clint.Tick(40)

			Expect(clint.TicksUntilInterrupt()).To(Equal(uint64(60)))

			clint.Tick(60)
			Expect(clint.TicksUntilInterrupt()).To(Equal(uint64(0)))
		})
	})

	Describe("registers", func() {
		It("should expose mtime as two halves at 0xBFF8", func() {
			clint.SetMTime(0x1_0000_0002)

			Expect(clint.Read32(0xBFF8)).To(Equal(uint32(2)))
			Expect(clint.Read32(0xBFFC)).To(Equal(uint32(1)))
		})

		It("should assemble 64-bit mtimecmp from two word writes", func() {
			clint.Write32(0x4000, 0xDDCCBBAA)
			clint.Write32(0x4004, 0x00000011)

			Expect(clint.MTimeCmp()).To(Equal(uint64(0x11DDCCBBAA)))
		})

		It("should support byte access to word registers", func() {
			clint.Write32(0x0000, 0)
			clint.Write8(0x0000, 1)

			Expect(clint.Read32(0x0000)).To(Equal(uint32(1)))
			Expect(clint.Read8(0x0000)).To(Equal(uint8(1)))
		})
	})

	Describe("software interrupt", func() {
		It("should track the msip bit", func() {
			clint.Write32(0x0000, 1)
			Expect(clint.SoftwareInterrupt).To(BeTrue())

			clint.Write32(0x0000, 0)
			Expect(clint.SoftwareInterrupt).To(BeFalse())
		})

		It("should ignore bits beyond msip[0]", func() {
			clint.Write32(0x0000, 0xFFFF_FFFE)
			Expect(clint.SoftwareInterrupt).To(BeFalse())
		})
	})
})
