package devices_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/devices"
)

// PLIC register offsets used by the tests (context 1 = S-mode).
const (
	plicPriority10    = 10 * 4
	plicEnableCtx1    = 0x002000 + 0x80
	plicThresholdCtx1 = 0x200000 + 0x1000
	plicClaimCtx1     = 0x200000 + 0x1000 + 4
)

var _ = Describe("PLIC", func() {
	var plic *devices.PLIC

	// arm enables source 10 for context 1 at priority 1, threshold 0.
	arm := func() {
		plic.Write32(plicPriority10, 1)
		plic.Write32(plicEnableCtx1, 1<<10)
		plic.Write32(plicThresholdCtx1, 0)
	}

	BeforeEach(func() {
		plic = devices.NewPLIC()
	})

	Describe("claim and complete", func() {
		It("should claim the pending source and clear its pending bit", func() {
			arm()
			plic.Raise(10)
			Expect(plic.SExternal).To(BeTrue())

			claimed := plic.Read32(plicClaimCtx1)
			Expect(claimed).To(Equal(uint32(10)))
			Expect(plic.SExternal).To(BeFalse())

			// Nothing left to claim.
			Expect(plic.Read32(plicClaimCtx1)).To(Equal(uint32(0)))

			plic.Write32(plicClaimCtx1, claimed) // complete
		})

		It("should pick the highest-priority source", func() {
			plic.Write32(plicPriority10, 2)
			plic.Write32(3*4, 5) // source 3, higher priority
			plic.Write32(plicEnableCtx1, 1<<10|1<<3)

			plic.Raise(10)
			plic.Raise(3)

			Expect(plic.Read32(plicClaimCtx1)).To(Equal(uint32(3)))
			Expect(plic.Read32(plicClaimCtx1)).To(Equal(uint32(10)))
		})
	})

	Describe("gating", func() {
		It("should never make a priority-zero source claimable", func() {
			plic.Write32(plicEnableCtx1, 1<<10)
			plic.Write32(plicThresholdCtx1, 0)
			// Priority left at zero.
			plic.Raise(10)

			Expect(plic.SExternal).To(BeFalse())
			Expect(plic.Read32(plicClaimCtx1)).To(Equal(uint32(0)))
		})

		It("should require priority strictly above the threshold", func() {
			arm()
			plic.Write32(plicThresholdCtx1, 1)
			plic.Raise(10)

			Expect(plic.SExternal).To(BeFalse())

			plic.Write32(plicThresholdCtx1, 0)
			Expect(plic.SExternal).To(BeTrue())
		})

		It("should keep disabled sources unclaimable", func() {
			plic.Write32(plicPriority10, 7)
			plic.Raise(10)

			Expect(plic.SExternal).To(BeFalse())
			Expect(plic.MExternal).To(BeFalse())
		})

		It("should gate contexts independently", func() {
			plic.Write32(plicPriority10, 1)
			plic.Write32(0x002000, 1<<10) // context 0 enable only
			plic.Raise(10)

			Expect(plic.MExternal).To(BeTrue())
			Expect(plic.SExternal).To(BeFalse())
		})
	})

	Describe("register surface", func() {
		It("should read back priorities and enables", func() {
			plic.Write32(plicPriority10, 3)
			plic.Write32(plicEnableCtx1, 0xF0)

			Expect(plic.Read32(plicPriority10)).To(Equal(uint32(3)))
			Expect(plic.Read32(plicEnableCtx1)).To(Equal(uint32(0xF0)))
		})

		It("should expose the pending bitmap read-only", func() {
			arm()
			plic.Raise(10)

			Expect(plic.Read32(0x001000)).To(Equal(uint32(1 << 10)))
			plic.Write32(0x001000, 0)
			Expect(plic.Read32(0x001000)).To(Equal(uint32(1 << 10)))
		})

		It("should clamp priorities to three bits", func() {
			plic.Write32(plicPriority10, 0xFF)
			Expect(plic.Read32(plicPriority10)).To(Equal(uint32(7)))
		})
	})
})
