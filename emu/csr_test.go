package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
)

var _ = Describe("CSR", func() {
	var csr *emu.CSR

	BeforeEach(func() {
		csr = emu.NewCSR()
	})

	Describe("privilege checks", func() {
		It("should refuse M-mode registers below M-mode", func() {
			_, ok := csr.Read(emu.CSRMstatus, emu.PrivSupervisor)
			Expect(ok).To(BeFalse())

			Expect(csr.Write(emu.CSRMstatus, 0, emu.PrivSupervisor)).To(BeFalse())
		})

		It("should refuse S-mode registers from U-mode", func() {
			_, ok := csr.Read(emu.CSRSatp, emu.PrivUser)
			Expect(ok).To(BeFalse())
		})

		It("should refuse writes to read-only registers", func() {
			Expect(csr.Write(emu.CSRMhartid, 1, emu.PrivMachine)).To(BeFalse())
			Expect(csr.Write(emu.CSRCycle, 1, emu.PrivMachine)).To(BeFalse())
		})
	})

	Describe("projections", func() {
		It("should project sstatus out of mstatus", func() {
			csr.Write(emu.CSRMstatus, emu.MstatusSIE|emu.MstatusMIE|emu.MstatusSUM, emu.PrivMachine)

			sstatus, ok := csr.Read(emu.CSRSstatus, emu.PrivSupervisor)
			Expect(ok).To(BeTrue())
			Expect(sstatus & emu.MstatusSIE).NotTo(BeZero())
			Expect(sstatus & emu.MstatusSUM).NotTo(BeZero())
			Expect(sstatus & emu.MstatusMIE).To(BeZero())
		})

		It("should write sstatus back into mstatus without touching M bits", func() {
			csr.Write(emu.CSRMstatus, emu.MstatusMIE, emu.PrivMachine)
			csr.Write(emu.CSRSstatus, emu.MstatusSIE, emu.PrivSupervisor)

			Expect(csr.Mstatus & emu.MstatusMIE).NotTo(BeZero())
			Expect(csr.Mstatus & emu.MstatusSIE).NotTo(BeZero())
		})

		It("should project sie and sip through mideleg", func() {
			csr.Write(emu.CSRMideleg, emu.MipSSIP|emu.MipSTIP|emu.MipSEIP, emu.PrivMachine)
			csr.Write(emu.CSRMie, emu.MipSSIP|emu.MipMSIP|emu.MipSEIP, emu.PrivMachine)

			sie, _ := csr.Read(emu.CSRSie, emu.PrivSupervisor)
			Expect(sie).To(Equal(emu.MipSSIP | emu.MipSEIP))

			csr.SetPending(emu.MipSTIP | emu.MipMTIP)
			sip, _ := csr.Read(emu.CSRSip, emu.PrivSupervisor)
			Expect(sip).To(Equal(emu.MipSTIP))
		})

		It("should only let sie writes touch delegated bits", func() {
			csr.Write(emu.CSRMideleg, emu.MipSSIP, emu.PrivMachine)
			csr.Write(emu.CSRMie, emu.MipMTIP, emu.PrivMachine)

			csr.Write(emu.CSRSie, emu.MipSSIP|emu.MipSTIP, emu.PrivSupervisor)

			Expect(csr.Mie).To(Equal(emu.MipMTIP | emu.MipSSIP))
		})
	})

	Describe("mip write mask", func() {
		It("should not let software set externally driven bits", func() {
			csr.Write(emu.CSRMip, emu.MipSEIP|emu.MipMTIP|emu.MipSSIP|emu.MipSTIP, emu.PrivMachine)

			Expect(csr.Mip & emu.MipSEIP).To(BeZero())
			Expect(csr.Mip & emu.MipMTIP).To(BeZero())
			Expect(csr.Mip & emu.MipSSIP).NotTo(BeZero())
			Expect(csr.Mip & emu.MipSTIP).NotTo(BeZero())
		})
	})

	Describe("unimplemented registers", func() {
		It("should read zero and swallow writes", func() {
			v, ok := csr.Read(0x3B0, emu.PrivMachine) // pmpaddr0
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0)))

			Expect(csr.Write(0x3B0, 0xFFFF, emu.PrivMachine)).To(BeTrue())
			v, _ = csr.Read(0x3B0, emu.PrivMachine)
			Expect(v).To(Equal(uint32(0)))
		})
	})

	Describe("counters", func() {
		It("should expose cycle and time as split 32-bit halves", func() {
			csr.Cycle = 0x1_2345_6789
			csr.Time = 0xAB_0000_0001

			lo, _ := csr.Read(emu.CSRCycle, emu.PrivMachine)
			hi, _ := csr.Read(emu.CSRCycleh, emu.PrivMachine)
			Expect(lo).To(Equal(uint32(0x2345_6789)))
			Expect(hi).To(Equal(uint32(1)))

			tlo, _ := csr.Read(emu.CSRTime, emu.PrivUser)
			thi, _ := csr.Read(emu.CSRTimeh, emu.PrivUser)
			Expect(tlo).To(Equal(uint32(1)))
			Expect(thi).To(Equal(uint32(0xAB)))
		})
	})
})
