package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/insts"
)

var _ = Describe("Decoder", func() {
	Describe("field extraction", func() {
		// ADDI x1, x2, 42 -> 0x02A10093
		// Encoding: imm12=42, rs1=2, funct3=000, rd=1, opcode=0010011
		It("should decode ADDI x1, x2, 42", func() {
			inst := insts.Decode(0x02A10093)

			Expect(inst.Opcode).To(Equal(insts.OpOpImm))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Funct3).To(Equal(uint8(0)))
			Expect(insts.ImmI(inst.Raw)).To(Equal(int32(42)))
		})

		// ADD x3, x1, x2 -> 0x002081B3
		It("should decode ADD x3, x1, x2", func() {
			inst := insts.Decode(0x002081B3)

			Expect(inst.Opcode).To(Equal(insts.OpOp))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
			Expect(inst.Funct7).To(Equal(uint8(0)))
		})

		// SUB x3, x1, x2 -> 0x402081B3 (funct7 = 0100000)
		It("should decode SUB x3, x1, x2", func() {
			inst := insts.Decode(0x402081B3)

			Expect(inst.Opcode).To(Equal(insts.OpOp))
			Expect(inst.Funct3).To(Equal(insts.Funct3AddSub))
			Expect(inst.Funct7).To(Equal(uint8(0b0100000)))
		})

		// FMADD.S f1, f2, f3, f4 -> rs3 in bits [31:27]
		// Encoding: rs3=4, fmt=00, rs2=3, rs1=2, rm=000, rd=1, opcode=1000011
		It("should extract rs3 for fused multiply-add", func() {
			inst := insts.Decode(0x203100C3)

			Expect(inst.Opcode).To(Equal(insts.OpMAdd))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(3)))
			Expect(inst.Rs3).To(Equal(uint8(4)))
		})
	})

	Describe("immediate formats", func() {
		// LUI x5, 0xDEADB -> 0xDEADB2B7
		It("should extract the U-type immediate", func() {
			inst := insts.Decode(0xDEADB2B7)

			Expect(inst.Opcode).To(Equal(insts.OpLUI))
			Expect(insts.ImmU(inst.Raw)).To(Equal(int32(-559042560))) // 0xDEADB000
		})

		// LW x6, -8(x7) -> 0xFF83A303
		It("should sign-extend the I-type immediate", func() {
			inst := insts.Decode(0xFF83A303)

			Expect(inst.Opcode).To(Equal(insts.OpLoad))
			Expect(insts.ImmI(inst.Raw)).To(Equal(int32(-8)))
		})

		// SW x6, -12(x7) -> 0xFE63AA23
		It("should sign-extend the S-type immediate", func() {
			inst := insts.Decode(0xFE63AA23)

			Expect(inst.Opcode).To(Equal(insts.OpStore))
			Expect(insts.ImmS(inst.Raw)).To(Equal(int32(-12)))
		})

		// BEQ x1, x2, -16 -> 0xFE2088E3
		It("should sign-extend the B-type immediate and store it", func() {
			inst := insts.Decode(0xFE2088E3)

			Expect(inst.Opcode).To(Equal(insts.OpBranch))
			Expect(inst.Funct3).To(Equal(insts.Funct3BEQ))
			Expect(inst.Imm).To(Equal(int32(-16)))
			Expect(insts.ImmB(inst.Raw)).To(Equal(int32(-16)))
		})

		// JAL x1, 2048 -> 0x001000EF
		It("should extract the J-type immediate and store it", func() {
			inst := insts.Decode(0x001000EF)

			Expect(inst.Opcode).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(2048)))
		})

		// JAL x0, -4 -> 0xFFDFF06F
		It("should sign-extend a backward J-type immediate", func() {
			inst := insts.Decode(0xFFDFF06F)

			Expect(inst.Opcode).To(Equal(insts.OpJAL))
			Expect(inst.Imm).To(Equal(int32(-4)))
		})

		// JALR x0, 0(x1) -> 0x00008067 (ret)
		It("should store the I-type immediate for JALR", func() {
			inst := insts.Decode(0x00008067)

			Expect(inst.Opcode).To(Equal(insts.OpJALR))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int32(0)))
		})
	})

	Describe("round trips", func() {
		It("should preserve recognized fields of arbitrary encodings", func() {
			encodings := []uint32{
				0x02A10093, // ADDI
				0x002081B3, // ADD
				0xDEADB2B7, // LUI
				0xFE2088E3, // BEQ
				0x001000EF, // JAL
				0x100522AF, // LR.W
				0x203100C3, // FMADD.S
			}
			for _, raw := range encodings {
				inst := insts.Decode(raw)
				reassembled := uint32(inst.Opcode) |
					uint32(inst.Rd)<<7 |
					uint32(inst.Funct3)<<12 |
					uint32(inst.Rs1)<<15 |
					uint32(inst.Rs2)<<20 |
					uint32(inst.Funct7)<<25
				Expect(reassembled).To(Equal(raw))
			}
		})
	})

	Describe("IsTerminator", func() {
		It("should classify control-flow and system opcodes as terminators", func() {
			Expect(insts.IsTerminator(insts.OpBranch)).To(BeTrue())
			Expect(insts.IsTerminator(insts.OpJAL)).To(BeTrue())
			Expect(insts.IsTerminator(insts.OpJALR)).To(BeTrue())
			Expect(insts.IsTerminator(insts.OpSystem)).To(BeTrue())
			Expect(insts.IsTerminator(insts.OpMiscMem)).To(BeTrue())
		})

		It("should keep straight-line opcodes inside blocks", func() {
			Expect(insts.IsTerminator(insts.OpLUI)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpLoad)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpStore)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpOp)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpOpImm)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpAMO)).To(BeFalse())
			Expect(insts.IsTerminator(insts.OpOpFP)).To(BeFalse())
		})
	})
})
