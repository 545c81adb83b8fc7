package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32sim/emu"
)

func f32bits(v float32) uint32 { return math.Float32bits(v) }
func f64bits(v float64) uint64 { return math.Float64bits(v) }

var _ = Describe("FPU", func() {
	var fpu *emu.FPU

	BeforeEach(func() {
		fpu = emu.NewFPU()
	})

	Describe("NaN boxing", func() {
		It("should box single-precision writes", func() {
			fpu.WriteF32(3, f32bits(1.5))
			Expect(fpu.ReadF64(3) >> 32).To(Equal(uint64(0xFFFFFFFF)))
			Expect(fpu.ReadF32(3)).To(Equal(f32bits(1.5)))
		})

		It("should read unboxed values as canonical NaN", func() {
			fpu.WriteF64(3, f64bits(1.5))
			Expect(fpu.ReadF32(3)).To(Equal(emu.F32CanonicalNaN))
		})
	})

	Describe("fcsr", func() {
		It("should round-trip frm and fflags", func() {
			fpu.WriteFCSR(0x5D) // frm=010, flags=11101

			Expect(fpu.Frm).To(Equal(emu.RoundDown))
			Expect(fpu.ReadFCSR()).To(Equal(uint32(0x5D)))
		})

		It("should resolve the dynamic rounding mode through frm", func() {
			fpu.Frm = emu.RoundUp
			Expect(fpu.EffectiveRM(0b111)).To(Equal(emu.RoundUp))
			Expect(fpu.EffectiveRM(0b001)).To(Equal(emu.RoundTowardZero))
		})
	})

	Describe("arithmetic", func() {
		It("should add and subtract exactly for representable values", func() {
			sum, flags := emu.F32Add(f32bits(1.25), f32bits(2.5), emu.RoundNearestEven)
			Expect(flags).To(BeZero())
			Expect(sum).To(Equal(f32bits(3.75)))

			diff, flags := emu.F32Sub(sum, f32bits(2.5), emu.RoundNearestEven)
			Expect(flags).To(BeZero())
			Expect(diff).To(Equal(f32bits(1.25)))
		})

		It("should produce canonical NaN with invalid for 0 * inf", func() {
			result, flags := emu.F32Mul(f32bits(0), f32bits(float32(math.Inf(1))), emu.RoundNearestEven)
			Expect(result).To(Equal(emu.F32CanonicalNaN))
			Expect(flags & emu.FlagInvalid).NotTo(BeZero())
		})

		It("should raise divide-by-zero", func() {
			result, flags := emu.F64Div(f64bits(1), f64bits(0), emu.RoundNearestEven)
			Expect(math.IsInf(math.Float64frombits(result), 1)).To(BeTrue())
			Expect(flags & emu.FlagDivZero).NotTo(BeZero())
		})

		It("should reject the square root of a negative number", func() {
			result, flags := emu.F64Sqrt(f64bits(-4), emu.RoundNearestEven)
			Expect(result).To(Equal(emu.F64CanonicalNaN))
			Expect(flags & emu.FlagInvalid).NotTo(BeZero())
		})
	})

	Describe("min/max", func() {
		It("should order -0 below +0", func() {
			neg := uint32(0x8000_0000)
			pos := uint32(0)

			minResult, _ := emu.F32Min(pos, neg)
			Expect(minResult).To(Equal(neg))

			maxResult, _ := emu.F32Max(neg, pos)
			Expect(maxResult).To(Equal(pos))
		})

		It("should return the non-NaN operand", func() {
			v, _ := emu.F64Min(emu.F64CanonicalNaN, f64bits(2))
			Expect(v).To(Equal(f64bits(2)))

			v, _ = emu.F64Min(emu.F64CanonicalNaN, emu.F64CanonicalNaN)
			Expect(v).To(Equal(emu.F64CanonicalNaN))
		})
	})

	Describe("conversions", func() {
		It("should saturate out-of-range conversions with invalid", func() {
			v, flags := emu.F32ToI32(f32bits(3e9), emu.RoundTowardZero)
			Expect(v).To(Equal(int32(math.MaxInt32)))
			Expect(flags & emu.FlagInvalid).NotTo(BeZero())

			u, flags := emu.F32ToU32(f32bits(-1), emu.RoundTowardZero)
			Expect(u).To(Equal(uint32(0)))
			Expect(flags & emu.FlagInvalid).NotTo(BeZero())
		})

		It("should convert NaN to the all-ones sentinel for unsigned", func() {
			u, flags := emu.F64ToU32(emu.F64CanonicalNaN, emu.RoundNearestEven)
			Expect(u).To(Equal(uint32(math.MaxUint32)))
			Expect(flags & emu.FlagInvalid).NotTo(BeZero())
		})

		It("should honor the rounding mode", func() {
			v, _ := emu.F64ToI32(f64bits(1.5), emu.RoundTowardZero)
			Expect(v).To(Equal(int32(1)))

			v, _ = emu.F64ToI32(f64bits(1.5), emu.RoundUp)
			Expect(v).To(Equal(int32(2)))

			v, _ = emu.F64ToI32(f64bits(-1.5), emu.RoundDown)
			Expect(v).To(Equal(int32(-2)))

			v, _ = emu.F64ToI32(f64bits(2.5), emu.RoundNearestEven)
			Expect(v).To(Equal(int32(2)))
		})

		It("should flag inexact conversions", func() {
			_, flags := emu.F64ToI32(f64bits(1.5), emu.RoundTowardZero)
			Expect(flags & emu.FlagInexact).NotTo(BeZero())

			_, flags = emu.F64ToI32(f64bits(2), emu.RoundTowardZero)
			Expect(flags).To(BeZero())
		})

		It("should widen singles exactly and narrow doubles with flags", func() {
			wide, flags := emu.F32ToF64(f32bits(1.5))
			Expect(flags).To(BeZero())
			Expect(wide).To(Equal(f64bits(1.5)))

			narrow, flags := emu.F64ToF32(f64bits(1e300), emu.RoundNearestEven)
			Expect(math.IsInf(float64(math.Float32frombits(narrow)), 1)).To(BeTrue())
			Expect(flags & emu.FlagOverflow).NotTo(BeZero())
		})
	})

	Describe("classification", func() {
		It("should classify the f32 categories", func() {
			Expect(emu.F32Classify(f32bits(float32(math.Inf(-1))))).To(Equal(uint32(1 << 0)))
			Expect(emu.F32Classify(0x8000_0000)).To(Equal(uint32(1 << 3))) // -0
			Expect(emu.F32Classify(0)).To(Equal(uint32(1 << 4)))           // +0
			Expect(emu.F32Classify(f32bits(1))).To(Equal(uint32(1 << 6)))
			Expect(emu.F32Classify(f32bits(float32(math.Inf(1))))).To(Equal(uint32(1 << 7)))
			Expect(emu.F32Classify(0x7FC0_0000)).To(Equal(uint32(1 << 9))) // quiet NaN
		})
	})

	Describe("sign injection", func() {
		It("should move signs without touching the magnitude", func() {
			Expect(emu.F32SignInject(f32bits(1.5), f32bits(-2))).To(Equal(f32bits(-1.5)))
			Expect(emu.F32SignInjectN(f32bits(1.5), f32bits(-2))).To(Equal(f32bits(1.5)))
			Expect(emu.F32SignInjectX(f32bits(-1.5), f32bits(-2))).To(Equal(f32bits(1.5)))
		})
	})

	Describe("fused multiply-add", func() {
		It("should keep the intermediate product unrounded", func() {
			// 2^27 + 1 squared needs the full product width.
			a := float64(1<<27 + 1)
			result, _ := emu.F64FMAdd(f64bits(a), f64bits(a), f64bits(-a*a), emu.RoundNearestEven)
			Expect(math.Float64frombits(result)).To(Equal(math.FMA(a, a, -a*a)))
		})
	})
})
