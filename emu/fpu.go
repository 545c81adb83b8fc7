// Package emu provides functional RV32IMAFD emulation.
package emu

import "math"

// RoundingMode is a RISC-V floating-point rounding mode.
type RoundingMode uint8

// Rounding modes. DYN in an instruction's rm field means "use frm".
const (
	RoundNearestEven RoundingMode = 0b000 // RNE
	RoundTowardZero  RoundingMode = 0b001 // RTZ
	RoundDown        RoundingMode = 0b010 // RDN
	RoundUp          RoundingMode = 0b011 // RUP
	RoundNearestMax  RoundingMode = 0b100 // RMM
	RoundDynamic     RoundingMode = 0b111 // DYN
)

// RoundingModeFromBits decodes a 3-bit rm field.
func RoundingModeFromBits(bits uint32) RoundingMode {
	switch bits & 0b111 {
	case 0b000:
		return RoundNearestEven
	case 0b001:
		return RoundTowardZero
	case 0b010:
		return RoundDown
	case 0b011:
		return RoundUp
	case 0b100:
		return RoundNearestMax
	default:
		return RoundDynamic
	}
}

// FFlags is the accrued exception flag set (fflags).
type FFlags uint32

// Exception flag bits.
const (
	FlagInexact   FFlags = 1 << 0 // NX
	FlagUnderflow FFlags = 1 << 1 // UF
	FlagOverflow  FFlags = 1 << 2 // OF
	FlagDivZero   FFlags = 1 << 3 // DZ
	FlagInvalid   FFlags = 1 << 4 // NV
)

// Canonical NaN encodings.
const (
	F32CanonicalNaN uint32 = 0x7FC0_0000
	F64CanonicalNaN uint64 = 0x7FF8_0000_0000_0000
)

// FPU holds the floating-point register file and control state.
//
// Registers are 64 bits wide for the D extension. Single-precision values
// are NaN-boxed: the upper 32 bits are all ones. A double-precision read
// that finds a slot without the box treats it as a canonical NaN when
// interpreted as a single.
type FPU struct {
	// Regs holds f0-f31.
	Regs [32]uint64
	// Frm is the dynamic rounding mode.
	Frm RoundingMode
	// Flags is the accrued exception flag set.
	Flags FFlags
}

// NewFPU creates an FPU in the reset state.
func NewFPU() *FPU {
	return &FPU{Frm: RoundNearestEven}
}

// Reset clears registers, rounding mode and flags.
func (f *FPU) Reset() {
	*f = FPU{Frm: RoundNearestEven}
}

// ReadF32 returns the single-precision bits of a register, or a
// canonical NaN if the slot is not NaN-boxed.
func (f *FPU) ReadF32(reg uint8) uint32 {
	val := f.Regs[reg&0x1F]
	if val>>32 != 0xFFFF_FFFF {
		return F32CanonicalNaN
	}
	return uint32(val)
}

// WriteF32 stores single-precision bits, NaN-boxing the upper half.
func (f *FPU) WriteF32(reg uint8, value uint32) {
	f.Regs[reg&0x1F] = 0xFFFF_FFFF_0000_0000 | uint64(value)
}

// ReadF64 returns the raw 64-bit register contents.
func (f *FPU) ReadF64(reg uint8) uint64 {
	return f.Regs[reg&0x1F]
}

// WriteF64 stores raw 64-bit register contents.
func (f *FPU) WriteF64(reg uint8, value uint64) {
	f.Regs[reg&0x1F] = value
}

// ReadFCSR assembles fcsr from frm and fflags.
func (f *FPU) ReadFCSR() uint32 {
	return uint32(f.Frm)<<5 | uint32(f.Flags)
}

// WriteFCSR splits fcsr into frm and fflags.
func (f *FPU) WriteFCSR(value uint32) {
	f.Flags = FFlags(value & 0x1F)
	f.Frm = RoundingModeFromBits(value >> 5)
}

// EffectiveRM resolves an instruction's rm field, substituting frm for
// the dynamic encoding.
func (f *FPU) EffectiveRM(instRM uint32) RoundingMode {
	rm := RoundingModeFromBits(instRM)
	if rm == RoundDynamic {
		return f.Frm
	}
	return rm
}

// f32IsNaN reports whether the bits encode any NaN.
func f32IsNaN(bits uint32) bool {
	return bits&0x7F80_0000 == 0x7F80_0000 && bits&0x007F_FFFF != 0
}

// f32IsSignalingNaN reports whether the bits encode a signaling NaN.
func f32IsSignalingNaN(bits uint32) bool {
	return f32IsNaN(bits) && bits&0x0040_0000 == 0
}

// f64IsNaN reports whether the bits encode any NaN.
func f64IsNaN(bits uint64) bool {
	return bits&0x7FF0_0000_0000_0000 == 0x7FF0_0000_0000_0000 &&
		bits&0x000F_FFFF_FFFF_FFFF != 0
}

// f64IsSignalingNaN reports whether the bits encode a signaling NaN.
func f64IsSignalingNaN(bits uint64) bool {
	return f64IsNaN(bits) && bits&0x0008_0000_0000_0000 == 0
}

// F32Add adds two single-precision values.
func F32Add(a, b uint32, _ RoundingMode) (uint32, FFlags) {
	af := math.Float32frombits(a)
	bf := math.Float32frombits(b)
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	result := af + bf
	if result != result { // NaN
		if !f32IsNaN(a) && !f32IsNaN(b) {
			flags |= FlagInvalid
		}
		return F32CanonicalNaN, flags
	}
	if math.IsInf(float64(result), 0) && !math.IsInf(float64(af), 0) && !math.IsInf(float64(bf), 0) {
		flags |= FlagOverflow | FlagInexact
	}
	return math.Float32bits(result), flags
}

// F32Sub subtracts two single-precision values.
func F32Sub(a, b uint32, rm RoundingMode) (uint32, FFlags) {
	return F32Add(a, b^0x8000_0000, rm)
}

// F32Mul multiplies two single-precision values.
func F32Mul(a, b uint32, _ RoundingMode) (uint32, FFlags) {
	af := math.Float32frombits(a)
	bf := math.Float32frombits(b)
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	aInf := math.IsInf(float64(af), 0)
	bInf := math.IsInf(float64(bf), 0)
	if (af == 0 && bInf) || (aInf && bf == 0) {
		return F32CanonicalNaN, flags | FlagInvalid
	}

	result := af * bf
	if result != result {
		if !f32IsNaN(a) && !f32IsNaN(b) {
			flags |= FlagInvalid
		}
		return F32CanonicalNaN, flags
	}
	return math.Float32bits(result), flags
}

// F32Div divides two single-precision values.
func F32Div(a, b uint32, _ RoundingMode) (uint32, FFlags) {
	af := math.Float32frombits(a)
	bf := math.Float32frombits(b)
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	aInf := math.IsInf(float64(af), 0)
	bInf := math.IsInf(float64(bf), 0)
	if (af == 0 && bf == 0) || (aInf && bInf) {
		return F32CanonicalNaN, flags | FlagInvalid
	}
	if bf == 0 && !f32IsNaN(a) {
		flags |= FlagDivZero
	}

	result := af / bf
	if result != result && !f32IsNaN(a) && !f32IsNaN(b) {
		return F32CanonicalNaN, flags | FlagInvalid
	}
	return math.Float32bits(result), flags
}

// F32Sqrt takes the square root of a single-precision value.
func F32Sqrt(a uint32, _ RoundingMode) (uint32, FFlags) {
	af := math.Float32frombits(a)
	var flags FFlags
	if f32IsSignalingNaN(a) {
		flags |= FlagInvalid
	}
	if af < 0 {
		return F32CanonicalNaN, flags | FlagInvalid
	}

	result := float32(math.Sqrt(float64(af)))
	if result != result && !f32IsNaN(a) {
		return F32CanonicalNaN, flags | FlagInvalid
	}
	return math.Float32bits(result), flags
}

// F32Min returns the smaller operand; -0 orders below +0 and a quiet
// NaN operand yields the other value.
func F32Min(a, b uint32) (uint32, FFlags) {
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	switch {
	case f32IsNaN(a) && f32IsNaN(b):
		return F32CanonicalNaN, flags
	case f32IsNaN(a):
		return b, flags
	case f32IsNaN(b):
		return a, flags
	}
	if a == 0x8000_0000 && b == 0 {
		return a, flags
	}
	if a == 0 && b == 0x8000_0000 {
		return b, flags
	}
	if math.Float32frombits(a) < math.Float32frombits(b) {
		return a, flags
	}
	return b, flags
}

// F32Max returns the larger operand; see F32Min for the special cases.
func F32Max(a, b uint32) (uint32, FFlags) {
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	switch {
	case f32IsNaN(a) && f32IsNaN(b):
		return F32CanonicalNaN, flags
	case f32IsNaN(a):
		return b, flags
	case f32IsNaN(b):
		return a, flags
	}
	if a == 0x8000_0000 && b == 0 {
		return b, flags
	}
	if a == 0 && b == 0x8000_0000 {
		return a, flags
	}
	if math.Float32frombits(a) > math.Float32frombits(b) {
		return a, flags
	}
	return b, flags
}

// F32Eq compares for equality; signaling NaNs raise invalid.
func F32Eq(a, b uint32) (bool, FFlags) {
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	return math.Float32frombits(a) == math.Float32frombits(b), flags
}

// F32Lt compares less-than; any NaN raises invalid.
func F32Lt(a, b uint32) (bool, FFlags) {
	if f32IsNaN(a) || f32IsNaN(b) {
		return false, FlagInvalid
	}
	return math.Float32frombits(a) < math.Float32frombits(b), 0
}

// F32Le compares less-or-equal; any NaN raises invalid.
func F32Le(a, b uint32) (bool, FFlags) {
	if f32IsNaN(a) || f32IsNaN(b) {
		return false, FlagInvalid
	}
	return math.Float32frombits(a) <= math.Float32frombits(b), 0
}

// roundF64 applies a RISC-V rounding mode to a float64 value.
func roundF64(v float64, rm RoundingMode) float64 {
	switch rm {
	case RoundTowardZero:
		return math.Trunc(v)
	case RoundDown:
		return math.Floor(v)
	case RoundUp:
		return math.Ceil(v)
	case RoundNearestEven:
		return math.RoundToEven(v)
	default: // RMM and DYN fallback
		return math.Round(v)
	}
}

// F32ToI32 converts to a signed 32-bit integer with RISC-V saturation:
// NaN and overflow saturate toward the signed extremes and raise invalid.
func F32ToI32(a uint32, rm RoundingMode) (int32, FFlags) {
	af := float64(math.Float32frombits(a))
	if af != af {
		return math.MaxInt32, FlagInvalid
	}
	rounded := roundF64(af, rm)
	if rounded >= float64(math.MaxInt32)+1 {
		return math.MaxInt32, FlagInvalid
	}
	if rounded < float64(math.MinInt32) {
		return math.MinInt32, FlagInvalid
	}
	result := int32(rounded)
	var flags FFlags
	if float64(result) != af {
		flags |= FlagInexact
	}
	return result, flags
}

// F32ToU32 converts to an unsigned 32-bit integer with RISC-V saturation.
func F32ToU32(a uint32, rm RoundingMode) (uint32, FFlags) {
	af := float64(math.Float32frombits(a))
	if af != af {
		return math.MaxUint32, FlagInvalid
	}
	rounded := roundF64(af, rm)
	if rounded >= float64(math.MaxUint32)+1 {
		return math.MaxUint32, FlagInvalid
	}
	if rounded < 0 {
		return 0, FlagInvalid
	}
	result := uint32(rounded)
	var flags FFlags
	if float64(result) != af {
		flags |= FlagInexact
	}
	return result, flags
}

// I32ToF32 converts a signed integer to single precision.
func I32ToF32(a int32) (uint32, FFlags) {
	result := float32(a)
	var flags FFlags
	if float64(result) != float64(a) {
		flags |= FlagInexact
	}
	return math.Float32bits(result), flags
}

// U32ToF32 converts an unsigned integer to single precision.
func U32ToF32(a uint32) (uint32, FFlags) {
	result := float32(a)
	var flags FFlags
	if float64(result) != float64(a) {
		flags |= FlagInexact
	}
	return math.Float32bits(result), flags
}

// F32SignInject copies the sign of b onto a (FSGNJ.S).
func F32SignInject(a, b uint32) uint32 {
	return a&0x7FFF_FFFF | b&0x8000_0000
}

// F32SignInjectN copies the negated sign of b onto a (FSGNJN.S).
func F32SignInjectN(a, b uint32) uint32 {
	return a&0x7FFF_FFFF | (b^0x8000_0000)&0x8000_0000
}

// F32SignInjectX XORs the signs of a and b (FSGNJX.S).
func F32SignInjectX(a, b uint32) uint32 {
	return a ^ b&0x8000_0000
}

// F32Classify implements FCLASS.S.
func F32Classify(a uint32) uint32 {
	sign := a>>31 != 0
	exp := (a >> 23) & 0xFF
	frac := a & 0x7F_FFFF

	switch {
	case exp == 0 && frac == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case exp == 0:
		if sign {
			return 1 << 2
		}
		return 1 << 5
	case exp == 0xFF && frac == 0:
		if sign {
			return 1 << 0
		}
		return 1 << 7
	case exp == 0xFF:
		if frac&0x40_0000 != 0 {
			return 1 << 9
		}
		return 1 << 8
	default:
		if sign {
			return 1 << 1
		}
		return 1 << 6
	}
}

// F32FMAdd computes a*b + c fused (FMADD.S).
func F32FMAdd(a, b, c uint32, _ RoundingMode) (uint32, FFlags) {
	af := float64(math.Float32frombits(a))
	bf := float64(math.Float32frombits(b))
	cf := float64(math.Float32frombits(c))
	var flags FFlags
	if f32IsSignalingNaN(a) || f32IsSignalingNaN(b) || f32IsSignalingNaN(c) {
		flags |= FlagInvalid
	}

	result := float32(math.FMA(af, bf, cf))
	if result != result {
		if !f32IsNaN(a) && !f32IsNaN(b) && !f32IsNaN(c) {
			flags |= FlagInvalid
		}
		return F32CanonicalNaN, flags
	}
	return math.Float32bits(result), flags
}

// F64Add adds two double-precision values.
func F64Add(a, b uint64, _ RoundingMode) (uint64, FFlags) {
	af := math.Float64frombits(a)
	bf := math.Float64frombits(b)
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	result := af + bf
	if result != result {
		if !f64IsNaN(a) && !f64IsNaN(b) {
			flags |= FlagInvalid
		}
		return F64CanonicalNaN, flags
	}
	return math.Float64bits(result), flags
}

// F64Sub subtracts two double-precision values.
func F64Sub(a, b uint64, rm RoundingMode) (uint64, FFlags) {
	return F64Add(a, b^0x8000_0000_0000_0000, rm)
}

// F64Mul multiplies two double-precision values.
func F64Mul(a, b uint64, _ RoundingMode) (uint64, FFlags) {
	af := math.Float64frombits(a)
	bf := math.Float64frombits(b)
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	if (af == 0 && math.IsInf(bf, 0)) || (math.IsInf(af, 0) && bf == 0) {
		return F64CanonicalNaN, flags | FlagInvalid
	}

	result := af * bf
	if result != result && !f64IsNaN(a) && !f64IsNaN(b) {
		return F64CanonicalNaN, flags | FlagInvalid
	}
	if result != result {
		return F64CanonicalNaN, flags
	}
	return math.Float64bits(result), flags
}

// F64Div divides two double-precision values.
func F64Div(a, b uint64, _ RoundingMode) (uint64, FFlags) {
	af := math.Float64frombits(a)
	bf := math.Float64frombits(b)
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}

	if (af == 0 && bf == 0) || (math.IsInf(af, 0) && math.IsInf(bf, 0)) {
		return F64CanonicalNaN, flags | FlagInvalid
	}
	if bf == 0 && !f64IsNaN(a) {
		flags |= FlagDivZero
	}

	result := af / bf
	if result != result && !f64IsNaN(a) && !f64IsNaN(b) {
		return F64CanonicalNaN, flags | FlagInvalid
	}
	if result != result {
		return F64CanonicalNaN, flags
	}
	return math.Float64bits(result), flags
}

// F64Sqrt takes the square root of a double-precision value.
func F64Sqrt(a uint64, _ RoundingMode) (uint64, FFlags) {
	af := math.Float64frombits(a)
	var flags FFlags
	if f64IsSignalingNaN(a) {
		flags |= FlagInvalid
	}
	if af < 0 {
		return F64CanonicalNaN, flags | FlagInvalid
	}

	result := math.Sqrt(af)
	if result != result && !f64IsNaN(a) {
		return F64CanonicalNaN, flags | FlagInvalid
	}
	if result != result {
		return F64CanonicalNaN, flags
	}
	return math.Float64bits(result), flags
}

// F64Min returns the smaller operand; see F32Min for the special cases.
func F64Min(a, b uint64) (uint64, FFlags) {
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	switch {
	case f64IsNaN(a) && f64IsNaN(b):
		return F64CanonicalNaN, flags
	case f64IsNaN(a):
		return b, flags
	case f64IsNaN(b):
		return a, flags
	}
	if a == 0x8000_0000_0000_0000 && b == 0 {
		return a, flags
	}
	if a == 0 && b == 0x8000_0000_0000_0000 {
		return b, flags
	}
	if math.Float64frombits(a) < math.Float64frombits(b) {
		return a, flags
	}
	return b, flags
}

// F64Max returns the larger operand; see F32Min for the special cases.
func F64Max(a, b uint64) (uint64, FFlags) {
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	switch {
	case f64IsNaN(a) && f64IsNaN(b):
		return F64CanonicalNaN, flags
	case f64IsNaN(a):
		return b, flags
	case f64IsNaN(b):
		return a, flags
	}
	if a == 0x8000_0000_0000_0000 && b == 0 {
		return b, flags
	}
	if a == 0 && b == 0x8000_0000_0000_0000 {
		return a, flags
	}
	if math.Float64frombits(a) > math.Float64frombits(b) {
		return a, flags
	}
	return b, flags
}

// F64Eq compares for equality; signaling NaNs raise invalid.
func F64Eq(a, b uint64) (bool, FFlags) {
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) {
		flags |= FlagInvalid
	}
	return math.Float64frombits(a) == math.Float64frombits(b), flags
}

// F64Lt compares less-than; any NaN raises invalid.
func F64Lt(a, b uint64) (bool, FFlags) {
	if f64IsNaN(a) || f64IsNaN(b) {
		return false, FlagInvalid
	}
	return math.Float64frombits(a) < math.Float64frombits(b), 0
}

// F64Le compares less-or-equal; any NaN raises invalid.
func F64Le(a, b uint64) (bool, FFlags) {
	if f64IsNaN(a) || f64IsNaN(b) {
		return false, FlagInvalid
	}
	return math.Float64frombits(a) <= math.Float64frombits(b), 0
}

// F64ToI32 converts to a signed 32-bit integer with RISC-V saturation.
func F64ToI32(a uint64, rm RoundingMode) (int32, FFlags) {
	af := math.Float64frombits(a)
	if af != af {
		return math.MaxInt32, FlagInvalid
	}
	rounded := roundF64(af, rm)
	if rounded >= float64(math.MaxInt32)+1 {
		return math.MaxInt32, FlagInvalid
	}
	if rounded < float64(math.MinInt32) {
		return math.MinInt32, FlagInvalid
	}
	result := int32(rounded)
	var flags FFlags
	if float64(result) != af {
		flags |= FlagInexact
	}
	return result, flags
}

// F64ToU32 converts to an unsigned 32-bit integer with RISC-V saturation.
func F64ToU32(a uint64, rm RoundingMode) (uint32, FFlags) {
	af := math.Float64frombits(a)
	if af != af {
		return math.MaxUint32, FlagInvalid
	}
	rounded := roundF64(af, rm)
	if rounded >= float64(math.MaxUint32)+1 {
		return math.MaxUint32, FlagInvalid
	}
	if rounded < 0 {
		return 0, FlagInvalid
	}
	result := uint32(rounded)
	var flags FFlags
	if float64(result) != af {
		flags |= FlagInexact
	}
	return result, flags
}

// I32ToF64 converts a signed integer to double precision (always exact).
func I32ToF64(a int32) uint64 {
	return math.Float64bits(float64(a))
}

// U32ToF64 converts an unsigned integer to double precision (always exact).
func U32ToF64(a uint32) uint64 {
	return math.Float64bits(float64(a))
}

// F32ToF64 widens single to double precision.
func F32ToF64(a uint32) (uint64, FFlags) {
	if f32IsSignalingNaN(a) {
		return F64CanonicalNaN, FlagInvalid
	}
	if f32IsNaN(a) {
		return F64CanonicalNaN, 0
	}
	return math.Float64bits(float64(math.Float32frombits(a))), 0
}

// F64ToF32 narrows double to single precision, flagging overflow and
// underflow of the narrower format.
func F64ToF32(a uint64, _ RoundingMode) (uint32, FFlags) {
	if f64IsSignalingNaN(a) {
		return F32CanonicalNaN, FlagInvalid
	}
	if f64IsNaN(a) {
		return F32CanonicalNaN, 0
	}

	af := math.Float64frombits(a)
	result := float32(af)
	var flags FFlags
	if math.IsInf(float64(result), 0) && !math.IsInf(af, 0) {
		flags |= FlagOverflow | FlagInexact
	}
	if result == 0 && af != 0 {
		flags |= FlagUnderflow | FlagInexact
	}
	return math.Float32bits(result), flags
}

// F64SignInject copies the sign of b onto a (FSGNJ.D).
func F64SignInject(a, b uint64) uint64 {
	return a&0x7FFF_FFFF_FFFF_FFFF | b&0x8000_0000_0000_0000
}

// F64SignInjectN copies the negated sign of b onto a (FSGNJN.D).
func F64SignInjectN(a, b uint64) uint64 {
	return a&0x7FFF_FFFF_FFFF_FFFF | (b^0x8000_0000_0000_0000)&0x8000_0000_0000_0000
}

// F64SignInjectX XORs the signs of a and b (FSGNJX.D).
func F64SignInjectX(a, b uint64) uint64 {
	return a ^ b&0x8000_0000_0000_0000
}

// F64Classify implements FCLASS.D.
func F64Classify(a uint64) uint32 {
	sign := a>>63 != 0
	exp := (a >> 52) & 0x7FF
	frac := a & 0xF_FFFF_FFFF_FFFF

	switch {
	case exp == 0 && frac == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case exp == 0:
		if sign {
			return 1 << 2
		}
		return 1 << 5
	case exp == 0x7FF && frac == 0:
		if sign {
			return 1 << 0
		}
		return 1 << 7
	case exp == 0x7FF:
		if frac&0x8_0000_0000_0000 != 0 {
			return 1 << 9
		}
		return 1 << 8
	default:
		if sign {
			return 1 << 1
		}
		return 1 << 6
	}
}

// F64FMAdd computes a*b + c fused (FMADD.D).
func F64FMAdd(a, b, c uint64, _ RoundingMode) (uint64, FFlags) {
	af := math.Float64frombits(a)
	bf := math.Float64frombits(b)
	cf := math.Float64frombits(c)
	var flags FFlags
	if f64IsSignalingNaN(a) || f64IsSignalingNaN(b) || f64IsSignalingNaN(c) {
		flags |= FlagInvalid
	}

	result := math.FMA(af, bf, cf)
	if result != result {
		if !f64IsNaN(a) && !f64IsNaN(b) && !f64IsNaN(c) {
			flags |= FlagInvalid
		}
		return F64CanonicalNaN, flags
	}
	return math.Float64bits(result), flags
}
