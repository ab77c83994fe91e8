package hx711

import (
	"math"
	"strconv"
)

const (
	Min int32 = -0x800000
	Max int32 = 0x7FFFFF
)

// Value is one decoded conversion. The zero Value has never been read and is
// not valid.
type Value struct {
	raw int32
	set bool
}

// NewValue wraps a raw reading.
func NewValue(raw int32) Value {
	return Value{raw: raw, set: true}
}

// Decode sign-extends three bytes, most significant first.
func Decode(b [3]byte) Value {
	raw := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	return NewValue(-(raw & 0x800000) + (raw & 0x7FFFFF))
}

// Encode returns the 24-bit two's complement form of v, most significant
// byte first. Values outside [Min, Max] are truncated to 24 bits.
func Encode(v int32) [3]byte {
	u := uint32(v)
	return [3]byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

// Raw returns the reading, or math.MinInt32 if none was taken.
func (v Value) Raw() int32 {
	if !v.set {
		return math.MinInt32
	}
	return v.raw
}

// IsSet reports whether v holds a reading.
func (v Value) IsSet() bool { return v.set }

func (v Value) IsValid() bool {
	return v.set && v.raw >= Min && v.raw <= Max
}

// IsSaturated reports whether the chip clamped the input to either extreme.
func (v Value) IsSaturated() bool {
	return v.IsMinSaturated() || v.IsMaxSaturated()
}

func (v Value) IsMinSaturated() bool { return v.set && v.raw == Min }
func (v Value) IsMaxSaturated() bool { return v.set && v.raw == Max }

func (v Value) String() string {
	if !v.set {
		return "<none>"
	}
	return strconv.FormatInt(int64(v.raw), 10)
}
