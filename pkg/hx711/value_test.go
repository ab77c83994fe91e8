package hx711

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode_RoundTrip(t *testing.T) {
	for _, v := range []int32{Min, Min + 1, -1000000, -1, 0, 1, 8388, 1000000, Max - 1, Max} {
		assert.Equal(t, v, Decode(Encode(v)).Raw(), "value %d", v)
	}

	for v := Min; v <= Max; v += 4099 {
		if got := Decode(Encode(v)).Raw(); got != v {
			t.Fatalf("round trip of %d gave %d", v, got)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   [3]byte
		want int32
	}{
		{name: "zero", in: [3]byte{0x00, 0x00, 0x00}, want: 0},
		{name: "one", in: [3]byte{0x00, 0x00, 0x01}, want: 1},
		{name: "minus one", in: [3]byte{0xFF, 0xFF, 0xFF}, want: -1},
		{name: "max", in: [3]byte{0x7F, 0xFF, 0xFF}, want: Max},
		{name: "min", in: [3]byte{0x80, 0x00, 0x00}, want: Min},
		{name: "mixed", in: [3]byte{0x01, 0x02, 0x03}, want: 0x010203},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in).Raw())
		})
	}
}

func TestValue_Validity(t *testing.T) {
	tests := []struct {
		name      string
		v         Value
		valid     bool
		saturated bool
	}{
		{name: "never read", v: Value{}, valid: false, saturated: false},
		{name: "zero", v: NewValue(0), valid: true, saturated: false},
		{name: "max", v: NewValue(Max), valid: true, saturated: true},
		{name: "min", v: NewValue(Min), valid: true, saturated: true},
		{name: "inside", v: NewValue(Max - 1), valid: true, saturated: false},
		{name: "above", v: NewValue(Max + 1), valid: false, saturated: false},
		{name: "below", v: NewValue(Min - 1), valid: false, saturated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.v.IsValid())
			assert.Equal(t, tt.saturated, tt.v.IsSaturated())
		})
	}

	assert.True(t, NewValue(Max).IsMaxSaturated())
	assert.False(t, NewValue(Max).IsMinSaturated())
	assert.True(t, NewValue(Min).IsMinSaturated())
}

func TestValue_Unset(t *testing.T) {
	var v Value
	assert.False(t, v.IsSet())
	assert.Equal(t, int32(math.MinInt32), v.Raw())
	assert.Equal(t, "<none>", v.String())

	v = NewValue(-42)
	assert.True(t, v.IsSet())
	assert.Equal(t, int32(-42), v.Raw())
	assert.Equal(t, "-42", v.String())
}

func TestGain_Pulses(t *testing.T) {
	assert.Equal(t, 1, Gain128.Pulses()-BitsPerConversion)
	assert.Equal(t, 2, Gain32.Pulses()-BitsPerConversion)
	assert.Equal(t, 3, Gain64.Pulses()-BitsPerConversion)
	assert.Equal(t, 0, Gain(16).Pulses())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		c     Channel
		g     Gain
		valid bool
	}{
		{ChannelA, Gain128, true},
		{ChannelA, Gain64, true},
		{ChannelA, Gain32, false},
		{ChannelB, Gain32, true},
		{ChannelB, Gain128, false},
		{ChannelB, Gain64, false},
		{Channel('C'), Gain128, false},
	}

	for _, tt := range tests {
		err := ValidateConfig(tt.c, tt.g)
		if tt.valid {
			assert.NoError(t, err, "%v/%v", tt.c, tt.g)
		} else {
			assert.Error(t, err, "%v/%v", tt.c, tt.g)
		}
	}
}

func TestParse(t *testing.T) {
	c, err := ParseChannel("b")
	assert.NoError(t, err)
	assert.Equal(t, ChannelB, c)
	_, err = ParseChannel("x")
	assert.Error(t, err)

	g, err := ParseGain(64)
	assert.NoError(t, err)
	assert.Equal(t, Gain64, g)
	_, err = ParseGain(100)
	assert.Error(t, err)

	f, err := ParseFormat("LSB")
	assert.NoError(t, err)
	assert.Equal(t, LSB, f)
	_, err = ParseFormat("middle")
	assert.Error(t, err)

	r, err := ParseRate(10)
	assert.NoError(t, err)
	assert.Equal(t, Rate10, r)
	_, err = ParseRate(40)
	assert.Error(t, err)
}
