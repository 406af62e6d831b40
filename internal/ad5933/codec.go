package ad5933

import "math"

// DefaultMasterClock is the frequency of the internal oscillator in Hz.
const DefaultMasterClock = 16e6

const maxFrequencyCode = 1<<24 - 1

// FrequencyCode converts a frequency to the 24-bit DDS phase increment:
// round((4 * freq / masterClock) * 2^27).
func FrequencyCode(freq, masterClock float64) uint32 {
	code := math.Round((4 * freq / masterClock) * (1 << 27))
	switch {
	case math.IsNaN(code) || code < 0:
		return 0
	case code > maxFrequencyCode:
		return maxFrequencyCode
	}
	return uint32(code)
}

// EncodeFrequency returns the 3 register bytes for freq.
func EncodeFrequency(freq, masterClock float64) []byte {
	return bigEndian(FrequencyCode(freq, masterClock), frequencyWidth)
}

// SettleEncoding is the settling cycles register content: a 2-bit multiplier
// code (0 for x1, 1 for x2, 3 for x4) and a 9-bit cycle count.
type SettleEncoding struct {
	Multiplier uint8
	Count      uint16
}

// EncodeSettleCycles picks the smallest multiplier that keeps the count
// within 9 bits. n is expected to have passed ValidateSettleCycles.
func EncodeSettleCycles(n int) SettleEncoding {
	switch {
	case n > 1022:
		return SettleEncoding{Multiplier: 0b11, Count: uint16(n/4) & 0x1FF}
	case n > 511:
		return SettleEncoding{Multiplier: 0b01, Count: uint16(n/2) & 0x1FF}
	default:
		return SettleEncoding{Multiplier: 0b00, Count: uint16(max(n, 0))}
	}
}

// Factor returns the cycle multiplier represented by the code.
func (e SettleEncoding) Factor() int {
	switch e.Multiplier {
	case 0b01:
		return 2
	case 0b11:
		return 4
	}
	return 1
}

// Cycles returns the effective number of settling cycles.
func (e SettleEncoding) Cycles() int {
	return int(e.Count) * e.Factor()
}

// Value is the 16-bit register image: multiplier in bits 10-9, count in bits 8-0.
func (e SettleEncoding) Value() uint16 {
	return uint16(e.Multiplier)<<9 | e.Count
}

// Bytes returns the register bytes for 0x8A and 0x8B.
func (e SettleEncoding) Bytes() []byte {
	return bigEndian(uint32(e.Value()), settleWidth)
}

// TwosComplement16 interprets raw as a signed 16-bit value.
func TwosComplement16(raw uint16) int16 {
	if raw&0x8000 != 0 {
		return int16(int32(raw) - 1<<16)
	}
	return int16(raw)
}

// TwosComplement14 interprets the low 14 bits of raw as a signed value, the
// layout of the temperature register.
func TwosComplement14(raw uint16) int16 {
	raw &= 0x3FFF
	if raw&0x2000 != 0 {
		return int16(int32(raw) - 1<<14)
	}
	return int16(raw)
}

// Celsius converts a temperature register value to degrees.
func Celsius(raw uint16) float64 {
	return float64(TwosComplement14(raw)) / 32
}

func bigEndian(v uint32, n int) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
