package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Precision selects how vectors are encoded on disk and in memory.
type Precision string

const (
	// Float32 stores IEEE 754 single-precision values.
	Float32 Precision = "float32"
	// Float16 stores IEEE 754 half-precision values, halving the size.
	Float16 Precision = "float16"
)

// Validate reports an error for unknown precisions.
func (p Precision) Validate() error {
	switch p {
	case Float32, Float16:
		return nil
	}
	return fmt.Errorf("unknown precision %q (want %q or %q)", p, Float32, Float16)
}

// ParsePrecision maps a config value to a Precision. Empty means Float32.
func ParsePrecision(s string) (Precision, error) {
	if s == "" {
		return Float32, nil
	}
	p := Precision(s)
	return p, p.Validate()
}

// EncodeVector converts v to a little-endian binary representation.
func EncodeVector(v []float32, p Precision) []byte {
	if p == Float16 {
		buf := make([]byte, len(v)*2)
		for i, f := range v {
			binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(f).Bits())
		}
		return buf
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector converts a binary representation back to float32 values.
func DecodeVector(buf []byte, p Precision) ([]float32, error) {
	switch p {
	case Float16:
		if len(buf)%2 != 0 {
			return nil, fmt.Errorf("float16 blob has odd length %d", len(buf))
		}
		v := make([]float32, len(buf)/2)
		for i := range v {
			v[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32()
		}
		return v, nil
	case Float32:
		if len(buf)%4 != 0 {
			return nil, fmt.Errorf("float32 blob length %d is not a multiple of 4", len(buf))
		}
		v := make([]float32, len(buf)/4)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown precision %q", p)
}
