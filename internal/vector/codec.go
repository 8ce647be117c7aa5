package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBlob packs an embedding as little-endian float32 bytes for a BLOB
// column. The layout is fixed so a vector written on one platform reads back
// bit-identical on another, and so persisted vectors never round-trip through
// a lossy decimal representation.
func EncodeBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeBlob unpacks a BLOB written by EncodeBlob.
func DecodeBlob(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
