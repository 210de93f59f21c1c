package audio

import (
	"encoding/binary"
	"math"
)

// DecodeFrame decodes one sample-frame into a stereo pair of floats in
// [-1, 1]. Mono is duplicated to both sides; channels past the second are
// ignored. p must hold at least f.BlockAlign() bytes.
func DecodeFrame(f Format, p []byte) (left, right float32) {
	left = decodeSample(f, p)
	if f.Channels < 2 {
		return left, left
	}
	return left, decodeSample(f, p[f.BitsPerSample/8:])
}

func decodeSample(f Format, p []byte) float32 {
	switch f.Encoding {
	case EncodingFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(p))
	case EncodingPCM:
		switch f.BitsPerSample {
		case 8:
			return float32(int(p[0])-128) / 128
		case 16:
			return float32(int16(binary.LittleEndian.Uint16(p))) / 32768
		case 24:
			v := int32(uint32(p[0])<<8|uint32(p[1])<<16|uint32(p[2])<<24) >> 8
			return float32(v) / 8388608
		case 32:
			return float32(float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648)
		}
	}
	return 0
}

// EncodeFloat32 appends samples as little-endian IEEE floats.
func EncodeFloat32(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// EncodeInt16 appends samples as little-endian 16-bit PCM.
func EncodeInt16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
