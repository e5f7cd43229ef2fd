package audio

import (
	"encoding/binary"
	"math"
)

// F32BytesToFloat32 decodes little-endian IEEE-754 32-bit float PCM bytes
// (malgo's FormatF32) into a float32 slice. It is a reinterpretation, not a
// value conversion - samples are already in [-1, 1].
func F32BytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[4*i : 4*i+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Float32ToF32Bytes encodes a float32 slice as little-endian IEEE-754
// 32-bit float PCM bytes.
func Float32ToF32Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:4*i+4], math.Float32bits(s))
	}
	return out
}

// Int16BytesToFloat32 decodes little-endian 16-bit PCM bytes into float32
// samples in [-1, 1], one per 16-bit value; interleaved channels stay
// interleaved.
func Int16BytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		s := int16(b[2*i]) | int16(b[2*i+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16Bytes encodes float32 samples (mono or interleaved) in [-1, 1] into
// little-endian 16-bit PCM bytes, clamping out-of-range input.
func Float32ToInt16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// Uint8ToFloat32 decodes unsigned 8-bit PCM (as used by malgo's FormatU8)
// into float32 samples in [-1, 1], one per byte; interleaved channels stay
// interleaved.
func Uint8ToFloat32(b []byte) []float32 {
	out := make([]float32, len(b))
	for i, v := range b {
		out[i] = (float32(v) - 128) / 128.0
	}
	return out
}

// Float32ToUint8 encodes float32 samples (mono or interleaved) into
// unsigned 8-bit PCM.
func Float32ToUint8(samples []float32) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = byte(s*127 + 128)
	}
	return out
}

// PeakAbs returns the maximum absolute sample value in samples.
func PeakAbs(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	return peak
}

// PeakNormalize scales samples in place so the loudest sample hits target
// (e.g. 0.95), leaving headroom before clipping. A silent chunk is left
// untouched.
func PeakNormalize(samples []float32, target float32) {
	peak := PeakAbs(samples)
	if peak == 0 {
		return
	}
	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}
}
