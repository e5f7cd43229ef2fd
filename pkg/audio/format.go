package audio

import "fmt"

// DeviceFormat identifies the sample encoding a capture/playback device
// negotiated, independent of the malgo constant so this package does not
// leak the malgo type into callers that only need format-agnostic chunks.
type DeviceFormat int

const (
	FormatF32 DeviceFormat = iota
	FormatS16
	FormatU8
)

func (f DeviceFormat) String() string {
	switch f {
	case FormatF32:
		return "f32"
	case FormatS16:
		return "s16"
	case FormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// decodeDevice converts a raw interleaved device buffer in the given format
// and channel count into mono float32 PCM. This is the one place that
// understands all three device sample encodings - capture and playback
// both funnel through it (and its inverse, encodeDevice) instead of each
// maintaining their own per-format callback.
func decodeDevice(format DeviceFormat, channels int, raw []byte) []float32 {
	var interleaved []float32
	switch format {
	case FormatF32:
		interleaved = F32BytesToFloat32(raw)
	case FormatS16:
		interleaved = Int16BytesToFloat32(raw)
	case FormatU8:
		interleaved = Uint8ToFloat32(raw)
	default:
		panic(fmt.Sprintf("audio: unsupported device format %v", format))
	}
	return ToMono(interleaved, channels)
}

// encodeDevice converts mono float32 PCM into a raw interleaved device
// buffer in the given format and channel count.
func encodeDevice(format DeviceFormat, channels int, mono []float32) []byte {
	interleaved := FromMono(mono, channels)
	switch format {
	case FormatF32:
		return Float32ToF32Bytes(interleaved)
	case FormatS16:
		return Float32ToInt16Bytes(interleaved)
	case FormatU8:
		return Float32ToUint8(interleaved)
	default:
		panic(fmt.Sprintf("audio: unsupported device format %v", format))
	}
}

// BytesPerFrame returns the byte size of one interleaved sample frame for
// the given format and channel count.
func BytesPerFrame(format DeviceFormat, channels int) int {
	var bytesPerSample int
	switch format {
	case FormatF32:
		bytesPerSample = 4
	case FormatS16:
		bytesPerSample = 2
	case FormatU8:
		bytesPerSample = 1
	}
	return bytesPerSample * channels
}
