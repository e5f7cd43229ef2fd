package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WavInfo describes a parsed RIFF/WAVE PCM stream.
type WavInfo struct {
	SampleRate int
	Channels   int
	BitsPerSample int
	PCM        []byte // raw little-endian PCM data, unconverted
}

// ParseWav reads a RIFF/WAVE container holding integer PCM data (format
// code 1) and returns its format and payload. It tolerates extra chunks
// between "fmt " and "data", which HTTP TTS backends commonly include
// (e.g. "LIST").
func ParseWav(data []byte) (WavInfo, error) {
	var info WavInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, fmt.Errorf("not a RIFF/WAVE stream")
	}

	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return info, fmt.Errorf("fmt chunk too short")
			}
			fmtCode := binary.LittleEndian.Uint16(data[body : body+2])
			if fmtCode != 1 && fmtCode != 0xFFFE {
				return info, fmt.Errorf("unsupported wav format code %d (only PCM supported)", fmtCode)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			info.PCM = data[body : body+chunkSize]
			if haveFmt {
				return info, nil
			}
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if !haveFmt {
		return info, fmt.Errorf("wav stream missing fmt chunk")
	}
	if info.PCM == nil {
		return info, fmt.Errorf("wav stream missing data chunk")
	}
	return info, nil
}

// ToMonoFloat32 converts the parsed PCM payload to mono float32 samples,
// downmixing multi-channel audio. Only 8 and 16-bit PCM are supported.
func (w WavInfo) ToMonoFloat32() ([]float32, error) {
	switch w.BitsPerSample {
	case 16:
		interleaved := Int16BytesToFloat32(w.PCM)
		return ToMono(interleaved, w.Channels), nil
	case 8:
		interleaved := Uint8ToFloat32(w.PCM)
		return ToMono(interleaved, w.Channels), nil
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d", w.BitsPerSample)
	}
}

func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) 
	binary.Write(buf, binary.LittleEndian, uint16(2))            
	binary.Write(buf, binary.LittleEndian, uint16(16))           

	
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
