package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Capturer opens a capture-only malgo device and delivers mono float32 PCM
// chunks, in the device's native sample rate, to onChunk from the audio
// driver's own callback goroutine. onChunk must not block.
type Capturer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format DeviceFormat
}

// NewCapturer opens the default capture device at the given sample rate
// and channel count, preferring 16-bit PCM (malgo's most broadly supported
// format) the way the teacher's duplex device did.
func NewCapturer(sampleRate, channels int, onChunk func(Chunk)) (*Capturer, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	const format = FormatS16

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			if len(pInput) == 0 {
				return
			}
			samples := decodeDevice(format, channels, pInput)
			onChunk(Chunk{Samples: samples, SampleRate: sampleRate})
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("init capture device: %w", err)
	}

	return &Capturer{ctx: mctx, device: device, format: format}, nil
}

func (c *Capturer) Start() error { return c.device.Start() }
func (c *Capturer) Stop() error  { return c.device.Stop() }

func (c *Capturer) Close() {
	c.device.Uninit()
	c.ctx.Uninit()
}
