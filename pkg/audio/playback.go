package audio

import (
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// PlaybackState is the subset of the shared control-plane state the device
// callback consults on every buffer fill: current volume, the playback-pause
// flag, and the playback-active/gate flags it reports back. Satisfied
// structurally by orchestrator.SharedState - this package never imports the
// orchestrator package.
type PlaybackState interface {
	Volume() float64
	Paused() bool
	SetPlaybackActive(bool)
	ExtendGate(time.Duration)
}

// Player is a bounded, backpressured playback queue sitting on top of a
// malgo playback-only device. Producers push mono float32 chunks, which
// Push encodes to the negotiated device format and channel count; the
// device callback drains the encoded bytes at its own pace. When the queue
// is empty the callback emits silence rather than blocking, and Push
// blocks the producer once the queue reaches its cap - this is how
// backpressure keeps the TTS pipeline from racing ahead of the speaker.
type Player struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format DeviceFormat

	channels int
	capBytes int
	state    PlaybackState
	hangover time.Duration

	mu            sync.Mutex
	cond          *sync.Cond
	buf           []byte
	emptyStreak   int
	onBufferEmpty func()
}

// NewPlayer opens the default playback device at the given sample rate
// and channel count, with a bounded queue capFrames long. state may be nil,
// in which case volume/pause are treated as always unity/unpaused. hangover
// is the gate-window extension applied each time the callback finds the
// volume at 0.
func NewPlayer(sampleRate, channels, capFrames int, state PlaybackState, hangover time.Duration, onBufferEmpty func()) (*Player, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	const format = FormatS16

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	p := &Player{
		format:        format,
		channels:      channels,
		capBytes:      capFrames * BytesPerFrame(format, channels),
		state:         state,
		hangover:      hangover,
		onBufferEmpty: onBufferEmpty,
	}
	p.cond = sync.NewCond(&p.mu)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) {
			p.fill(pOutput)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, err
	}
	p.ctx = mctx
	p.device = device
	return p, nil
}

// Push encodes mono float32 samples to the device format and appends them
// to the playback queue, blocking while the queue is at capacity so a
// fast producer (the TTS stream) cannot run arbitrarily far ahead of the
// speaker.
func (p *Player) Push(samples []float32) {
	encoded := encodeDevice(p.format, p.channels, samples)

	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) >= p.capBytes {
		p.cond.Wait()
	}
	p.buf = append(p.buf, encoded...)
	p.cond.Broadcast()
}

// Clear drops all queued but not yet played audio - used on barge-in, when
// the in-flight turn's remaining speech must be silenced immediately.
func (p *Player) Clear() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.cond.Broadcast()
	p.mu.Unlock()
}

// QueuedFrames reports how many sample frames are currently buffered,
// for exposing as a depth gauge.
func (p *Player) QueuedFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	bpf := BytesPerFrame(p.format, p.channels)
	if bpf == 0 {
		return 0
	}
	return len(p.buf) / bpf
}

func (p *Player) fill(dst []byte) {
	// Paused: hold the queue exactly as-is and emit silence without
	// draining, so playback picks up where it left off once resumed.
	if p.state != nil && p.state.Paused() {
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	// Volume 0 (forced mute, e.g. on barge-in): drop whatever was queued,
	// report playback as no longer active, extend the gate window by
	// hangover, then emit silence.
	if p.state != nil && p.state.Volume() == 0 {
		p.mu.Lock()
		p.buf = p.buf[:0]
		p.cond.Broadcast()
		p.mu.Unlock()

		p.state.SetPlaybackActive(false)
		p.state.ExtendGate(p.hangover)

		for i := range dst {
			dst[i] = 0
		}
		return
	}

	p.mu.Lock()
	n := copy(dst, p.buf)
	p.buf = p.buf[n:]
	p.cond.Broadcast()
	empty := len(p.buf) == 0
	if empty {
		p.emptyStreak++
	} else {
		p.emptyStreak = 0
	}
	streak := p.emptyStreak
	p.mu.Unlock()

	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}

	if p.state != nil {
		p.state.SetPlaybackActive(n > 0)
	}

	if empty && streak == 1 && p.onBufferEmpty != nil {
		p.onBufferEmpty()
	}
}

func (p *Player) Start() error { return p.device.Start() }
func (p *Player) Stop() error  { return p.device.Stop() }

func (p *Player) Close() {
	p.device.Uninit()
	p.ctx.Uninit()
}
