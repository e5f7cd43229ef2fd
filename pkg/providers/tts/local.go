package tts

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vocalrelay/vocalrelay/pkg/audio"
	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
)

// SynthFunc renders one chunk of text to mono PCM and reports the sample
// rate it was rendered at. No local neural TTS engine binding ships in this
// repo - wiring a real one (kokoro, piper, coqui) means plugging its call
// in here, nothing else changes.
type SynthFunc func(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) (samples []float32, sampleRate int, err error)

// maxWordsPerChunk bounds how much text is handed to synth in one call so
// StreamSynthesize can start delivering audio, and Abort can take effect,
// without waiting on an entire response being rendered first.
const maxWordsPerChunk = 50

// LocalTTS lazily initializes its synth engine once per process and reuses
// it across calls - real local TTS engines carry enough model-load cost
// that per-call init would dominate latency.
type LocalTTS struct {
	synth      SynthFunc
	outputRate int

	initOnce sync.Once
	initErr  error

	aborted atomic.Bool
}

func NewLocalTTS(synth SynthFunc, outputRate int) *LocalTTS {
	return &LocalTTS{synth: synth, outputRate: outputRate}
}

func (t *LocalTTS) Name() string {
	return "local-tts"
}

func (t *LocalTTS) warmUp(ctx context.Context) error {
	t.initOnce.Do(func() {
		_, _, t.initErr = t.synth(ctx, "warm up", orchestrator.VoiceF1, orchestrator.LanguageEn)
	})
	return t.initErr
}

func (t *LocalTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	var out []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *LocalTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	if err := t.warmUp(ctx); err != nil {
		return err
	}

	t.aborted.Store(false)

	for _, piece := range chunkWords(text, maxWordsPerChunk) {
		if t.aborted.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		samples, rate, err := t.synth(ctx, piece, voice, lang)
		if err != nil {
			return err
		}
		if t.outputRate > 0 && rate != t.outputRate {
			samples = audio.NewResampler(rate, t.outputRate).Resample(samples)
		}
		audio.PeakNormalize(samples, 0.95)

		if err := onChunk(audio.Float32ToInt16Bytes(samples)); err != nil {
			return err
		}
	}
	return nil
}

func (t *LocalTTS) Abort() error {
	t.aborted.Store(true)
	return nil
}

// chunkWords splits text into pieces of at most n words, preserving order.
// Splitting on words rather than bytes keeps a chunk boundary from ever
// landing mid-word.
func chunkWords(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
