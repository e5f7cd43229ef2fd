package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/vocalrelay/vocalrelay/pkg/audio"
	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
)

// HTTPTTS calls a synthesis server with a plain HTTP GET and a text/voice/
// lang query (no speed parameter is sent), and expects a RIFF/WAVE PCM
// response body - no
// persistent connection, no control-plane protocol. It resamples the
// response to outputRate (the device's negotiated playback rate) and
// peak-normalizes before chunking, so callers never have to special-case a
// backend's native sample rate.
type HTTPTTS struct {
	baseURL    string
	outputRate int
	client     *http.Client

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func NewHTTPTTS(baseURL string, outputRate int) *HTTPTTS {
	return &HTTPTTS{
		baseURL:    baseURL,
		outputRate: outputRate,
		client:     http.DefaultClient,
	}
}

func (t *HTTPTTS) Name() string {
	return "http-tts"
}

// chunkSamples is how many mono samples are delivered per StreamSynthesize
// callback - small enough to keep barge-in latency low, large enough that
// the bounded playback queue isn't dominated by per-chunk overhead.
const chunkSamples = 4410 // 100ms @ 44.1kHz

func (t *HTTPTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	samples, err := t.fetch(ctx, text, voice, lang)
	if err != nil {
		return nil, err
	}
	return audio.Float32ToInt16Bytes(samples), nil
}

func (t *HTTPTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	samples, err := t.fetch(ctx, text, voice, lang)
	if err != nil {
		return err
	}

	for offset := 0; offset < len(samples); offset += chunkSamples {
		end := offset + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onChunk(audio.Float32ToInt16Bytes(samples[offset:end])); err != nil {
			return err
		}
	}
	return nil
}

func (t *HTTPTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelFunc != nil {
		t.cancelFunc()
		t.cancelFunc = nil
	}
	return nil
}

func (t *HTTPTTS) fetch(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]float32, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancelFunc = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.cancelFunc != nil {
			t.cancelFunc = nil
		}
		t.mu.Unlock()
		cancel()
	}()

	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("text", text)
	q.Set("voice", string(voice))
	q.Set("lang", string(lang))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts server error (status %d): %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	info, err := audio.ParseWav(data)
	if err != nil {
		return nil, fmt.Errorf("parsing tts response: %w", err)
	}

	samples, err := info.ToMonoFloat32()
	if err != nil {
		return nil, err
	}

	if info.SampleRate != t.outputRate && t.outputRate > 0 {
		samples = audio.NewResampler(info.SampleRate, t.outputRate).Resample(samples)
	}

	audio.PeakNormalize(samples, 0.95)
	return samples, nil
}
