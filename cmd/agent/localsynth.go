package main

import (
	"context"
	"fmt"
	"math"

	"github.com/vocalrelay/vocalrelay/pkg/assets"
	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
	ttsProvider "github.com/vocalrelay/vocalrelay/pkg/providers/tts"
)

const localVoiceModelName = "kokoro.onnx"
const localSynthSampleRate = 24000

// newLocalSynth builds the pluggable synth function LocalTTS drives. A real
// on-device model would load once behind the warm-up call and run inference
// per chunk here; this resolves the model asset the same way a real model
// would and produces a single sine tone whose length grows with the text
// (see toneForVoice) so the rest of the pipeline (chunking, resampling,
// gating) is exercised end to end.
func newLocalSynth() ttsProvider.SynthFunc {
	return func(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]float32, int, error) {
		if _, err := assets.Resolve("tts", localVoiceModelName); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", orchestrator.ErrModelMissing, err)
		}
		return toneForVoice(voice, text, localSynthSampleRate), localSynthSampleRate, nil
	}
}

// toneForVoice generates a short sine tone whose pitch depends on voice and
// whose duration depends on text length, standing in for the absent neural
// model's output.
func toneForVoice(voice orchestrator.Voice, text string, sampleRate int) []float32 {
	freq := 160.0
	for i, v := range orchestrator.Voices {
		if v == voice {
			freq = 140.0 + float64(i)*12.0
			break
		}
	}
	durationSeconds := 0.08 * float64(len(text)+1)
	if durationSeconds > 4 {
		durationSeconds = 4
	}
	n := int(durationSeconds * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(0.2 * math.Sin(2*math.Pi*freq*t))
	}
	return out
}

// localModelAvailable reports whether the local backend's model asset is
// present, for the startup fatal-error check (spec.md §7 "model missing").
func localModelAvailable() bool {
	return assets.Available("tts", localVoiceModelName)
}
