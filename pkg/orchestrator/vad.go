package orchestrator

import (
	"time"
)

// PeakVAD is a peak-amplitude voice activity detector: it fires on the
// maximum absolute sample in a chunk crossing a threshold, not on RMS or
// spectral energy. Peak detection reacts a frame earlier than RMS on sharp
// onsets (plosives, claps) which matters for barge-in latency, at the cost
// of being noisier on hiss; hysteresis below absorbs that noise.
type PeakVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastPeak          float64
}

// NewPeakVAD creates a peak-based VAD. threshold is full-scale peak
// amplitude in [0,1]; silenceLimit is how long peak must stay below
// threshold before a SPEECH_END fires.
func NewPeakVAD(threshold float64, silenceLimit time.Duration) *PeakVAD {
	return &PeakVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 7,
	}
}

func (v *PeakVAD) SetMinConfirmed(count int)      { v.minConfirmed = count }
func (v *PeakVAD) MinConfirmed() int              { return v.minConfirmed }
func (v *PeakVAD) SetThreshold(threshold float64) { v.threshold = threshold }
func (v *PeakVAD) Threshold() float64             { return v.threshold }
func (v *PeakVAD) LastPeak() float64              { return v.lastPeak }
func (v *PeakVAD) IsSpeaking() bool               { return v.isSpeaking }

func (v *PeakVAD) Process(chunk []float32) (*VADEvent, error) {
	peak := peakAbs(chunk)
	v.lastPeak = peak
	now := time.Now()

	if peak > v.threshold {
		v.consecutiveFrames++
		if !v.isSpeaking {
			if v.consecutiveFrames >= v.minConfirmed {
				v.isSpeaking = true
				return &VADEvent{Type: VADSpeechStart, Timestamp: now.UnixMilli()}, nil
			}
			return nil, nil
		}
		v.silenceStart = time.Time{}
		return nil, nil
	}

	v.consecutiveFrames = 0

	if v.isSpeaking {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		}

		if now.Sub(v.silenceStart) >= v.silenceLimit {
			v.isSpeaking = false
			v.silenceStart = time.Time{}
			return &VADEvent{Type: VADSpeechEnd, Timestamp: now.UnixMilli()}, nil
		}
	}

	return &VADEvent{Type: VADSilence, Timestamp: now.UnixMilli()}, nil
}

func (v *PeakVAD) Name() string {
	return "peak_vad"
}

func (v *PeakVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
}

func (v *PeakVAD) Clone() VADProvider {
	return &PeakVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
	}
}

// peakAbs returns the maximum absolute sample value in chunk, or 0 for an
// empty chunk.
func peakAbs(chunk []float32) float64 {
	var peak float32
	for _, s := range chunk {
		a := s
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	return float64(peak)
}
