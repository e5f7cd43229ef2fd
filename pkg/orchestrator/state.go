package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// SharedState is the single block of cross-goroutine mutable state threaded
// through capture, playback, and the turn orchestrator, so none of those
// components needs its own copy of epoch/gate/pause bookkeeping.
type SharedState struct {
	epoch atomic.Uint64

	playbackActive  atomic.Bool
	paused          atomic.Bool
	recordingPaused atomic.Bool

	mu        sync.Mutex
	gateUntil time.Time
	volume    float64
	speed     float64

	stopAll  chan struct{}
	stopOnce sync.Once
}

// NewSharedState returns a SharedState with volume and speed at unity.
func NewSharedState() *SharedState {
	return &SharedState{
		volume:  1.0,
		speed:   1.0,
		stopAll: make(chan struct{}, 1),
	}
}

// Epoch returns the current interrupt epoch. Any asynchronous work tagged
// with an older value is stale and must discard its result.
func (s *SharedState) Epoch() uint64 {
	return s.epoch.Load()
}

// BumpEpoch invalidates every operation tagged with the previous epoch and
// returns the new one. Called on every barge-in and whenever an in-flight
// turn is interrupted or superseded; turn completion does not bump it.
func (s *SharedState) BumpEpoch() uint64 {
	return s.epoch.Add(1)
}

// StaleEpoch reports whether tagged no longer matches the live epoch.
func (s *SharedState) StaleEpoch(tagged uint64) bool {
	return tagged != s.epoch.Load()
}

func (s *SharedState) SetPlaybackActive(v bool) { s.playbackActive.Store(v) }
func (s *SharedState) PlaybackActive() bool     { return s.playbackActive.Load() }

func (s *SharedState) SetPaused(v bool) { s.paused.Store(v) }
func (s *SharedState) Paused() bool     { return s.paused.Load() }

func (s *SharedState) SetRecordingPaused(v bool) { s.recordingPaused.Store(v) }
func (s *SharedState) RecordingPaused() bool     { return s.recordingPaused.Load() }

// ExtendGate pushes the gate window hangover past now; it never shortens a
// window that already ends later. InGate reports the window; nothing in the
// capture or turn pipeline reads it, so it neither suppresses nor
// attributes VAD transitions.
func (s *SharedState) ExtendGate(hangover time.Duration) {
	s.mu.Lock()
	until := time.Now().Add(hangover)
	if until.After(s.gateUntil) {
		s.gateUntil = until
	}
	s.mu.Unlock()
}

// InGate reports whether the gate window is currently open.
func (s *SharedState) InGate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.gateUntil)
}

// ClearGate closes the gate window immediately, e.g. when the user stops
// playback from the keyboard.
func (s *SharedState) ClearGate() {
	s.mu.Lock()
	s.gateUntil = time.Time{}
	s.mu.Unlock()
}

// SetVolume clamps v to [0,1] and stores it.
func (s *SharedState) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *SharedState) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetSpeed clamps v to [0.5, 8.0] and stores it.
func (s *SharedState) SetSpeed(v float64) {
	if v < 0.5 {
		v = 0.5
	} else if v > 8.0 {
		v = 8.0
	}
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
}

func (s *SharedState) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// RequestStopAll signals every goroutine observing StopAll to shut down.
// It is idempotent and safe to call from any thread, including a signal
// handler.
func (s *SharedState) RequestStopAll() {
	s.stopOnce.Do(func() { close(s.stopAll) })
}

func (s *SharedState) StopAll() <-chan struct{} {
	return s.stopAll
}
