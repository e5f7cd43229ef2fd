package main

import (
	"testing"
	"time"

	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
)

type fakePlayer struct{ cleared int }

func (f *fakePlayer) Clear() { f.cleared++ }

func TestKeyHandler_TogglePause(t *testing.T) {
	state := orchestrator.NewSharedState()
	k := newKeyHandler(state, nil, nil, nil, nil, nil)

	k.togglePause()
	if !state.RecordingPaused() {
		t.Fatal("expected recording paused after toggle")
	}
	if !state.Paused() {
		t.Fatal("expected playback paused after toggle")
	}
	k.togglePause()
	if state.RecordingPaused() {
		t.Fatal("expected recording resumed after second toggle")
	}
	if state.Paused() {
		t.Fatal("expected playback resumed after second toggle")
	}
}

func TestKeyHandler_SingleEscapeClearsPlaybackOnly(t *testing.T) {
	state := orchestrator.NewSharedState()
	player := &fakePlayer{}
	k := newKeyHandler(state, nil, player, nil, nil, nil)
	k.now = func() time.Time { return time.Unix(100, 0) }

	k.handleEscape()

	if player.cleared != 1 {
		t.Fatalf("expected playback cleared once, got %d", player.cleared)
	}
	if k.lastEscape.IsZero() {
		t.Fatal("expected lastEscape recorded for double-escape detection")
	}
}

func TestKeyHandler_DoubleEscapeWithinWindowCancelsTurn(t *testing.T) {
	state := orchestrator.NewSharedState()
	player := &fakePlayer{}
	session := orchestrator.NewConversationSession("u1")
	k := newKeyHandler(state, nil, player, session, nil, nil)

	t0 := time.Unix(100, 0)
	k.now = func() time.Time { return t0 }
	k.handleEscape()

	k.now = func() time.Time { return t0.Add(500 * time.Millisecond) }
	k.handleEscape()

	if !k.lastEscape.IsZero() {
		t.Fatal("expected lastEscape reset after double-escape fires")
	}
	if player.cleared != 2 {
		t.Fatalf("expected playback cleared on both presses, got %d", player.cleared)
	}
}

func TestKeyHandler_EscapeOutsideWindowDoesNotDoubleUp(t *testing.T) {
	state := orchestrator.NewSharedState()
	player := &fakePlayer{}
	k := newKeyHandler(state, nil, player, nil, nil, nil)

	t0 := time.Unix(100, 0)
	k.now = func() time.Time { return t0 }
	k.handleEscape()

	k.now = func() time.Time { return t0.Add(2 * time.Second) }
	k.handleEscape()

	if k.lastEscape.IsZero() {
		t.Fatal("expected the second press to start a fresh pending window, not reset to zero")
	}
}

func TestKeyHandler_CycleVoiceWrapsAround(t *testing.T) {
	session := orchestrator.NewConversationSession("u1")
	session.CurrentVoice = orchestrator.Voices[len(orchestrator.Voices)-1]

	var got orchestrator.Voice
	k := newKeyHandler(orchestrator.NewSharedState(), nil, nil, session, func(v orchestrator.Voice) { got = v }, nil)

	k.cycleVoice(1)
	if got != orchestrator.Voices[0] {
		t.Errorf("expected wraparound to first voice, got %q", got)
	}
}

func TestKeyHandler_CycleVoiceBackwardsWrapsAround(t *testing.T) {
	session := orchestrator.NewConversationSession("u1")
	session.CurrentVoice = orchestrator.Voices[0]

	var got orchestrator.Voice
	k := newKeyHandler(orchestrator.NewSharedState(), nil, nil, session, func(v orchestrator.Voice) { got = v }, nil)

	k.cycleVoice(-1)
	if got != orchestrator.Voices[len(orchestrator.Voices)-1] {
		t.Errorf("expected wraparound to last voice, got %q", got)
	}
}

func TestKeyHandler_SpeedAdjustClamped(t *testing.T) {
	state := orchestrator.NewSharedState()
	state.SetSpeed(0.5)
	state.SetSpeed(state.Speed() - 0.1)
	if state.Speed() != 0.5 {
		t.Errorf("expected speed clamped at 0.5, got %v", state.Speed())
	}

	state.SetSpeed(8.0)
	state.SetSpeed(state.Speed() + 0.1)
	if state.Speed() != 8.0 {
		t.Errorf("expected speed clamped at 8.0, got %v", state.Speed())
	}
}
