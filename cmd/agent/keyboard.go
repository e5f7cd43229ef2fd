package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
	"golang.org/x/term"
)

// keyHandler owns the raw-mode terminal and translates single keypresses
// into barge-in / playback-control actions. It mirrors keyboard.rs's
// poll-then-dispatch loop, extended with the speed and voice-cycle bindings
// the original never had.
type keyHandler struct {
	state   *orchestrator.SharedState
	stream  *orchestrator.ManagedStream
	player  interface{ Clear() }
	session *orchestrator.ConversationSession

	onVoiceChange func(orchestrator.Voice)
	onQuit        func()
	now           func() time.Time

	lastEscape time.Time // zero if no lone Escape is pending
}

const doubleEscapeWindow = time.Second

func newKeyHandler(state *orchestrator.SharedState, stream *orchestrator.ManagedStream, player interface{ Clear() }, session *orchestrator.ConversationSession, onVoiceChange func(orchestrator.Voice), onQuit func()) *keyHandler {
	return &keyHandler{
		state:         state,
		stream:        stream,
		player:        player,
		session:       session,
		onVoiceChange: onVoiceChange,
		onQuit:        onQuit,
		now:           time.Now,
	}
}

// run puts stdin into raw mode and dispatches keypresses until stdin is
// closed, a Ctrl-C is read, or the terminal is restored by the caller. It
// returns once the terminal is no longer readable or a quit key was pressed.
func (k *keyHandler) run() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	r := bufio.NewReader(os.Stdin)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}

		switch b {
		case 0x03: // Ctrl-C
			k.onQuit()
			return
		case ' ':
			k.togglePause()
		case 0x1b: // Escape, possibly the start of an arrow-key sequence
			if r.Buffered() > 0 {
				k.handleEscapeSequence(r)
				continue
			}
			k.handleEscape()
		}
	}
}

// handleEscapeSequence consumes a buffered CSI sequence (ESC '[' letter),
// used for arrow keys, and dispatches the speed/voice bindings. A bare
// Escape with nothing queued behind it falls through to handleEscape
// instead.
func (k *keyHandler) handleEscapeSequence(r *bufio.Reader) {
	b2, err := r.ReadByte()
	if err != nil || b2 != '[' {
		k.handleEscape()
		return
	}
	b3, err := r.ReadByte()
	if err != nil {
		return
	}
	switch b3 {
	case 'A': // Up
		k.state.SetSpeed(k.state.Speed() + 0.1)
	case 'B': // Down
		k.state.SetSpeed(k.state.Speed() - 0.1)
	case 'C': // Right
		k.cycleVoice(1)
	case 'D': // Left
		k.cycleVoice(-1)
	}
}

func (k *keyHandler) cycleVoice(dir int) {
	if k.session == nil || k.onVoiceChange == nil {
		return
	}
	current := k.session.GetCurrentVoice()
	idx := 0
	for i, v := range orchestrator.Voices {
		if v == current {
			idx = i
			break
		}
	}
	n := len(orchestrator.Voices)
	idx = ((idx+dir)%n + n) % n
	k.onVoiceChange(orchestrator.Voices[idx])
}

// togglePause implements the space-bar binding: it mutes capture
// (recording_paused, read by main's capture callback) and tells the device
// callback to hold the playback queue and emit silence without draining it
// (paused), so playback resumes exactly where it left off when unpaused.
func (k *keyHandler) togglePause() {
	next := !k.state.RecordingPaused()
	k.state.SetRecordingPaused(next)
	k.state.SetPaused(next)
}

// handleEscape implements the single vs. double Escape distinction: the
// first press always stops whatever is currently playing; a second press
// within doubleEscapeWindow additionally cancels the in-flight turn.
func (k *keyHandler) handleEscape() {
	if k.player != nil {
		k.player.Clear()
	}
	k.state.ClearGate()

	now := k.now()
	if !k.lastEscape.IsZero() && now.Sub(k.lastEscape) < doubleEscapeWindow {
		k.lastEscape = time.Time{}
		if k.stream != nil {
			k.stream.Interrupt()
		}
		return
	}
	k.lastEscape = now
}

func printVoiceTable() {
	fmt.Println("Available voices:")
	for _, v := range orchestrator.Voices {
		fmt.Printf("  %s\n", v)
	}
}
