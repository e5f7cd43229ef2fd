package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func loudSamples(n int, amp float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = amp
	}
	return s
}

func TestManagedStream_Interruption(t *testing.T) {
	stt := &MockSTTProvider{transcribeResult: "hello"}
	llm := &MockLLMProvider{completeResult: "world"}
	tts := &MockTTSProvider{synthesizeResult: []byte{1, 2, 3}}
	vad := NewPeakVAD(0.1, 100*time.Millisecond)

	orch := NewWithVAD(stt, llm, tts, vad, DefaultConfig())
	session := NewConversationSession("test")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	loudChunk := loudSamples(50, 1.0)

	for i := 0; i < 20; i++ {
		stream.Write(loudChunk)
	}

	select {
	case ev := <-stream.Events():
		if ev.Type != UserSpeaking {
			t.Errorf("Expected USER_SPEAKING, got %v", ev.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("Timed out waiting for USER_SPEAKING")
	}
}

func TestManagedStream_GateOpenStillReportsUserSpeaking(t *testing.T) {
	stt := &MockSTTProvider{transcribeResult: "hello"}
	llm := &MockLLMProvider{completeResult: "world"}
	tts := &MockTTSProvider{synthesizeResult: []byte{1, 2, 3}}

	vad := NewPeakVAD(0.1, 100*time.Millisecond)

	orch := NewWithVAD(stt, llm, tts, vad, DefaultConfig())
	session := NewConversationSession("test")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// Playback just finished - gate is open. Write never consults the gate,
	// so speech is still detected.
	stream.NotifyAudioPlayed()

	loudChunk := loudSamples(50, 0.25)

	for i := 0; i < 20; i++ {
		stream.Write(loudChunk)
	}

	select {
	case ev := <-stream.Events():
		if ev.Type != UserSpeaking {
			t.Errorf("Expected USER_SPEAKING while the gate window was open, got %v", ev.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timed out waiting for USER_SPEAKING while the gate window was open")
	}

	stream.state.ClearGate()
	// End the first utterance so the next loud run is a fresh speech start.
	stream.vad.Reset()

	for i := 0; i < 20; i++ {
		stream.Write(loudChunk)
	}

	select {
	case ev := <-stream.Events():
		if ev.Type != UserSpeaking {
			t.Errorf("Expected USER_SPEAKING after the gate closed, got %v", ev.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timed out waiting for USER_SPEAKING after the gate closed")
	}
}

// --- New tests for MinWords interruption and TTS abort behaviour ---

// mock streaming STT that emits configured transcripts (partial/final)
type MockStreamingSTT struct {
	steps []struct {
		text    string
		isFinal bool
		delay   time.Duration
	}
}

func (m *MockStreamingSTT) Transcribe(ctx context.Context, pcm []float32, sampleRate int, lang Language) (string, error) {
	return "", nil
}
func (m *MockStreamingSTT) Name() string { return "MockStreamingSTT" }
func (m *MockStreamingSTT) StreamTranscribe(ctx context.Context, sampleRate int, lang Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []float32, error) {
	ch := make(chan []float32, 8)
	go func() {
		for _, s := range m.steps {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
			_ = onTranscript(s.text, s.isFinal)
		}
	}()
	return ch, nil
}

func TestManagedStream_MinWordsInterruption(t *testing.T) {
	stt := &MockStreamingSTT{steps: []struct {
		text    string
		isFinal bool
		delay   time.Duration
	}{
		{text: "uh", isFinal: false, delay: 10 * time.Millisecond},
		{text: "i want coffee", isFinal: true, delay: 20 * time.Millisecond},
	}}
	llm := &MockLLMProvider{completeResult: "ok"}
	tts := &MockTTSProvider{synthesizeResult: []byte{1}}

	cfg := DefaultConfig()
	cfg.MinWordsToInterrupt = 3
	vad := NewPeakVAD(0.1, 50*time.Millisecond)
	orch := NewWithVAD(stt, llm, tts, vad, cfg)
	session := NewConversationSession("u1")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// simulate assistant speaking
	stream.mu.Lock()
	stream.isSpeaking = true
	stream.mu.Unlock()

	// start streaming STT; transcripts will be evaluated against min-words
	stream.startStreamingSTT(stt)

	// ensure no Interrupted event after the 1-word partial
	select {
	case ev := <-stream.Events():
		if ev.Type == Interrupted {
			t.Fatalf("interrupted too early on partial")
		}
	case <-time.After(30 * time.Millisecond):
		// ok — no interruption yet
	}

	// now wait for the final transcript (3 words) which should trigger interrupt
	select {
	case ev := <-stream.Events():
		if ev.Type != Interrupted {
			t.Fatalf("expected Interrupted, got %v", ev.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for Interrupted event")
	}
}

// Mock TTS that streams indefinitely until Abort is called
type MockLongRunningTTS struct {
	abortCalled bool
	abortCh     chan struct{}
}

func (m *MockLongRunningTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return nil, nil
}
func (m *MockLongRunningTTS) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.abortCh:
			return fmt.Errorf("aborted")
		case <-ticker.C:
			if err := onChunk([]byte{0x01, 0x02}); err != nil {
				return err
			}
		}
	}
}
func (m *MockLongRunningTTS) Abort() error {
	m.abortCalled = true
	select {
	case <-m.abortCh:
		// already closed
	default:
		close(m.abortCh)
	}
	return nil
}
func (m *MockLongRunningTTS) Name() string { return "MockLongTTS" }

func TestManagedStream_TTSAbortOnInterruption(t *testing.T) {
	stt := &MockSTTProvider{transcribeResult: "user"}
	llm := &MockLLMProvider{completeResult: "assistant reply here"}
	tts := &MockLongRunningTTS{abortCh: make(chan struct{})}
	cfg := DefaultConfig()
	vad := NewPeakVAD(0.02, 100*time.Millisecond)
	orch := NewWithVAD(stt, llm, tts, vad, cfg)
	session := NewConversationSession("s1")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// start LLM+TTS in background
	go stream.runLLMAndTTS(context.Background(), "hello")

	// wait for BotSpeaking (arrives after BotThinking) to ensure TTS started
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-stream.Events():
			if ev.Type == BotSpeaking {
				goto started
			}
		case <-deadline:
			t.Fatal("timed out waiting for BotSpeaking")
		}
	}
started:

	// directly trigger an interruption (avoids VAD/emission races in unit test)
	stream.interrupt()

	// expect Abort to be called on TTS provider and Interrupt event to be emitted
	select {
	case ev := <-stream.Events():
		if ev.Type != Interrupted {
			t.Fatalf("expected Interrupted event, got %v", ev.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for Interrupted event")
	}

	if !tts.abortCalled {
		t.Fatal("expected TTS Abort() to be called on interruption")
	}
}

func TestManagedStream_InterruptDuringPendingResponse(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{completeResult: "ok"}
	tts := &MockTTSProvider{synthesizeResult: []byte("audio")}
	vad := NewPeakVAD(0.02, 50*time.Millisecond)
	orch := NewWithVAD(stt, llm, tts, vad, DefaultConfig())
	session := NewConversationSession("u2")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// simulate a pending response by setting responseCancel
	called := false
	stream.mu.Lock()
	stream.responseCancel = func() { called = true }
	stream.mu.Unlock()

	// write loud audio to trigger VADSpeechStart which should call internalInterrupt
	loudChunk := loudSamples(50, 1.0)
	for i := 0; i < 8; i++ {
		stream.Write(loudChunk)
	}

	// wait for Interrupted event (UserSpeaking may arrive first)
	timeout := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-stream.Events():
			if ev.Type == Interrupted {
				goto interrupted
			}
		case <-timeout:
			t.Fatal("timed out waiting for Interrupted event")
		}
	}
interrupted:

	if !called {
		t.Fatal("expected responseCancel to be invoked by internalInterrupt")
	}
}

func TestManagedStream_NoSelfInterruptDuringTTS(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{completeResult: "ok"}
	tts := &MockTTSProvider{synthesizeResult: []byte("audio")}
	vad := NewPeakVAD(0.02, 50*time.Millisecond)
	orch := NewWithVAD(stt, llm, tts, vad, DefaultConfig())
	session := NewConversationSession("u3")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// Simulate assistant currently speaking, with the gate open from recent
	// playback.
	stream.mu.Lock()
	stream.isSpeaking = true
	stream.mu.Unlock()
	stream.state.ExtendGate(200 * time.Millisecond)

	// write a short loud burst: fewer frames than the 3 consecutive frames
	// Write requires before a barge-in while the bot is speaking
	loudChunk := loudSamples(50, 0.5)
	for i := 0; i < 2; i++ {
		stream.Write(loudChunk)
	}

	// ensure we do NOT get Interrupted (self-interrupt) within a short window
	select {
	case ev := <-stream.Events():
		if ev.Type == Interrupted {
			t.Fatal("self-interrupt detected during TTS")
		}
	case <-time.After(150 * time.Millisecond):
		// OK — no interrupt
	}
}

func TestManagedStream_TranscriptInterruptWhileSpeaking(t *testing.T) {
	stt := &MockStreamingSTT{steps: []struct {
		text    string
		isFinal bool
		delay   time.Duration
	}{
		{text: "hola", isFinal: false, delay: 10 * time.Millisecond},
	}}
	llm := &MockLLMProvider{completeResult: "ok"}
	tts := &MockTTSProvider{synthesizeResult: []byte("audio")}
	cfg := DefaultConfig()
	cfg.MinWordsToInterrupt = 1
	vad := NewPeakVAD(0.02, 50*time.Millisecond)
	orch := NewWithVAD(stt, llm, tts, vad, cfg)
	session := NewConversationSession("u4")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	// assistant is speaking; no audio is written, so only the streaming
	// transcript can trigger the interrupt
	stream.mu.Lock()
	stream.isSpeaking = true
	stream.mu.Unlock()

	// start streaming STT; the partial "hola" should cause interrupt
	stream.startStreamingSTT(stt)

	select {
	case ev := <-stream.Events():
		if ev.Type != Interrupted {
			t.Fatalf("expected Interrupted from transcript, got %v", ev.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for Interrupted via transcript")
	}
}

// MockStreamingLLM emits each token in tokens as a separate Stream callback,
// so the phrase segmenter sees them one at a time instead of as one string.
type MockStreamingLLM struct {
	tokens []string
}

func (m *MockStreamingLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	full := ""
	for _, tok := range m.tokens {
		full += tok
	}
	return full, nil
}

func (m *MockStreamingLLM) Name() string { return "MockStreamingLLM" }

func (m *MockStreamingLLM) Stream(ctx context.Context, messages []Message, onToken func(string) error) error {
	for _, tok := range m.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

// countingTTS records the text of every SynthesizeStream call it receives,
// in call order.
type countingTTS struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return []byte("audio"), nil
}

func (c *countingTTS) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return onChunk([]byte("audio"))
}

func (c *countingTTS) Abort() error { return nil }
func (c *countingTTS) Name() string { return "countingTTS" }

func TestManagedStream_StreamedPhrasesReachTTSInOrder(t *testing.T) {
	llm := &MockStreamingLLM{tokens: []string{"First sentence.", " Second sentence.", " trailing"}}
	tts := &countingTTS{}
	vad := NewPeakVAD(0.02, 50*time.Millisecond)
	orch := NewWithVAD(&MockSTTProvider{}, llm, tts, vad, DefaultConfig())
	session := NewConversationSession("u5")

	stream := orch.NewManagedStream(context.Background(), session)
	defer stream.Close()

	stream.runLLMAndTTS(context.Background(), "hello")

	tts.mu.Lock()
	defer tts.mu.Unlock()
	if len(tts.texts) != 3 {
		t.Fatalf("expected 3 phrases dispatched to TTS, got %d: %v", len(tts.texts), tts.texts)
	}
	if tts.texts[0] != "First sentence" {
		t.Errorf("expected first phrase stripped of terminal period, got %q", tts.texts[0])
	}
	if tts.texts[1] != "Second sentence" {
		t.Errorf("expected second phrase, got %q", tts.texts[1])
	}
	if tts.texts[2] != "trailing" {
		t.Errorf("expected trailing partial phrase from flush, got %q", tts.texts[2])
	}
}
