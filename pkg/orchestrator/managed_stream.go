package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type ManagedStream struct {
	orch    *Orchestrator
	session *ConversationSession
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan OrchestratorEvent
	vad     VADProvider
	state   *SharedState

	audioBuf []float32
	mu       sync.Mutex

	pipelineCtx       context.Context
	pipelineCancel    context.CancelFunc
	sttChan           chan<- []float32
	isSpeaking        bool
	isThinking        bool
	lastInterruptedAt time.Time
	lastAudioSentAt   time.Time
	userSpeechEndTime time.Time // When user stopped speaking (VADSpeechEnd)
	botSpeakStartTime time.Time // When bot started TTS playback

	// Last captured user turn audio (mono float32 PCM). Filled when STT starts
	// or during streaming STT so the CLI can export raw audio for debugging.
	lastUserAudio []float32

	// Per-turn instrumentation timestamps (set/cleared each user turn)
	sttStartTime      time.Time // when STT started (batch or streaming)
	sttEndTime        time.Time // when final transcript was produced
	llmStartTime      time.Time // when LLM generation started
	llmEndTime        time.Time // when LLM generation finished
	ttsStartTime      time.Time // when TTS synthesis began
	ttsFirstChunkTime time.Time // when first audio chunk was emitted by TTS
	ttsEndTime        time.Time // when TTS finished

	responseCancel   context.CancelFunc
	ttsCancel        context.CancelFunc // Track TTS context for fast abort
	userInterrupting bool               // Flag to block audio emission during user barge-in
	closeOnce        sync.Once
}

func NewManagedStream(ctx context.Context, o *Orchestrator, session *ConversationSession) *ManagedStream {
	mCtx, mCancel := context.WithCancel(ctx)

	var streamVAD VADProvider
	if o.vad != nil {
		streamVAD = o.vad.Clone()
	}

	ms := &ManagedStream{
		orch:    o,
		session: session,
		ctx:     mCtx,
		cancel:  mCancel,
		events:  make(chan OrchestratorEvent, 1024),
		vad:     streamVAD,
		state:   o.State(),
	}

	return ms
}

// LastPeak returns the last peak amplitude computed by the stream's internal
// VAD (returns 0.0 when unavailable).
func (ms *ManagedStream) LastPeak() float64 {
	if ms.vad == nil {
		return 0.0
	}
	if peakVAD, ok := ms.vad.(*PeakVAD); ok {
		return peakVAD.LastPeak()
	}
	return 0.0
}

// IsUserSpeaking reports the internal VAD speaking state for this stream.
func (ms *ManagedStream) IsUserSpeaking() bool {
	if ms.vad == nil {
		return false
	}
	if peakVAD, ok := ms.vad.(*PeakVAD); ok {
		return peakVAD.IsSpeaking()
	}
	return false
}

// Interrupt immediately stops the bot from speaking. This is an explicit way to
// interrupt regardless of VAD state - useful for UI buttons or external signals.
// It clears audio playback, cancels TTS/LLM, and emits an Interrupted event.
func (ms *ManagedStream) Interrupt() {
	ms.mu.Lock()
	ms.userInterrupting = true
	ms.mu.Unlock()
	ms.internalInterrupt()
}

// countWords returns the number of whitespace-separated words in s.
func countWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

const speechEndHold = 300 * time.Millisecond

// leadInSamples is how much pre-roll audio Write retains ahead of a detected
// speech start, so the first syllable of an utterance isn't clipped.
const leadInSamples = 4410 // ~100ms @ 44.1kHz mono

// rollingBufCap bounds the pre-speech rolling buffer so a long silence
// doesn't grow audioBuf unboundedly.
const rollingBufCap = 88200 // ~2s @ 44.1kHz mono

func (ms *ManagedStream) Write(chunk []float32) error {
	if ms.vad == nil {
		return fmt.Errorf("VAD not configured for this stream")
	}

	ms.mu.Lock()
	speaking := ms.isSpeaking
	ms.mu.Unlock()

	// While the bot is speaking, require a sustained run of above-threshold
	// frames before treating it as a barge-in, so transient noise doesn't
	// cancel playback. Hold the configured floor otherwise.
	if peakVAD, ok := ms.vad.(*PeakVAD); ok {
		floor := 1
		if speaking && peakVAD.MinConfirmed() < 3 {
			peakVAD.SetMinConfirmed(3)
		} else if !speaking && peakVAD.MinConfirmed() != floor {
			peakVAD.SetMinConfirmed(floor)
		}
	}

	event, err := ms.vad.Process(chunk)
	if err != nil {
		return err
	}

	if event != nil && event.Type != VADSilence {
		switch event.Type {
		case VADSpeechStart:
			// The gate window is not consulted here: a barge-in fires
			// even while the gate is open, so the user can interrupt
			// mid-hangover.
			ms.mu.Lock()
			wasSpeaking := ms.isSpeaking
			ms.mu.Unlock()
			playbackActive := ms.state.PlaybackActive()

			if wasSpeaking || playbackActive {
				// Immediate user barge-in: cut output volume and mark
				// playback inactive right away so the device callback stops
				// producing audio before the async cancellation below even
				// runs, bump the epoch to invalidate any in-flight
				// STT/LLM/TTS work, cancel the current pipeline, and restart
				// streaming STT for the new turn. The audio buffer is kept -
				// it holds the lead-in for the new turn.
				ms.state.SetVolume(0)
				ms.state.SetPlaybackActive(false)

				ms.mu.Lock()
				ms.userInterrupting = true
				pipelineCancel := ms.pipelineCancel
				ms.pipelineCancel = nil
				ms.sttChan = nil
				ms.mu.Unlock()
				ms.state.BumpEpoch()

				if pipelineCancel != nil {
					pipelineCancel()
				}

				ms.emit(UserSpeaking, nil)
				ms.internalInterrupt()
				if sProvider, ok := ms.orch.stt.(StreamingSTTProvider); ok {
					ms.startStreamingSTT(sProvider)
				}
				break
			}

			// Not speaking: a normal new user turn.
			ms.emit(UserSpeaking, nil)
			ms.mu.Lock()
			ms.sttStartTime = time.Time{}
			ms.sttEndTime = time.Time{}
			ms.llmStartTime = time.Time{}
			ms.llmEndTime = time.Time{}
			ms.ttsStartTime = time.Time{}
			ms.ttsFirstChunkTime = time.Time{}
			ms.ttsEndTime = time.Time{}
			ms.lastUserAudio = nil
			ms.mu.Unlock()

			ms.internalInterrupt()

			if sProvider, ok := ms.orch.stt.(StreamingSTTProvider); ok {
				ms.startStreamingSTT(sProvider)
			}

		case VADSpeechEnd:
			ms.mu.Lock()
			ms.userSpeechEndTime = time.Now()
			ms.mu.Unlock()
			ms.emit(UserStopped, nil)

			// Capture current audio buffer and hold briefly before finalizing
			// the turn. If speech resumes during the hold, put the captured
			// audio back and don't transcribe yet - this prevents premature
			// truncation caused by brief pauses mid-utterance.
			ms.mu.Lock()
			sttChan := ms.sttChan
			if sttChan != nil {
				ms.sttChan = nil
				ms.mu.Unlock()
				// Don't cancel the context here - let the streaming STT
				// provider finish processing audio it has already received.
			} else {
				audioData := make([]float32, len(ms.audioBuf))
				copy(audioData, ms.audioBuf)
				ms.audioBuf = ms.audioBuf[:0]
				ms.mu.Unlock()

				go func(buf []float32) {
					t := time.NewTimer(speechEndHold)
					defer t.Stop()

					select {
					case <-t.C:
						if peakVAD, ok := ms.vad.(*PeakVAD); ok && peakVAD.IsSpeaking() {
							ms.mu.Lock()
							ms.audioBuf = append(ms.audioBuf, buf...)
							ms.mu.Unlock()
							return
						}
						ms.runBatchPipeline(buf)
					case <-ms.ctx.Done():
						return
					}
				}(audioData)
			}

		case VADSilence:
			// no-op
		}
	}

	ms.mu.Lock()
	sttChan := ms.sttChan
	if sttChan != nil {
		ms.lastUserAudio = append(ms.lastUserAudio, chunk...)
	}
	ms.mu.Unlock()

	if sttChan != nil {
		select {
		case sttChan <- chunk:
		default:
		}
	}

	isUserSpeaking := false
	if peakVAD, ok := ms.vad.(*PeakVAD); ok {
		isUserSpeaking = peakVAD.IsSpeaking()
	}

	ms.mu.Lock()
	ms.audioBuf = append(ms.audioBuf, chunk...)
	if !isUserSpeaking && len(ms.audioBuf) > rollingBufCap {
		ms.audioBuf = append([]float32{}, ms.audioBuf[len(ms.audioBuf)-leadInSamples:]...)
	}
	ms.mu.Unlock()

	return nil
}

func (ms *ManagedStream) startStreamingSTT(provider StreamingSTTProvider) {
	ctx, cancel := context.WithCancel(ms.ctx)

	currentEpoch := ms.state.Epoch()
	sampleRate := ms.orch.GetConfig().SampleRate

	sttChan, err := provider.StreamTranscribe(ctx, sampleRate, ms.session.GetCurrentLanguage(), func(transcript string, isFinal bool) error {
		if ms.state.StaleEpoch(currentEpoch) {
			return nil
		}

		ms.mu.Lock()
		speaking := ms.isSpeaking
		thinking := ms.isThinking
		ms.mu.Unlock()

		// When the bot is actively speaking, apply a word threshold so short
		// backchannels ("mhm") don't interrupt. When the bot is merely
		// thinking, interrupt immediately on any detected speech.
		if speaking {
			minWords := 1
			if ms.orch != nil {
				minWords = ms.orch.GetConfig().MinWordsToInterrupt
			}

			if minWords > 1 {
				if countWords(transcript) < minWords {
					if !isFinal {
						ms.emit(TranscriptPartial, transcript)
					}
					return nil
				}
				ms.internalInterrupt()
			} else if strings.TrimSpace(transcript) != "" {
				ms.internalInterrupt()
			}
		} else if thinking && strings.TrimSpace(transcript) != "" {
			ms.internalInterrupt()
		}

		if isFinal {
			ms.mu.Lock()
			ms.sttEndTime = time.Now()
			ms.mu.Unlock()

			ms.emit(TranscriptFinal, transcript)
			ms.session.AddMessage("user", transcript)
		} else {
			ms.emit(TranscriptPartial, transcript)
		}
		return nil
	})

	if err != nil {
		ms.emit(ErrorEvent, fmt.Sprintf("failed to start streaming STT: %v", err))
		cancel()
		return
	}

	ms.mu.Lock()
	ms.pipelineCtx = ctx
	ms.pipelineCancel = cancel
	ms.sttChan = sttChan
	ms.sttStartTime = time.Now()

	if len(ms.audioBuf) > 0 {
		data := make([]float32, len(ms.audioBuf))
		copy(data, ms.audioBuf)
		ms.lastUserAudio = append([]float32{}, data...)
		ms.audioBuf = ms.audioBuf[:0]
		ms.mu.Unlock()

		select {
		case sttChan <- data:
		default:
		}
		return
	}
	ms.mu.Unlock()
}

func (ms *ManagedStream) runBatchPipeline(audioData []float32) {
	sampleRate := ms.orch.GetConfig().SampleRate
	minMs := ms.orch.GetConfig().MinUtteranceMs
	if minMs > 0 && sampleRate > 0 {
		durationMs := float64(len(audioData)) * 1000.0 / float64(sampleRate)
		if durationMs < float64(minMs) {
			return
		}
	}

	ms.internalInterrupt()

	ms.mu.Lock()
	ctx, cancel := context.WithCancel(ms.ctx)
	ms.pipelineCtx = ctx
	ms.pipelineCancel = cancel
	ms.sttStartTime = time.Now()
	ms.lastUserAudio = append([]float32{}, audioData...)
	ms.mu.Unlock()
	defer cancel()

	ms.emit(BotThinking, nil)

	transcript, err := ms.orch.Transcribe(ctx, audioData, sampleRate, ms.session.GetCurrentLanguage())
	ms.mu.Lock()
	if err == nil {
		ms.sttEndTime = time.Now()
	}
	ms.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			ms.emit(ErrorEvent, fmt.Sprintf("transcription error: %v", err))
		}
		return
	}

	if transcript == "" {
		return
	}

	ms.mu.Lock()
	speaking := ms.isSpeaking
	ms.mu.Unlock()
	if speaking && ms.orch != nil && ms.orch.GetConfig().MinWordsToInterrupt > 1 {
		if countWords(transcript) < ms.orch.GetConfig().MinWordsToInterrupt {
			return
		}
		ms.internalInterrupt()
	}

	ms.emit(TranscriptFinal, transcript)
	ms.session.AddMessage("user", transcript)

	ms.runLLMAndTTS(ctx, transcript)
}

// runLLMAndTTS streams the LLM reply token by token through a phrase
// segmenter, dispatching each completed phrase to TTS as soon as it is
// ready rather than waiting for the full response - this is what lets the
// assistant start speaking the first sentence while the model is still
// generating the rest. A single goroutine drains the phrase queue so
// phrases reach TTS, and chunks within a phrase reach playback, strictly in
// generation order even though LLM streaming and TTS synthesis run
// concurrently.
func (ms *ManagedStream) runLLMAndTTS(ctx context.Context, transcript string) {
	ms.mu.Lock()

	if ms.responseCancel != nil {
		ms.responseCancel()
	}
	if ms.ttsCancel != nil {
		ms.ttsCancel()
	}

	rCtx, rCancel := context.WithCancel(ctx)
	ttsCtx, ttsCancel := context.WithCancel(rCtx)
	ms.responseCancel = rCancel
	ms.ttsCancel = ttsCancel
	ms.isThinking = true
	ms.mu.Unlock()

	defer rCancel()
	defer ttsCancel()

	ms.emit(BotThinking, nil)

	ms.mu.Lock()
	ms.llmStartTime = time.Now()
	ms.mu.Unlock()

	hangover := time.Duration(ms.orch.GetConfig().HangoverMs) * time.Millisecond
	segmenter := NewPhraseSegmenter()
	phrases := make(chan string, 8)

	var speakingStarted sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for phrase := range phrases {
			speakingStarted.Do(func() {
				ms.mu.Lock()
				ms.isSpeaking = true
				if ms.vad != nil {
					ms.vad.Reset()
				}
				ms.botSpeakStartTime = time.Now()
				ms.ttsStartTime = ms.botSpeakStartTime
				ms.mu.Unlock()
				ms.state.SetVolume(1.0)
				ms.emit(BotSpeaking, nil)
			})

			err := ms.orch.SynthesizeStream(ttsCtx, phrase, ms.session.GetCurrentVoice(), ms.session.GetCurrentLanguage(), func(chunk []byte) error {
				select {
				case <-ttsCtx.Done():
					return ttsCtx.Err()
				default:
					ms.mu.Lock()
					ms.lastAudioSentAt = time.Now()
					if ms.ttsFirstChunkTime.IsZero() {
						ms.ttsFirstChunkTime = time.Now()
					}
					ms.mu.Unlock()

					// Extend the gate window for every chunk sent downstream: the
					// output device hasn't rendered it yet, so the gate needs to
					// outlive this call by the playback/room hangover.
					ms.state.ExtendGate(hangover)

					ms.emit(AudioChunk, chunk)
					return nil
				}
			})
			if err != nil && ttsCtx.Err() == nil {
				ms.emit(ErrorEvent, fmt.Sprintf("TTS error: %v", err))
			}
		}
	}()

	var response strings.Builder
	streamErr := ms.orch.GenerateResponseStream(rCtx, ms.session, func(token string) error {
		response.WriteString(token)
		if phrase, ok := segmenter.Push(token); ok {
			select {
			case phrases <- phrase:
			case <-ttsCtx.Done():
				return ttsCtx.Err()
			}
		}
		return nil
	})

	ms.mu.Lock()
	if streamErr == nil {
		ms.llmEndTime = time.Now()
	}
	ms.isThinking = false
	ms.mu.Unlock()

	if streamErr != nil {
		close(phrases)
		wg.Wait()
		if rCtx.Err() == nil {
			ms.emit(ErrorEvent, fmt.Sprintf("LLM error: %v", streamErr))
		}
		ms.mu.Lock()
		ms.isSpeaking = false
		ms.ttsCancel = nil
		ms.mu.Unlock()
		ms.orch.Metrics().RecordTurn("failed")
		return
	}

	full := response.String()
	ms.session.AddMessage("assistant", full)
	ms.emit(BotResponse, full)

	if phrase, ok := segmenter.Flush(); ok {
		select {
		case phrases <- phrase:
		case <-ttsCtx.Done():
		}
	}
	close(phrases)
	wg.Wait()

	ms.mu.Lock()
	if !ms.ttsStartTime.IsZero() {
		ms.ttsEndTime = time.Now()
	}
	ms.isSpeaking = false
	ms.ttsCancel = nil
	interrupted := ttsCtx.Err() != nil
	ms.mu.Unlock()

	if interrupted {
		ms.orch.Metrics().RecordTurn("interrupted")
	} else {
		ms.orch.Metrics().RecordTurn("completed")
		if bd := ms.GetLatencyBreakdown(); bd.UserToTTSFirstByte > 0 {
			ms.orch.Metrics().ObserveFirstPhraseLatencySeconds(float64(bd.UserToTTSFirstByte) / 1000)
		}
		if e2e := ms.GetEndToEndLatency(); e2e > 0 {
			ms.orch.Metrics().ObserveEndToEndLatencySeconds(float64(e2e) / 1000)
		}
	}
}

// NotifyAudioPlayed should be called by the audio playback device once
// queued audio has actually reached the speaker. It records the time as
// lastAudioSentAt and extends the gate window by Config.HangoverMs.
func (ms *ManagedStream) NotifyAudioPlayed() {
	ms.mu.Lock()
	ms.lastAudioSentAt = time.Now()
	ms.mu.Unlock()
	hangover := time.Duration(ms.orch.GetConfig().HangoverMs) * time.Millisecond
	ms.state.ExtendGate(hangover)
}

// GetLatency returns the time in milliseconds from when user stopped speaking
// to when bot started playing audio (0 if not applicable)
func (ms *ManagedStream) GetLatency() int64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.userSpeechEndTime.IsZero() || ms.botSpeakStartTime.IsZero() {
		return 0
	}

	if ms.botSpeakStartTime.Before(ms.userSpeechEndTime) {
		return 0
	}

	latency := ms.botSpeakStartTime.Sub(ms.userSpeechEndTime)
	return latency.Milliseconds()
}

// LatencyBreakdown holds per-stage timings (all values in milliseconds).
type LatencyBreakdown struct {
	UserToSTT          int64 // user stop -> STT final
	STT                int64 // STT duration (start→end)
	UserToLLM          int64 // user stop -> LLM end
	LLM                int64 // LLM duration (start→end)
	UserToTTSFirstByte int64 // user stop -> first TTS chunk
	LLMToTTSFirstByte  int64 // LLM end -> first TTS chunk
	TTSTotal           int64 // TTS total duration (ttsStart→ttsEnd)
	BotStartLatency    int64 // user stop -> botSpeakStart
	UserToPlay         int64 // user stop -> latest audio sent or played (lastAudioSentAt)
}

// GetEndToEndLatency returns the time in milliseconds from when the user
// stopped speaking to lastAudioSentAt, which is updated each time a TTS
// chunk is emitted and each time NotifyAudioPlayed is called, so it marks
// the latest audio of the response (0 if not available).
func (ms *ManagedStream) GetEndToEndLatency() int64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.userSpeechEndTime.IsZero() || ms.lastAudioSentAt.IsZero() {
		return 0
	}

	if ms.lastAudioSentAt.Before(ms.userSpeechEndTime) {
		return 0
	}

	latency := ms.lastAudioSentAt.Sub(ms.userSpeechEndTime)
	return latency.Milliseconds()
}

// GetLatencyBreakdown returns measured timings for STT, LLM and TTS stages.
func (ms *ManagedStream) GetLatencyBreakdown() LatencyBreakdown {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var bd LatencyBreakdown
	if ms.userSpeechEndTime.IsZero() {
		return bd
	}

	if !ms.sttEndTime.IsZero() {
		bd.UserToSTT = ms.sttEndTime.Sub(ms.userSpeechEndTime).Milliseconds()
	}
	if !ms.sttStartTime.IsZero() && !ms.sttEndTime.IsZero() {
		bd.STT = ms.sttEndTime.Sub(ms.sttStartTime).Milliseconds()
	}

	if !ms.llmEndTime.IsZero() {
		bd.UserToLLM = ms.llmEndTime.Sub(ms.userSpeechEndTime).Milliseconds()
	}
	if !ms.llmStartTime.IsZero() && !ms.llmEndTime.IsZero() {
		bd.LLM = ms.llmEndTime.Sub(ms.llmStartTime).Milliseconds()
	}

	if !ms.ttsFirstChunkTime.IsZero() {
		bd.UserToTTSFirstByte = ms.ttsFirstChunkTime.Sub(ms.userSpeechEndTime).Milliseconds()
	}
	if !ms.llmEndTime.IsZero() && !ms.ttsFirstChunkTime.IsZero() {
		bd.LLMToTTSFirstByte = ms.ttsFirstChunkTime.Sub(ms.llmEndTime).Milliseconds()
	}

	if !ms.ttsStartTime.IsZero() && !ms.ttsEndTime.IsZero() {
		bd.TTSTotal = ms.ttsEndTime.Sub(ms.ttsStartTime).Milliseconds()
	}

	if !ms.botSpeakStartTime.IsZero() {
		bd.BotStartLatency = ms.botSpeakStartTime.Sub(ms.userSpeechEndTime).Milliseconds()
	}
	if !ms.lastAudioSentAt.IsZero() {
		bd.UserToPlay = ms.lastAudioSentAt.Sub(ms.userSpeechEndTime).Milliseconds()
	}

	return bd
}

// ExportLastUserAudio returns a copy of the last captured user-turn audio as
// mono float32 PCM, for CLI debugging/export.
func (ms *ManagedStream) ExportLastUserAudio() []float32 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.lastUserAudio) == 0 {
		return nil
	}
	out := make([]float32, len(ms.lastUserAudio))
	copy(out, ms.lastUserAudio)
	return out
}

func (ms *ManagedStream) Events() <-chan OrchestratorEvent {
	return ms.events
}

func (ms *ManagedStream) Close() {
	ms.closeOnce.Do(func() {
		ms.interrupt()

		ms.mu.Lock()
		ms.audioBuf = ms.audioBuf[:0]
		ms.mu.Unlock()

		ms.state.ClearGate()
		ms.cancel()

		time.Sleep(10 * time.Millisecond)

		close(ms.events)
	})
}

func (ms *ManagedStream) emit(eventType EventType, data interface{}) {
	select {
	case <-ms.ctx.Done():
		return
	default:
	}

	if eventType == AudioChunk {
		ms.mu.Lock()
		speaking := ms.isSpeaking
		userInterrupting := ms.userInterrupting
		ms.mu.Unlock()
		if !speaking || userInterrupting {
			return
		}
	}

	event := OrchestratorEvent{
		Type:      eventType,
		SessionID: ms.session.ID,
		Data:      data,
	}

	defer func() {
		if r := recover(); r != nil {
			// Channel closed, stream shutting down - safe to ignore
		}
	}()

	select {
	case ms.events <- event:
	case <-ms.ctx.Done():
	default:
	}
}

func (ms *ManagedStream) interrupt() {
	ms.internalInterrupt()
}

func (ms *ManagedStream) internalInterrupt() {
	ms.mu.Lock()

	if ms.pipelineCancel == nil && ms.responseCancel == nil && ms.ttsCancel == nil && !ms.isSpeaking && !ms.isThinking && !ms.userInterrupting {
		ms.mu.Unlock()
		return
	}

	pipelineCancel := ms.pipelineCancel
	responseCancel := ms.responseCancel
	ttsCancel := ms.ttsCancel

	ms.pipelineCancel = nil
	ms.responseCancel = nil
	ms.ttsCancel = nil
	ms.sttChan = nil

	ms.isSpeaking = false
	ms.isThinking = false
	ms.userInterrupting = false
	ms.mu.Unlock()

	ms.state.BumpEpoch()
	ms.state.ClearGate()

	if pipelineCancel != nil {
		pipelineCancel()
	}
	if responseCancel != nil {
		responseCancel()
	}
	if ttsCancel != nil {
		ttsCancel()
	}

	if ms.orch != nil && ms.orch.tts != nil {
		if err := ms.orch.tts.Abort(); err != nil {
			ms.orch.logger.Warn("tts abort failed", "sessionID", ms.session.ID, "error", err)
		}
	}

	ms.lastInterruptedAt = time.Now()
	ms.drainAudioChunks()
	if ms.orch != nil {
		ms.orch.Metrics().RecordInterrupt()
	}
	ms.emit(Interrupted, nil)
}

func (ms *ManagedStream) drainAudioChunks() {
	deadline := time.Now().Add(100 * time.Millisecond)
	var controlEvents []OrchestratorEvent

	for {
		select {
		case ev := <-ms.events:
			if ev.Type != AudioChunk {
				controlEvents = append(controlEvents, ev)
			}
		default:
			goto DrainDone
		}

		if time.Now().After(deadline) {
			goto DrainDone
		}
	}

DrainDone:
	for _, ev := range controlEvents {
		select {
		case ms.events <- ev:
		default:
		}
	}
}
