package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vocalrelay/vocalrelay/pkg/audio"
	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
	llmProvider "github.com/vocalrelay/vocalrelay/pkg/providers/llm"
	sttProvider "github.com/vocalrelay/vocalrelay/pkg/providers/stt"
	ttsProvider "github.com/vocalrelay/vocalrelay/pkg/providers/tts"
)

const (
	sampleRate = 44100
	channels   = 1
)

var supportedLanguages = map[string]orchestrator.Language{
	"en": orchestrator.LanguageEn,
	"es": orchestrator.LanguageEs,
	"fr": orchestrator.LanguageFr,
	"de": orchestrator.LanguageDe,
	"it": orchestrator.LanguageIt,
	"pt": orchestrator.LanguagePt,
	"ja": orchestrator.LanguageJa,
	"zh": orchestrator.LanguageZh,
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "note: no .env file found, using system environment variables")
	}

	flags := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flags.String("language", "en", "BCP-47 primary language tag")
	flags.String("tts", "kokoro", "TTS backend: kokoro (local) or http")
	flags.String("voice", string(orchestrator.VoiceF1), "voice identifier from the backend's voice list")
	flags.String("llm-url", "http://localhost:11434/v1/chat/completions", "local streaming LLM endpoint")
	flags.String("llm-model", "llama3.2:3b", "LLM model identifier")
	flags.String("tts-url", "http://localhost:8880/tts", "HTTP TTS endpoint, used when --tts=http")
	flags.Float64("sound-threshold-peak", 0.10, "VAD rising-edge threshold")
	flags.Int("end-silence-ms", 850, "silence duration that ends an utterance")
	flags.Int("hangover-ms", 100, "post-playback gate duration")
	flags.Int("min-utterance-ms", 300, "minimum utterance length to keep")
	flags.Bool("verbose", false, "enable debug-level logging")
	flags.Bool("list-voices", false, "print the active backend's voice table and exit")
	flags.String("stt-provider", "groq", "STT provider: groq, openai, deepgram, assemblyai")
	flags.String("llm-provider", "local", "LLM provider: local, groq, openai, anthropic, google")
	flags.String("metrics-addr", "", "address to serve Prometheus /metrics on, empty disables it")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if v.GetBool("list-voices") {
		printVoiceTable()
		return 0
	}

	logger, loggerErr := buildLogger(v.GetBool("verbose"))
	if loggerErr != nil {
		fmt.Fprintln(os.Stderr, loggerErr)
		return 1
	}
	defer logger.Sync()

	lang, ok := supportedLanguages[v.GetString("language")]
	if !ok {
		logger.Error("unsupported language", "language", v.GetString("language"))
		return 1
	}

	config := orchestrator.DefaultConfig()
	config.Language = lang
	config.VoiceStyle = orchestrator.Voice(v.GetString("voice"))
	config.SoundThresholdPeak = v.GetFloat64("sound-threshold-peak")
	config.EndSilenceMs = v.GetInt("end-silence-ms")
	config.HangoverMs = v.GetInt("hangover-ms")
	config.MinUtteranceMs = v.GetInt("min-utterance-ms")

	stt, err := buildSTT(v)
	if err != nil {
		logger.Error("stt provider unavailable", "error", err)
		return 1
	}

	llm, err := buildLLM(v)
	if err != nil {
		logger.Error("llm provider unavailable", "error", err)
		return 1
	}

	tts, err := buildTTS(v)
	if err != nil {
		logger.Error("tts backend unavailable", "error", err)
		return 1
	}

	vad := orchestrator.NewPeakVAD(config.SoundThresholdPeak, time.Duration(config.EndSilenceMs)*time.Millisecond)

	orch := orchestrator.NewWithLogger(stt, llm, tts, vad, config, logger)
	orch.SetMetrics(orchestrator.NewMetrics("vocalrelay"))

	if addr := v.GetString("metrics-addr"); addr != "" {
		go serveMetrics(addr, logger)
	}

	if err := warmUp(stt); err != nil {
		logger.Warn("stt warm-up failed, continuing anyway", "error", err)
	}

	session := orch.NewSessionWithDefaults("local-user")
	orch.SetSystemPrompt(session, "You are a helpful and concise voice assistant. Use short sentences suitable for speech.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := orch.NewManagedStream(ctx, session)
	defer stream.Close()

	state := orch.State()
	state.SetSpeed(config.Speed)

	hangover := time.Duration(config.HangoverMs) * time.Millisecond
	player, err := audio.NewPlayer(sampleRate, channels, config.QueueCapFrames, state, hangover, stream.NotifyAudioPlayed)
	if err != nil {
		logger.Error("playback device unavailable", "error", err)
		return 1
	}
	defer player.Close()

	capturer, err := audio.NewCapturer(sampleRate, channels, func(chunk audio.Chunk) {
		if state.RecordingPaused() {
			return
		}
		_ = stream.Write(chunk.Samples)
	})
	if err != nil {
		logger.Error("capture device unavailable", "error", err)
		return 1
	}
	defer capturer.Close()

	keys := newKeyHandler(state, stream, player, session, func(voice orchestrator.Voice) {
		orch.SetVoice(session, voice)
		logger.Info("voice changed", "voice", voice)
	}, stop)
	go keys.run()

	go func() {
		for event := range stream.Events() {
			switch event.Type {
			case orchestrator.UserSpeaking:
				logger.Info("user speaking")
			case orchestrator.UserStopped:
				logger.Info("user stopped, transcribing")
			case orchestrator.TranscriptFinal:
				logger.Info("transcript", "text", event.Data)
			case orchestrator.BotThinking:
				logger.Info("llm thinking")
			case orchestrator.BotSpeaking:
				logger.Info("tts speaking")
			case orchestrator.AudioChunk:
				chunk := event.Data.([]byte)
				samples := audio.Int16BytesToFloat32(chunk)
				player.Push(samples)
			case orchestrator.Interrupted:
				logger.Info("interrupted by user")
				player.Clear()
			case orchestrator.ErrorEvent:
				logger.Error("pipeline error", "error", event.Data)
			}
		}
	}()

	if err := player.Start(); err != nil {
		logger.Error("failed to start playback", "error", err)
		return 1
	}
	if err := capturer.Start(); err != nil {
		logger.Error("failed to start capture", "error", err)
		return 1
	}

	logger.Info("voice agent ready", "language", lang, "tts", v.GetString("tts"), "llm", v.GetString("llm-provider"))

	<-ctx.Done()
	logger.Info("shutting down")
	return 130
}

func buildLogger(verbose bool) (*orchestrator.ZapLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return orchestrator.NewZapLogger(zl), nil
}

func serveMetrics(addr string, logger orchestrator.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func warmUp(stt orchestrator.STTProvider) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	silence := make([]float32, sampleRate/10)
	_, err := stt.Transcribe(ctx, silence, sampleRate, orchestrator.LanguageEn)
	return err
}

func buildSTT(v *viper.Viper) (orchestrator.STTProvider, error) {
	switch v.GetString("stt-provider") {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai STT")
		}
		return sttProvider.NewOpenAISTT(key, "whisper-1"), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		return sttProvider.NewDeepgramSTT(key), nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		return sttProvider.NewAssemblyAISTT(key), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq STT")
		}
		return sttProvider.NewGroqSTT(key, "whisper-large-v3-turbo"), nil
	}
}

func buildLLM(v *viper.Viper) (orchestrator.LLMProvider, error) {
	switch v.GetString("llm-provider") {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAILLM(key, "gpt-4o"), nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(key, "claude-3-5-sonnet-20241022"), nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogleLLM(key, "gemini-1.5-flash"), nil
	case "groq":
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroqLLM(key, "llama-3.3-70b-versatile"), nil
	case "local":
		fallthrough
	default:
		return llmProvider.NewLocalStreamLLM(v.GetString("llm-url"), v.GetString("llm-model")), nil
	}
}

func buildTTS(v *viper.Viper) (orchestrator.TTSProvider, error) {
	switch v.GetString("tts") {
	case "http":
		return ttsProvider.NewHTTPTTS(v.GetString("tts-url"), sampleRate), nil
	case "kokoro":
		fallthrough
	default:
		if !localModelAvailable() {
			return nil, fmt.Errorf("%w: %s", orchestrator.ErrModelMissing, localVoiceModelName)
		}
		return ttsProvider.NewLocalTTS(newLocalSynth(), sampleRate), nil
	}
}
