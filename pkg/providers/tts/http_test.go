package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vocalrelay/vocalrelay/pkg/audio"
	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
)

func TestHTTPTTS_Synthesize(t *testing.T) {
	pcm := audio.Float32ToInt16Bytes([]float32{0.1, 0.2, -0.1, -0.2})
	wav := audio.NewWavBuffer(pcm, 16000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") != "hello" {
			t.Errorf("expected text=hello, got %q", r.URL.Query().Get("text"))
		}
		w.Write(wav)
	}))
	defer server.Close()

	tts := NewHTTPTTS(server.URL, 16000)
	out, err := tts.Synthesize(context.Background(), "hello", orchestrator.VoiceF1, orchestrator.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty audio")
	}
	if tts.Name() != "http-tts" {
		t.Errorf("expected http-tts, got %s", tts.Name())
	}
}

func TestHTTPTTS_StreamSynthesize(t *testing.T) {
	samples := make([]float32, 20000)
	for i := range samples {
		samples[i] = 0.3
	}
	wav := audio.NewWavBuffer(audio.Float32ToInt16Bytes(samples), 44100)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wav)
	}))
	defer server.Close()

	tts := NewHTTPTTS(server.URL, 44100)

	var chunks int
	var total int
	err := tts.StreamSynthesize(context.Background(), "hi there", orchestrator.VoiceF1, orchestrator.LanguageEn, func(chunk []byte) error {
		chunks++
		total += len(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks < 2 {
		t.Errorf("expected multiple chunks, got %d", chunks)
	}
	if total == 0 {
		t.Fatal("expected non-empty streamed audio")
	}
}

func TestHTTPTTS_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	tts := NewHTTPTTS(server.URL, 16000)
	_, err := tts.Synthesize(context.Background(), "hello", orchestrator.VoiceF1, orchestrator.LanguageEn)
	if err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestHTTPTTS_Abort(t *testing.T) {
	tts := NewHTTPTTS("http://127.0.0.1:0", 16000)
	if err := tts.Abort(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
