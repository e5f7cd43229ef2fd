package orchestrator

import "errors"


var (
	
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	
	ErrTranscriptionFailed = errors.New("speech-to-text transcription failed")

	
	ErrLLMFailed = errors.New("language model generation failed")

	
	ErrTTSFailed = errors.New("text-to-speech synthesis failed")

	
	ErrNilProvider = errors.New("required provider is nil")


	ErrContextCancelled = errors.New("operation cancelled by context")


	ErrDeviceUnavailable = errors.New("audio device unavailable")


	ErrUnsupportedLanguage = errors.New("language not supported by configured provider")


	ErrModelMissing = errors.New("required model asset not found")
)
