// Package provider defines the external AI collaborators the assistant
// consumes: a reasoning service, speech transcription, and speech synthesis.
package provider

import "context"

// Reasoner is the external language-model endpoint used for command
// interpretation and confirmation analysis. One call, one reply; callers
// get transport failures surfaced, never retried here.
type Reasoner interface {
	// Complete sends a single prompt and returns the model's text reply.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Transcriber converts captured audio into text.
type Transcriber interface {
	// Transcribe recognizes speech in the audio bytes. format is the
	// container/codec name, e.g. "webm".
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer converts reply text into spoken audio.
type Synthesizer interface {
	// Speak renders text as audio bytes (typically WAV).
	Speak(ctx context.Context, text string) ([]byte, error)
}
