// Package pipeline defines the AI Pipeline Stage interfaces (§4.3):
// Speech-to-Text, Large Language Model, and Text-to-Speech. Real
// implementations (local or remote) satisfy these interfaces; the
// Conversation SM and Audio Bridge depend only on them.
//
// The interface shapes are grounded on the pack's cleanest, license-
// free grounding for this concern — Chadi00-call-demo's Transcriber/
// LLM/TTS/PCM48kSink interfaces — re-typed around this spec's (pcm,
// language_hint)/(system_prompt, history, user_message)/(text) method
// signatures. iamprashant-voice-ai's streaming/resampling architecture
// informed the TTS stream shape; its GPL-with-additional-terms source
// and license header are not carried over.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// TranscriptResult is the STT stage's output, per §4.3.
type TranscriptResult struct {
	Text             string
	Confidence       float64
	DetectedDialect  string
}

// STT transcribes one complete utterance of 16kHz mono PCM audio.
type STT interface {
	Transcribe(ctx context.Context, pcm []byte, languageHint string) (TranscriptResult, error)
}

// LLM generates the next assistant utterance given bounded history.
type LLM interface {
	Generate(ctx context.Context, systemPrompt string, history []models.Message, userMessage string, maxTokens int, temperature float64) (string, error)
}

// PCMStream is a cancellable stream of 16kHz mono PCM audio frames.
// Callers must Close it to release the underlying connection.
type PCMStream interface {
	io.ReadCloser
}

// TTS synthesizes speech for text, streaming PCM frames as they are
// produced so the bridge can start playback before synthesis
// completes (§4.3's 300ms time-to-first-byte target).
type TTS interface {
	Synthesize(ctx context.Context, text string) (PCMStream, error)
}

// ConfidenceFloor is the default STT confidence below which the
// Conversation SM reprompts instead of invoking the LLM (§4.3).
const ConfidenceFloor = 0.5

// DefaultHistoryWindow is the default bounded history length (§4.3:
// "window size configurable, default 8 turns").
const DefaultHistoryWindow = 8

// Timeouts mirrors config.InferenceTimeouts for the stages that need
// it directly (the Conversation SM enforces these around stage calls).
type Timeouts struct {
	STT           time.Duration
	LLMSoft       time.Duration
	LLMHard       time.Duration
	TTSFirstFrame time.Duration
}
