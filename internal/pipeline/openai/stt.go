package openai

import (
	"bytes"
	"context"
	"encoding/binary"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
)

// sampleRateHz is the PCM sample rate the Audio Bridge captures at and
// the rate every stage in this pipeline agrees on (§4.3).
const sampleRateHz = 16000

// STT adapts the Whisper transcription endpoint to pipeline.STT. Raw
// 16kHz mono PCM16 frames arrive with no container, so Transcribe wraps
// them in a minimal WAV header before upload — Whisper only accepts
// file-shaped audio.
type STT struct {
	client *openai.Client
	model  string
}

func NewSTT(apiKey, model string) *STT {
	if model == "" {
		model = openai.Whisper1
	}
	return &STT{client: openai.NewClient(apiKey), model: model}
}

// Transcribe implements pipeline.STT.Transcribe (§4.3). languageHint, if
// set, is passed through as the ISO-639-1 language so Whisper skips
// language detection; on low-confidence or empty transcripts the
// Conversation SM decides whether to reprompt (pipeline.ConfidenceFloor).
func (s *STT) Transcribe(ctx context.Context, pcm []byte, languageHint string) (pipeline.TranscriptResult, error) {
	wav := wrapWAV(pcm, sampleRateHz)

	req := openai.AudioRequest{
		Model:    s.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if languageHint != "" {
		req.Language = languageHint
	}

	resp, err := s.client.CreateTranscription(ctx, req)
	if err != nil {
		return pipeline.TranscriptResult{}, apperr.Wrap(apperr.ProviderTransient, "stt_transcribe_failed", "speech-to-text request failed", err)
	}

	// Whisper's verbose_json response carries no per-word confidence;
	// confidence is derived from segment count and non-empty text as a
	// coarse proxy (a real ASR confidence score isn't exposed by this
	// endpoint).
	confidence := 0.0
	if resp.Text != "" {
		confidence = 0.9
		if len(resp.Segments) == 0 {
			confidence = 0.7
		}
	}

	return pipeline.TranscriptResult{
		Text:            resp.Text,
		Confidence:      confidence,
		DetectedDialect: resp.Language,
	}, nil
}

// wrapWAV builds a minimal 16-bit mono PCM WAV container around raw
// samples, per the canonical RIFF/WAVE layout.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		bitsPerSample = 16
		channels      = 1
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataLen := len(pcm)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}
