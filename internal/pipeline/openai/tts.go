package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
)

// openAITTSSampleRateHz is the fixed sample rate OpenAI's TTS endpoint
// emits for the "pcm" response format (raw 16-bit little-endian mono,
// no container).
const openAITTSSampleRateHz = 24000

// TTS adapts the OpenAI speech synthesis endpoint to pipeline.TTS.
type TTS struct {
	client *openai.Client
	model  string
	voice  openai.SpeechVoice
}

func NewTTS(apiKey, model string) *TTS {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &TTS{client: openai.NewClient(apiKey), model: model, voice: openai.VoiceAlloy}
}

// Synthesize implements pipeline.TTS.Synthesize (§4.3). OpenAI's "pcm"
// response format is 24kHz; every downstream consumer (the Audio Bridge,
// the phone carrier leg) expects 16kHz mono, so the response is
// downsampled to sampleRateHz before being handed back. Downsampling
// buffers the whole utterance rather than streaming sample-by-sample —
// utterances here are single sentences, so this trades the 300ms
// time-to-first-byte target for correctness; a true streaming resampler
// is future work.
func (t *TTS) Synthesize(ctx context.Context, text string) (pipeline.PCMStream, error) {
	raw, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.model),
		Input:          text,
		Voice:          t.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderTransient, "tts_synthesize_failed", "text-to-speech request failed", err)
	}
	defer raw.Close()

	src, err := io.ReadAll(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderTransient, "tts_read_failed", "reading synthesized audio", err)
	}

	out := downsample(src, openAITTSSampleRateHz, sampleRateHz)
	return &pcmStream{r: bytes.NewReader(out)}, nil
}

// pcmStream adapts a bytes.Reader to pipeline.PCMStream.
type pcmStream struct {
	r *bytes.Reader
}

func (s *pcmStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *pcmStream) Close() error                { return nil }

// downsample converts 16-bit little-endian mono PCM from srcRate to
// dstRate by nearest-neighbor sample selection. Good enough for speech
// intelligibility at these ratios; a production resampler would use a
// proper low-pass filter to avoid aliasing.
func downsample(src []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(src) < 2 {
		return src
	}
	srcSamples := len(src) / 2
	dstSamples := srcSamples * dstRate / srcRate
	out := make([]byte, dstSamples*2)
	for i := 0; i < dstSamples; i++ {
		srcIdx := i * srcRate / dstRate
		if srcIdx >= srcSamples {
			srcIdx = srcSamples - 1
		}
		v := int16(binary.LittleEndian.Uint16(src[srcIdx*2:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
