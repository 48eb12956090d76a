package audiobridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	utterances chan []byte
	bargeIns   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{utterances: make(chan []byte, 8), bargeIns: make(chan struct{}, 8)}
}

func (h *recordingHandler) OnUtterance(pcm []byte) { h.utterances <- pcm }
func (h *recordingHandler) OnBargeIn()              { h.bargeIns <- struct{}{} }

const frameMS = 20 * time.Millisecond

func loudFrame() []byte {
	frame := make([]byte, 320) // 160 16-bit samples
	for i := 0; i < len(frame); i += 2 {
		frame[i], frame[i+1] = 0xFF, 0x7F // max positive int16, well above the RMS threshold
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, 320)
}

func pushFrames(b *Bridge, frame []byte, count int) {
	for i := 0; i < count; i++ {
		b.PushFrame(frame)
	}
}

func TestPushFrame_IdleToListeningOnFirstFrame(t *testing.T) {
	b := New(frameMS, nil, newRecordingHandler())
	assert.Equal(t, StateIdle, b.State())
	b.PushFrame(silentFrame())
	assert.Equal(t, StateListening, b.State())
}

func TestPushFrame_SilenceAfterVoicedTransitionsToThinking(t *testing.T) {
	h := newRecordingHandler()
	b := New(frameMS, nil, h)

	pushFrames(b, loudFrame(), 10)  // 200ms voiced
	pushFrames(b, silentFrame(), 36) // 720ms silence

	assert.Equal(t, StateThinking, b.State())
	select {
	case utterance := <-h.utterances:
		assert.NotEmpty(t, utterance)
	case <-time.After(time.Second):
		t.Fatal("expected OnUtterance to fire on the silence boundary")
	}
}

func TestPushFrame_ShortVoicedBurstDoesNotTriggerThinking(t *testing.T) {
	b := New(frameMS, nil, newRecordingHandler())

	pushFrames(b, loudFrame(), 2)     // 40ms voiced, below the 200ms floor
	pushFrames(b, silentFrame(), 40) // plenty of silence

	assert.Equal(t, StateListening, b.State())
}

func TestPushFrame_ThinkingFlushesAfterContinuousSpeech(t *testing.T) {
	h := newRecordingHandler()
	b := New(frameMS, nil, h)

	pushFrames(b, loudFrame(), 10)
	pushFrames(b, silentFrame(), 36)
	<-h.utterances // drain the silence-boundary utterance

	require.Equal(t, StateThinking, b.State())
	b.mu.Lock()
	b.thinkingSince = time.Now().Add(-4 * time.Second)
	b.mu.Unlock()
	b.PushFrame(loudFrame())

	select {
	case <-h.utterances:
	case <-time.After(time.Second):
		t.Fatal("expected the 3s continuous-speech flush to fire OnUtterance")
	}
}

func TestStartSpeaking_SustainedVoiceTriggersBargeIn(t *testing.T) {
	h := newRecordingHandler()
	b := New(frameMS, nil, h)

	cancelled := false
	b.StartSpeaking(false, func() { cancelled = true })
	assert.Equal(t, StateSpeaking, b.State())

	pushFrames(b, loudFrame(), 16) // 320ms, above the 300ms sustain threshold

	select {
	case <-h.bargeIns:
	case <-time.After(time.Second):
		t.Fatal("expected OnBargeIn to fire")
	}
	assert.Equal(t, StateListening, b.State())
	assert.True(t, cancelled)
}

func TestStartSpeaking_CriticalDisablesBargeIn(t *testing.T) {
	h := newRecordingHandler()
	b := New(frameMS, nil, h)

	b.StartSpeaking(true, func() {})
	pushFrames(b, loudFrame(), 20)

	assert.Equal(t, StateSpeaking, b.State())
	select {
	case <-h.bargeIns:
		t.Fatal("critical speech must not be interruptible by barge-in")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopSpeaking_ReturnsToIdle(t *testing.T) {
	b := New(frameMS, nil, newRecordingHandler())
	b.StartSpeaking(false, func() {})
	b.StopSpeaking()
	assert.Equal(t, StateIdle, b.State())
}

func TestStopSpeaking_NoOpWhenNotSpeaking(t *testing.T) {
	b := New(frameMS, nil, newRecordingHandler())
	b.StopSpeaking()
	assert.Equal(t, StateIdle, b.State())
}
