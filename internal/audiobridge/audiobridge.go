// Package audiobridge implements the full-duplex audio path between a
// Telephony Adapter and the AI pipeline (§4.2): voice-activity
// detection, turn boundaries, and barge-in.
//
// Grounded on agentplexus-omnivoice-twilio/transport/provider.go's
// channel-backed audio plumbing (drop-oldest backpressure on
// audioWriter/audioReader) generalized into this package's frame
// buffering, and LingByte-LingSIP's ai_phone_engine.go step/session
// state-machine shape (a mutex-guarded state field driven by discrete
// events, not goroutine-per-state) — kept HOW, replaced WHAT (script
// step dispatch → the spec's IDLE/LISTENING/THINKING/SPEAKING machine).
// State machines at this size are conventionally hand-rolled even in
// the pack's own telephony code, so this stays on stdlib time/sync
// rather than reaching for an FSM library (see DESIGN.md).
package audiobridge

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the four audio-path states from §4.2's diagram.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "IDLE"
	}
}

// VAD detects voice activity in a single audio frame. The default
// implementation is a simple RMS-energy threshold; callers may inject
// a more sophisticated detector via WithVAD.
type VAD interface {
	IsVoiced(frame []byte) bool
}

// rmsVAD is a minimal energy-based detector over 16-bit PCM samples.
type rmsVAD struct{ threshold float64 }

func (v rmsVAD) IsVoiced(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		sample := int16(frame[2*i]) | int16(frame[2*i+1])<<8
		sum += float64(sample) * float64(sample)
	}
	rms := sum / float64(n)
	return rms > v.threshold*v.threshold
}

const (
	silenceToThink  = 700 * time.Millisecond
	minVoicedToThink = 200 * time.Millisecond
	thinkFlushAfter = 3 * time.Second
	bargeInSustain  = 300 * time.Millisecond
)

// Handler receives the bridge's turn-boundary and barge-in events.
// internal/conversation implements this to drive the Conversation SM.
type Handler interface {
	// OnUtterance is called once an utterance boundary is detected
	// (silence ≥700ms after ≥200ms voiced) or, once THINKING has lasted
	// 3s, on the next voiced frame; whether the speech in between was
	// uninterrupted is not checked. pcm is the accumulated 16kHz mono PCM
	// buffer.
	OnUtterance(pcm []byte)
	// OnBargeIn is called when sustained user speech interrupts an
	// in-progress, non-critical TTS playback.
	OnBargeIn()
}

// Bridge is one session's audio state machine. All methods are safe
// for concurrent use; PushFrame is expected to be called serially from
// the session's audio-receive loop.
type Bridge struct {
	vad      VAD
	handler  Handler
	log      *zap.Logger
	frameDur time.Duration

	mu            sync.Mutex
	state         State
	buffer        []byte
	voicedFor     time.Duration
	silentFor     time.Duration
	thinkingSince time.Time
	speakCritical bool
	speakVoicedFor time.Duration
	cancelTTS     func()
}

// Option configures a Bridge at construction.
type Option func(*Bridge)

func WithVAD(v VAD) Option { return func(b *Bridge) { b.vad = v } }

// New creates a Bridge. frameDur is the expected per-frame duration
// (default config.AudioFrameMS, typically 20ms).
func New(frameDur time.Duration, log *zap.Logger, handler Handler, opts ...Option) *Bridge {
	b := &Bridge{
		vad:      rmsVAD{threshold: 500},
		handler:  handler,
		log:      log,
		frameDur: frameDur,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State returns the bridge's current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// PushFrame feeds one inbound audio frame through the state machine,
// per §4.2's IDLE/LISTENING/THINKING/SPEAKING transitions.
func (b *Bridge) PushFrame(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	voiced := b.vad.IsVoiced(frame)

	switch b.state {
	case StateIdle:
		b.state = StateListening
		b.buffer = append(b.buffer[:0], frame...)
		b.voicedFor, b.silentFor = 0, 0
		b.bumpVAD(voiced)

	case StateListening:
		b.buffer = append(b.buffer, frame...)
		b.bumpVAD(voiced)
		if b.silentFor >= silenceToThink && b.voicedFor >= minVoicedToThink {
			b.enterThinking()
		}

	case StateThinking:
		b.buffer = append(b.buffer, frame...)
		if time.Since(b.thinkingSince) >= thinkFlushAfter && voiced {
			utterance := b.buffer
			b.buffer = nil
			b.thinkingSince = time.Now()
			go b.handler.OnUtterance(utterance)
		}

	case StateSpeaking:
		if voiced {
			b.speakVoicedFor += b.frameDur
		} else {
			b.speakVoicedFor = 0
		}
		if !b.speakCritical && b.speakVoicedFor >= bargeInSustain {
			b.bargeIn(frame)
		}
	}
}

func (b *Bridge) bumpVAD(voiced bool) {
	if voiced {
		b.voicedFor += b.frameDur
		b.silentFor = 0
	} else {
		b.silentFor += b.frameDur
	}
}

func (b *Bridge) enterThinking() {
	utterance := b.buffer
	b.buffer = nil
	b.state = StateThinking
	b.thinkingSince = time.Now()
	go b.handler.OnUtterance(utterance)
}

// bargeIn cancels the in-flight TTS stream and returns to LISTENING,
// per §4.2's barge-in transition. Caller holds b.mu.
func (b *Bridge) bargeIn(frame []byte) {
	if b.cancelTTS != nil {
		b.cancelTTS()
		b.cancelTTS = nil
	}
	b.state = StateListening
	b.buffer = append(b.buffer[:0], frame...)
	b.voicedFor, b.silentFor = bargeInSustain, 0
	if b.log != nil {
		b.log.Info("barge-in: cancelling tts, returning to listening")
	}
	go b.handler.OnBargeIn()
}

// StartSpeaking transitions THINKING→SPEAKING once the first TTS
// frame is ready (§4.2's tts_ready). critical disables barge-in
// (e.g. a legal consent prompt); cancel stops the outbound stream.
func (b *Bridge) StartSpeaking(critical bool, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateSpeaking
	b.speakCritical = critical
	b.speakVoicedFor = 0
	b.cancelTTS = cancel
}

// StopSpeaking transitions SPEAKING→IDLE once TTS playback completes
// (§4.2's tts_done). Per the tie-break rule, if the caller has already
// observed new user audio in this window it should call PushFrame
// first so a pending barge-in is not lost.
func (b *Bridge) StopSpeaking() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateSpeaking {
		return
	}
	b.state = StateIdle
	b.cancelTTS = nil
	b.buffer = nil
}
