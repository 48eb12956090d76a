// Package telephony defines the provider-agnostic call surface the
// rest of the system drives (§4.1, §6 phone channel): incoming-call
// and in-call events on one side, answer/hangup/transfer/play
// operations on the other. internal/telephony/twilio is the only
// concrete Provider wired today; other carriers plug in behind the
// same interface without touching the Conversation SM or Session
// Supervisor.
//
// Grounded on agentplexus-omnivoice-twilio's callsystem.CallSystem +
// callsystem.Call split (a provider-level registry handing out
// per-call handles) — kept HOW, generalized WHAT: Twilio's
// Twilio-specific Call fields collapse into the spec's CallInfo, and
// the handler signature carries a context for the event loop that
// owns it (internal/telephony/twilio) to cancel cleanly on hangup.
package telephony

import (
	"context"
	"time"
)

// CallDirection mirrors callsystem.CallDirection.
type CallDirection string

const (
	Inbound  CallDirection = "inbound"
	Outbound CallDirection = "outbound"
)

// CallStatus mirrors the lifecycle states a Provider reports.
type CallStatus string

const (
	StatusRinging  CallStatus = "ringing"
	StatusAnswered CallStatus = "answered"
	StatusEnded    CallStatus = "ended"
	StatusBusy     CallStatus = "busy"
	StatusNoAnswer CallStatus = "no_answer"
	StatusFailed   CallStatus = "failed"
)

// CallInfo is the provider-neutral view of one call, passed to
// Handler callbacks.
type CallInfo struct {
	ID        string
	Direction CallDirection
	Status    CallStatus
	From      string
	To        string
	StartedAt time.Time
}

// Call is the live handle a Provider hands back for an active call.
// Say/Hangup/Transfer are the only operations the Conversation SM's
// Outbound implementation needs; Provider.Calls exposes richer
// bookkeeping for admin/debug use.
type Call interface {
	Info() CallInfo
	// PlayAudio streams one frame of synthesized PCM to the caller.
	// frame is 16-bit PCM at the Provider's native sample rate; the
	// Provider is responsible for any carrier-specific transcoding
	// (e.g. Twilio's 8kHz μ-law).
	PlayAudio(ctx context.Context, frame []byte) error
	// ClearAudio discards any audio queued for playback but not yet
	// sent, used on barge-in so the caller doesn't hear a stale tail.
	ClearAudio(ctx context.Context) error
	Hangup(ctx context.Context) error
	// Transfer attempts a hand-off to the given number/extension. A
	// Provider without transfer support returns apperr.ProviderFatal.
	Transfer(ctx context.Context, target string) error
}

// AudioFrame is one inbound frame of decoded 16-bit PCM, 20ms by
// convention (config.AudioFrameMS), delivered to Handler.OnAudioFrame.
type AudioFrame struct {
	CallID string
	PCM    []byte
}

// Handler receives call lifecycle and media events. internal/api
// wires a Handler per tenant that opens a session.Supervisor session
// on CallAnswered and feeds AudioFrame into that session's Audio
// Bridge.
type Handler interface {
	OnIncomingCall(ctx context.Context, call Call) error
	OnCallAnswered(ctx context.Context, call Call) error
	OnCallEnded(ctx context.Context, info CallInfo)
	OnAudioFrame(ctx context.Context, frame AudioFrame)
	OnDTMF(ctx context.Context, callID, digit string)
}

// Provider is the adapter contract every carrier implementation
// (internal/telephony/twilio, and any future carrier) satisfies.
type Provider interface {
	Name() string
	SetHandler(h Handler)
	// MakeCall places an outbound call (used for scheduled callback
	// reminders; §4.1 lists it as a later extension, not exercised by
	// the inbound-only MVP flows in §8's scenarios).
	MakeCall(ctx context.Context, to, from string) (Call, error)
	GetCall(callID string) (Call, bool)
	Close() error
}
