package twilio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/telephony"
)

// Provider is the Twilio telephony.Provider implementation. Grounded
// on callsystem/provider.go's Provider (client + transport + calls
// registry) — kept HOW, replaced WHAT: the registry now indexes
// *Call handles that satisfy telephony.Call instead of OmniVoice's.
type Provider struct {
	rest         *restClient
	accountSID   string
	authToken    string
	phoneNumber  string
	streamURL    string
	sigTolerance time.Duration

	log      *zap.Logger
	handler  telephony.Handler
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	calls map[string]*Call
	conns map[string]*mediaConn // callSID -> media connection, set once Media Streams attaches
}

// Config is the construction-time configuration, sourced from
// config.Config's Twilio* fields.
type Config struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	// StreamURL is the public wss:// URL Twilio should open a Media
	// Streams connection back to (e.g. wss://host/twilio/stream).
	StreamURL string
	// SigToleranceS bounds how old a webhook's X-Twilio-Timestamp header
	// may be before the request is rejected as stale (§4.1, §6
	// "webhook.signature_tolerance_s"). Zero disables the check.
	SigToleranceS int
}

func New(cfg Config, log *zap.Logger) (*Provider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, apperr.New(apperr.Validation, "twilio_config_incomplete", "twilio account sid and auth token are required")
	}
	return &Provider{
		rest:         newRESTClient(cfg.AccountSID, cfg.AuthToken),
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		phoneNumber:  cfg.PhoneNumber,
		streamURL:    cfg.StreamURL,
		sigTolerance: time.Duration(cfg.SigToleranceS) * time.Second,
		log:          log,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		calls:        make(map[string]*Call),
		conns:        make(map[string]*mediaConn),
	}, nil
}

// verifyWebhook implements §4.1's rejection rule: an inbound webhook must
// carry both a valid HMAC signature and a fresh timestamp header. Shared
// by every Twilio webhook endpoint rather than duplicated per handler.
func (p *Provider) verifyWebhook(r *http.Request) bool {
	if p.authToken == "" {
		return true
	}
	sig := requestSignature(r)
	if !verifySignature(p.authToken, r.URL.String(), r.PostForm, sig) {
		return false
	}
	ts, ok := requestTimestamp(r)
	if !ok {
		return p.sigTolerance <= 0
	}
	return verifyTimestamp(ts, time.Now().UTC(), p.sigTolerance)
}

func (p *Provider) Name() string { return "twilio" }

func (p *Provider) SetHandler(h telephony.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// VoiceWebhook handles Twilio's incoming-call webhook, per §6's phone
// entry point. Verifies the request signature, registers the call
// (status ringing), notifies the Handler, and responds with TwiML
// that opens the Media Streams connection.
func (p *Provider) VoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !p.verifyWebhook(r) {
		if p.log != nil {
			p.log.Warn("twilio webhook rejected: signature or timestamp invalid")
		}
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")
	to := r.PostFormValue("To")

	call := &Call{
		provider:  p,
		id:        callSID,
		direction: telephony.Inbound,
		status:    telephony.StatusRinging,
		from:      from,
		to:        to,
		startedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.calls[callSID] = call
	handler := p.handler
	p.mu.Unlock()

	if handler != nil {
		if err := handler.OnIncomingCall(r.Context(), call); err != nil {
			if p.log != nil {
				p.log.Warn("incoming call rejected", zap.Error(err), zap.String("call_sid", callSID))
			}
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(busyTwiML("Alle Leitungen sind derzeit belegt. Bitte versuchen Sie es später erneut.")))
			return
		}
	}

	call.setStatus(telephony.StatusAnswered)
	if handler != nil {
		_ = handler.OnCallAnswered(r.Context(), call)
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(voiceTwiML(p.streamURL)))
}

// StatusCallback handles Twilio's call-status webhook, closing out
// the registry entry once the call ends.
func (p *Provider) StatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !p.verifyWebhook(r) {
		if p.log != nil {
			p.log.Warn("twilio status callback rejected: signature or timestamp invalid")
		}
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")

	p.mu.Lock()
	call, ok := p.calls[callSID]
	handler := p.handler
	p.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	call.setStatus(mapTwilioStatus(status))
	if call.Info().Status == telephony.StatusEnded {
		p.removeCall(callSID)
		if handler != nil {
			handler.OnCallEnded(r.Context(), call.Info())
		}
	}
	w.WriteHeader(http.StatusOK)
}

// MediaStreamHandler upgrades the inbound Media Streams request to a
// WebSocket and starts the read/write loops. Mount at the path given
// to the <Stream> TwiML verb.
func (p *Provider) MediaStreamHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if p.log != nil {
			p.log.Error("media stream upgrade failed", zap.Error(err))
		}
		return
	}
	conn := newMediaConn(ws, p, p.log)
	go conn.readLoop()
	go conn.writeLoop()
}

func (p *Provider) onStreamStarted(callSID string, conn *mediaConn) {
	p.mu.Lock()
	p.conns[callSID] = conn
	call, ok := p.calls[callSID]
	p.mu.Unlock()
	if ok {
		call.attachConn(conn)
	}
}

func (p *Provider) onAudioFrame(callSID string, pcm []byte) {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler != nil {
		handler.OnAudioFrame(context.Background(), telephony.AudioFrame{CallID: callSID, PCM: pcm})
	}
}

func (p *Provider) onDTMF(callSID, digit string) {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler != nil {
		handler.OnDTMF(context.Background(), callSID, digit)
	}
}

func (p *Provider) onStreamStopped(callSID string) {
	p.mu.Lock()
	delete(p.conns, callSID)
	p.mu.Unlock()
}

func (p *Provider) removeCall(callSID string) {
	p.mu.Lock()
	delete(p.calls, callSID)
	delete(p.conns, callSID)
	p.mu.Unlock()
}

// MakeCall places an outbound call with TwiML that connects it to
// our Media Streams endpoint (§4.1's later-extension callback flow).
func (p *Provider) MakeCall(ctx context.Context, to, from string) (telephony.Call, error) {
	if from == "" {
		from = p.phoneNumber
	}
	if from == "" {
		return nil, apperr.New(apperr.Validation, "twilio_from_required", "from number is required")
	}
	res, err := p.rest.makeCall(ctx, to, from, voiceTwiML(p.streamURL))
	if err != nil {
		return nil, err
	}
	call := &Call{
		provider:  p,
		id:        res.SID,
		direction: telephony.Outbound,
		status:    mapTwilioStatus(res.Status),
		from:      from,
		to:        to,
		startedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.calls[call.id] = call
	p.mu.Unlock()
	return call, nil
}

func (p *Provider) GetCall(callID string) (telephony.Call, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	call, ok := p.calls[callID]
	return call, ok
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		conn.close()
	}
	p.calls = make(map[string]*Call)
	p.conns = make(map[string]*mediaConn)
	return nil
}

func mapTwilioStatus(status string) telephony.CallStatus {
	switch status {
	case "queued", "ringing", "initiated":
		return telephony.StatusRinging
	case "in-progress", "answered":
		return telephony.StatusAnswered
	case "completed":
		return telephony.StatusEnded
	case "busy":
		return telephony.StatusBusy
	case "no-answer":
		return telephony.StatusNoAnswer
	case "failed", "canceled":
		return telephony.StatusFailed
	default:
		return telephony.StatusRinging
	}
}
