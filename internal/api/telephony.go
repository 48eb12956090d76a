package api

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/audiobridge"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/inference"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
	"github.com/fieldopsvoice/dispatch/internal/recording"
	"github.com/fieldopsvoice/dispatch/internal/session"
	"github.com/fieldopsvoice/dispatch/internal/telephony"
)

// telephonyRouter mounts a telephony.Provider's carrier webhooks and
// implements telephony.Handler, bridging incoming calls into
// session.Supervisor the same way chatHandlers bridges WebSocket
// connections.
type telephonyRouter struct {
	d        *Deps
	tenantID string
	frameDur time.Duration

	mu    sync.Mutex
	calls map[string]*phoneTransport // callID -> transport
}

func newTelephonyRouter(d *Deps, tenantID string) *telephonyRouter {
	return &telephonyRouter{
		d:        d,
		tenantID: tenantID,
		frameDur: time.Duration(d.Cfg.AudioFrameMS) * time.Millisecond,
		calls:    make(map[string]*phoneTransport),
	}
}

// OnIncomingCall accepts every inbound call; the Session Supervisor's
// concurrency cap (§4.9) is the actual admission control, enforced when
// the call is answered and a session opened.
func (r *telephonyRouter) OnIncomingCall(ctx context.Context, call telephony.Call) error {
	return nil
}

// OnCallAnswered opens a Session with a phone Outbound wrapping call
// and a fresh Audio Bridge, per §6's phone entry point.
func (r *telephonyRouter) OnCallAnswered(ctx context.Context, call telephony.Call) error {
	info := call.Info()
	contact, err := r.resolveContact(ctx, info.From)
	if err != nil {
		return err
	}

	recordingConsented := false
	if consent, cerr := r.d.Store.ActiveConsent(ctx, r.tenantID, contact.ID, models.ConsentCallRecording); cerr == nil && consent != nil {
		recordingConsented = true
	}

	sessionID := uuid.NewString()

	t := &phoneTransport{
		call:      call,
		tts:       r.d.TTS,
		pool:      r.d.Pool,
		frameDur:  r.frameDur,
		log:       r.d.Log,
		ready:     make(chan struct{}),
		sessionID: sessionID,
		tenantID:  r.tenantID,
		recorder:  r.d.Recording,
		record:    recordingConsented,
		store:     r.d.Store,
	}
	r.mu.Lock()
	r.calls[info.ID] = t
	r.mu.Unlock()

	_, err = r.d.Sessions.Open(ctx, session.Descriptor{
		ID:        sessionID,
		TenantID:  r.tenantID,
		Channel:   models.ChannelPhone,
		ContactID: contact.ID,
		Transport: t,
	})
	if err != nil {
		r.mu.Lock()
		delete(r.calls, info.ID)
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *telephonyRouter) resolveContact(ctx context.Context, phone string) (*models.Contact, error) {
	existing, err := r.d.Store.FindContactByPhone(ctx, r.tenantID, phone)
	if err == nil && existing != nil {
		return existing, nil
	}
	contact := &models.Contact{TenantID: r.tenantID, Phone: phone}
	if err := r.d.Store.CreateContact(ctx, contact); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "phone_contact_create_failed", "creating contact for inbound call", err)
	}
	return contact, nil
}

func (r *telephonyRouter) OnCallEnded(ctx context.Context, info telephony.CallInfo) {
	r.mu.Lock()
	t := r.calls[info.ID]
	delete(r.calls, info.ID)
	r.mu.Unlock()
	if t != nil {
		go t.uploadRecording(context.Background())
	}
}

func (r *telephonyRouter) OnAudioFrame(ctx context.Context, frame telephony.AudioFrame) {
	r.mu.Lock()
	t := r.calls[frame.CallID]
	r.mu.Unlock()
	if t != nil {
		t.pushFrame(frame.PCM)
	}
}

func (r *telephonyRouter) OnDTMF(ctx context.Context, callID, digit string) {}

// phoneTransport implements conversation.Outbound and conversation.Binder
// for one live call. Grounded on internal/channels/telegram's
// chatTransport (Bind-once, ready channel) generalized to synthesize
// audio through pipeline.TTS and stream it via telephony.Call instead
// of sending a text message.
type phoneTransport struct {
	call     telephony.Call
	tts      pipeline.TTS
	pool     *inference.Pool
	frameDur time.Duration
	log      *zap.Logger

	sessionID string
	tenantID  string
	recorder  *recording.Uploader
	record    bool
	store     recordingJobStore

	mu     sync.Mutex
	bridge *audiobridge.Bridge
	recBuf bytes.Buffer
	jobID  string

	bindOnce sync.Once
	ready    chan struct{}
}

var (
	_ conversation.Outbound = (*phoneTransport)(nil)
	_ conversation.Binder   = (*phoneTransport)(nil)
)

// recordingJobStore is the narrow slice of storage.Postgres phoneTransport
// needs to attach an uploaded recording's URL back onto its Job.
type recordingJobStore interface {
	SetJobRecordingURL(ctx context.Context, tenantID, jobID, url string) error
}

// Bind wires the Audio Bridge once the Controller starts. The
// Controller (the concrete conversation.Inbound passed here) also
// satisfies audiobridge.Handler and exposes AttachBridge, per
// internal/conversation/controller.go's documented contract for phone
// sessions.
func (t *phoneTransport) Bind(in conversation.Inbound) {
	t.bindOnce.Do(func() {
		handler, ok := in.(audiobridge.Handler)
		if !ok {
			return
		}
		bridge := audiobridge.New(t.frameDur, t.log, handler)
		t.mu.Lock()
		t.bridge = bridge
		t.mu.Unlock()
		if attacher, ok := in.(interface{ AttachBridge(*audiobridge.Bridge) }); ok {
			attacher.AttachBridge(bridge)
		}
		close(t.ready)
	})
}

func (t *phoneTransport) pushFrame(pcm []byte) {
	select {
	case <-t.ready:
	default:
		return
	}
	t.mu.Lock()
	b := t.bridge
	if t.record {
		t.recBuf.Write(pcm)
	}
	t.mu.Unlock()
	if b != nil {
		b.PushFrame(pcm)
	}
}

// uploadRecording stores the caller-side audio captured over the
// consented call (§4.6/§8's recording consent gate). Only the inbound
// leg is captured — the Audio Bridge already holds the caller's audio
// for VAD, so buffering it here adds no extra capture path; the
// assistant's synthesized speech is not recorded.
func (t *phoneTransport) uploadRecording(ctx context.Context) {
	if !t.record || t.recorder == nil || !t.recorder.Enabled() {
		return
	}
	t.mu.Lock()
	pcm := append([]byte(nil), t.recBuf.Bytes()...)
	jobID := t.jobID
	t.mu.Unlock()
	if len(pcm) == 0 {
		return
	}
	uri, err := t.recorder.Upload(ctx, t.tenantID, t.sessionID, pcm)
	if err != nil {
		if t.log != nil {
			t.log.Error("call recording upload failed", zap.Error(err), zap.String("session_id", t.sessionID))
		}
		return
	}
	if jobID == "" || t.store == nil {
		return
	}
	if err := t.store.SetJobRecordingURL(ctx, t.tenantID, jobID, uri); err != nil && t.log != nil {
		t.log.Error("recording url persist failed", zap.Error(err), zap.String("job_id", jobID))
	}
}

// frameBytes returns the byte length of one frameDur frame of 16kHz
// mono 16-bit PCM, matching config.AudioFrameMS's convention
// (internal/telephony.AudioFrame's doc comment).
func (t *phoneTransport) frameBytes() int {
	samples := int(16000 * t.frameDur / time.Second)
	return samples * 2
}

func (t *phoneTransport) Say(ctx context.Context, text string, critical bool) error {
	stream, err := t.synthesize(ctx, text, critical)
	if err != nil {
		return apperr.Wrap(apperr.ProviderTransient, "tts_synthesis_failed", "synthesizing phone speech", err)
	}
	defer stream.Close()

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	b := t.bridge
	t.mu.Unlock()
	if b != nil {
		b.StartSpeaking(critical, cancel)
		defer b.StopSpeaking()
	}

	buf := make([]byte, t.frameBytes())
	for {
		select {
		case <-speakCtx.Done():
			return nil
		default:
		}
		n, rerr := stream.Read(buf)
		if n > 0 {
			if perr := t.call.PlayAudio(ctx, buf[:n]); perr != nil {
				return apperr.Wrap(apperr.ProviderTransient, "call_play_audio_failed", "streaming synthesized audio", perr)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return apperr.Wrap(apperr.ProviderTransient, "tts_stream_read_failed", "reading synthesized audio stream", rerr)
		}
	}
}

// synthesize routes TTS through the shared inference pool (§5),
// falling back to a direct call when no pool is configured. critical
// utterances (§4.4 step 4's escalation speech) submit at emergency
// priority; everything else on a phone session submits as scheduled-
// call work.
func (t *phoneTransport) synthesize(ctx context.Context, text string, critical bool) (pipeline.PCMStream, error) {
	if t.pool == nil {
		return t.tts.Synthesize(ctx, text)
	}
	priority := inference.PriorityScheduledCall
	if critical {
		priority = inference.PriorityEmergency
	}
	return inference.Submit(ctx, t.pool, priority, func(ctx context.Context) (pipeline.PCMStream, error) {
		return t.tts.Synthesize(ctx, text)
	})
}

func (t *phoneTransport) End(ctx context.Context, status models.SessionEndStatus, jobID string) error {
	t.mu.Lock()
	t.jobID = jobID
	t.mu.Unlock()
	return t.call.Hangup(ctx)
}

func (t *phoneTransport) Transfer(ctx context.Context, reason string) error {
	return t.call.Transfer(ctx, "")
}
