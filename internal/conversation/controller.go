// Package conversation implements the Conversation State Machine
// (§4.4): per-session flow control over GREETING→INTAKE→
// CLASSIFICATION→SLOT_FILL→CONFIRMATION→ACTION→FAREWELL, with
// ESCALATION reachable from any state, driven by pluggable industry
// Profiles (capability sets, not a class hierarchy).
//
// Grounded on LingByte-LingSIP's ai_phone_engine.go (ScriptSession,
// step-type dispatch, retry-with-prompt loops, zap turn logging) —
// kept HOW (goroutine-per-session driven from session.Supervisor,
// mutex-guarded per-turn state, structured per-turn logging), replaced
// WHAT (fixed IVR script steps → intent/slot-fill state machine over
// a Profile).
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/audiobridge"
	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/inference"
	"github.com/fieldopsvoice/dispatch/internal/jobservice"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
	"github.com/fieldopsvoice/dispatch/internal/session"
	"github.com/fieldopsvoice/dispatch/internal/triage"
)

// Outbound is the channel-specific surface the Controller speaks
// through: phone sessions synthesize and stream PCM via the Audio
// Bridge, chat sessions send JSON frames. Concrete implementations
// live in internal/api (phoneTransport for phone, chatTransport for
// chat) and internal/channels/telegram (messenger).
type Outbound interface {
	// Say delivers one assistant utterance. critical disables
	// barge-in on phone sessions carrying a legal/consent prompt.
	Say(ctx context.Context, text string, critical bool) error
	// End signals session termination (§6: terminal {type:"end"}
	// chat frame, or phone hangup/transfer).
	End(ctx context.Context, status models.SessionEndStatus, jobID string) error
	// Transfer attempts a hand-off to a human operator or emergency
	// number (§4.4 step 4); a no-op Outbound may ignore this.
	Transfer(ctx context.Context, reason string) error
}

// Inbound is the subset of Controller a text-oriented channel drives
// with events arriving after the session has already started, mirroring
// the phone channel's audiobridge.Handler. Chat and messenger transports
// need this because, unlike the phone channel, they don't hold a direct
// reference to the Controller: Supervisor.Open only returns *Session.
type Inbound interface {
	HandleText(ctx context.Context, text string)
	OnBargeIn()
}

// Binder is implemented by an Outbound that wants a handle back to the
// Controller once the session starts, so it can forward inbound events
// arriving on its own transport loop. internal/api's chat transport and
// internal/channels/telegram's transport both implement it.
type Binder interface {
	Bind(in Inbound)
}

// Deps bundles the Controller's collaborators, shared across sessions
// and injected once at process start-up (§9).
type Deps struct {
	STT      pipeline.STT
	LLM      pipeline.LLM
	TTS      pipeline.TTS
	// Pool is the process-wide inference worker pool every STT/LLM
	// submission runs through (§5). May be nil in tests that call
	// STT/LLM directly without exercising pool semantics.
	Pool     *inference.Pool
	Jobs     *jobservice.Service
	Ledger   *audit.Ledger
	Timeouts pipeline.Timeouts
	Log      *zap.Logger
}

// Factory constructs a fresh Controller per session and satisfies
// session.Driver, so the Supervisor can hold one shared Driver while
// every live session gets its own mutable turn state.
type Factory struct {
	deps     Deps
	profiles map[models.TradeCategory]Profile
	profile  Profile // currently the single active profile (handwerk); see DESIGN.md Open Questions
}

func NewFactory(deps Deps, profile Profile) *Factory {
	return &Factory{deps: deps, profile: profile}
}

// Run implements session.Driver. sess.Transport must be an Outbound
// (phone and chat transports construct one before calling
// Supervisor.Open).
func (f *Factory) Run(ctx context.Context, sess *session.Session) (*models.SessionSummary, error) {
	out, ok := sess.Transport.(Outbound)
	if !ok {
		return nil, apperr.New(apperr.Internal, "missing_outbound", "session transport does not implement conversation.Outbound")
	}
	c := &Controller{
		sessionID: sess.ID,
		tenantID:  sess.TenantID,
		contactID: sess.ContactID,
		channel:   sess.Channel,
		profile:   f.profile,
		deps:      f.deps,
		out:       out,
		sess:      sess,
		snapshot: models.Snapshot{
			SessionID: sess.ID,
			TenantID:  sess.TenantID,
			State:     models.StateGreeting,
			Slots:     models.SlotValues{},
			Language:  f.profile.Language,
		},
		startedAt: time.Now().UTC(),
	}
	if binder, ok := out.(Binder); ok {
		binder.Bind(c)
	}
	return c.run(ctx)
}

// Controller is one session's live Conversation SM state.
type Controller struct {
	sessionID string
	tenantID  string
	contactID string
	channel   models.SessionChannel
	profile   Profile
	deps      Deps
	out       Outbound
	sess      *session.Session
	bridge    *audiobridge.Bridge

	mu        sync.Mutex
	snapshot  models.Snapshot
	draft     jobservice.Draft
	startedAt time.Time
	endStatus models.SessionEndStatus
	jobID     string

	turnCancel        context.CancelFunc
	runCancel         context.CancelFunc
	lastTurnAt        time.Time
	silenceReprompted bool

	// turnTimeoutOverride lets tests substitute a short window for the
	// real §4.4 phone/chat turn timeout; zero means "use the default".
	turnTimeoutOverride time.Duration
}

// AttachBridge wires an Audio Bridge for phone sessions; c satisfies
// audiobridge.Handler via OnUtterance/OnBargeIn below.
func (c *Controller) AttachBridge(b *audiobridge.Bridge) { c.bridge = b }

func (c *Controller) run(ctx context.Context) (*models.SessionSummary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.runCancel = cancel
	c.lastTurnAt = time.Now().UTC()
	c.endStatus = models.SessionAbandoned
	c.mu.Unlock()

	if err := c.speak(ctx, c.profile.Greeting, false); err != nil && c.deps.Log != nil {
		c.deps.Log.Warn("greeting failed", zap.Error(err), zap.String("session_id", c.sessionID))
	}
	c.mu.Lock()
	c.snapshot.State = models.StateIntake
	c.mu.Unlock()

	go c.watchTurnTimeout(runCtx)

	<-runCtx.Done()

	c.mu.Lock()
	summary := &models.SessionSummary{
		ID:         uuid.NewString(),
		TenantID:   c.tenantID,
		ContactID:  c.contactID,
		Channel:    c.channel,
		JobID:      c.jobID,
		EndStatus:  c.endStatus,
		TurnCount:  c.snapshot.TurnCount,
		Transcript: c.snapshot.History,
		StartedAt:  c.startedAt,
		EndedAt:    time.Now().UTC(),
	}
	c.mu.Unlock()
	_ = c.out.End(context.Background(), summary.EndStatus, summary.JobID)
	return summary, nil
}

// bridge is nil for chat sessions (no VAD/audio path).
var _ audiobridge.Handler = (*Controller)(nil)

// OnUtterance implements audiobridge.Handler for phone sessions: runs
// STT on the accumulated buffer, then the shared per-turn pipeline.
func (c *Controller) OnUtterance(pcm []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deps.Timeouts.STT)
	defer cancel()

	result, err := c.submitSTT(ctx, pcm, c.snapshot.Language)
	if err != nil {
		c.reprompt(context.Background(), "Entschuldigung, ich habe Sie nicht verstanden. Können Sie das wiederholen?")
		return
	}
	if result.DetectedDialect != "" {
		c.mu.Lock()
		c.snapshot.Language = result.DetectedDialect
		c.mu.Unlock()
	}
	if result.Confidence < pipeline.ConfidenceFloor {
		if c.deps.Log != nil {
			c.deps.Log.Info("low_confidence", zap.String("session_id", c.sessionID), zap.Float64("confidence", result.Confidence))
		}
		if _, err := c.deps.Ledger.Append(context.Background(), c.tenantID, c.sessionID, "low_confidence", "session", c.sessionID, map[string]any{
			"confidence": result.Confidence,
		}); err != nil && c.deps.Log != nil {
			c.deps.Log.Error("failed to audit low_confidence", zap.Error(err))
		}
		c.reprompt(context.Background(), "Könnten Sie das bitte wiederholen?")
		return
	}
	c.turn(context.Background(), result.Text)
}

// OnBargeIn implements audiobridge.Handler: cancels whatever turn work
// (LLM call, TTS synthesis) is in flight.
func (c *Controller) OnBargeIn() {
	c.mu.Lock()
	cancel := c.turnCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) reprompt(ctx context.Context, text string) {
	_ = c.speak(ctx, text, false)
}

// priority classifies this session's inference work per §5's
// emergency > scheduled call > chat > background campaign ordering.
func (c *Controller) priority() inference.Priority {
	c.mu.Lock()
	escalated := c.snapshot.Escalated
	c.mu.Unlock()
	if escalated {
		return inference.PriorityEmergency
	}
	if c.channel == models.ChannelPhone {
		return inference.PriorityScheduledCall
	}
	return inference.PriorityChat
}

// submitSTT routes a transcription through the shared inference pool
// (§5), falling back to a direct call when no pool is configured
// (unit tests exercising Controller in isolation).
func (c *Controller) submitSTT(ctx context.Context, pcm []byte, languageHint string) (pipeline.TranscriptResult, error) {
	if c.deps.Pool == nil {
		return c.deps.STT.Transcribe(ctx, pcm, languageHint)
	}
	return inference.Submit(ctx, c.deps.Pool, c.priority(), func(ctx context.Context) (pipeline.TranscriptResult, error) {
		return c.deps.STT.Transcribe(ctx, pcm, languageHint)
	})
}

// submitLLM routes a generation call through the shared inference pool
// (§5), falling back to a direct call when no pool is configured.
func (c *Controller) submitLLM(ctx context.Context, systemPrompt string, history []models.Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	if c.deps.Pool == nil {
		return c.deps.LLM.Generate(ctx, systemPrompt, history, userMessage, maxTokens, temperature)
	}
	return inference.Submit(ctx, c.deps.Pool, c.priority(), func(ctx context.Context) (string, error) {
		return c.deps.LLM.Generate(ctx, systemPrompt, history, userMessage, maxTokens, temperature)
	})
}

// watchTurnTimeout implements §4.4's turn timeout: 8s of phone silence
// or 45s of chat silence triggers a single reprompt; a second silent
// window ends the session abandoned. This tracks turn-to-turn silence
// within one live session, distinct from session.Supervisor.sweep's
// coarser whole-session idle/overrun cap.
func (c *Controller) watchTurnTimeout(ctx context.Context) {
	timeout := 45 * time.Second
	if c.channel == models.ChannelPhone {
		timeout = 8 * time.Second
	}
	if c.turnTimeoutOverride > 0 {
		timeout = c.turnTimeoutOverride
	}
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastTurnAt)
			reprompted := c.silenceReprompted
			c.mu.Unlock()
			if idle < timeout {
				continue
			}
			if !reprompted {
				c.mu.Lock()
				c.silenceReprompted = true
				c.lastTurnAt = time.Now().UTC()
				c.mu.Unlock()
				c.reprompt(ctx, "Sind Sie noch da?")
				continue
			}
			c.mu.Lock()
			c.endStatus = models.SessionAbandoned
			c.mu.Unlock()
			if c.deps.Log != nil {
				c.deps.Log.Info("turn timeout: ending session as abandoned", zap.String("session_id", c.sessionID))
			}
			c.runCancel()
			return
		}
	}
}

// HandleText is the chat-channel entry point (no STT involved), per
// §6's chat WebSocket contract.
func (c *Controller) HandleText(ctx context.Context, text string) {
	c.turn(ctx, text)
}

// turn runs §4.4 steps 2-7 for one utterance, shared by phone and chat.
func (c *Controller) turn(parent context.Context, text string) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.turnCancel = cancel
	c.lastTurnAt = time.Now().UTC()
	c.silenceReprompted = false
	c.snapshot.TurnCount++
	c.snapshot.History = append(c.snapshot.History, models.Message{Role: models.RoleUser, Content: text, Timestamp: time.Now().UTC()})
	c.mu.Unlock()
	defer cancel()

	if emergency, phrase := c.profile.DetectEmergency(text); emergency {
		c.escalate(ctx, phrase)
		return
	}

	intent, _ := c.profile.DetectIntent(text)
	if intent == "" {
		intent = c.classifyWithLLM(ctx, text)
	}
	if intent == "cancellation" {
		c.handleCancellation(ctx)
		return
	}
	if intent == "query" || intent == "chitchat" {
		c.respondOpenly(ctx, text)
		return
	}

	c.mu.Lock()
	priorState := c.snapshot.State
	c.profile.ExtractSlots(text, c.snapshot.Slots)
	if priorState == models.StateIntake || priorState == models.StateGreeting {
		c.snapshot.State = models.StateClassification
	}
	slots := c.snapshot.Slots
	c.mu.Unlock()

	c.classifyIfNeeded(slots)

	// §4.4 step 7: once we already asked for confirmation and the
	// caller affirms, create the job; re-asking otherwise.
	if priorState == models.StateConfirmation && intent == "confirm" {
		c.createJob(ctx)
		return
	}

	if missing, ok := c.profile.MissingRequiredSlot(slots); ok {
		c.mu.Lock()
		c.snapshot.State = models.StateSlotFill
		c.mu.Unlock()
		_ = c.speak(ctx, missing.Prompt, false)
		return
	}

	c.mu.Lock()
	c.snapshot.State = models.StateConfirmation
	c.mu.Unlock()

	confirmText := c.profile.ConfirmationPrompt
	if confirmText == "" {
		confirmText = "Ich habe alle Angaben. Soll ich den Auftrag anlegen?"
	}
	_ = c.speak(ctx, confirmText, false)
}

// classifyIfNeeded runs the Triage Engine once enough of the
// description slot is known, populating draft fields used at job
// creation time (§4.5 feeding §4.10).
func (c *Controller) classifyIfNeeded(slots models.SlotValues) {
	desc, ok := slots["problem_description"]
	if !ok || desc == "" {
		return
	}
	result := triage.Assess(triage.DefaultVersion, desc, triage.Context{})
	c.mu.Lock()
	c.draft.Description = desc
	c.draft.TradeCategory = result.Category
	c.draft.Urgency = result.Urgency
	c.mu.Unlock()
}

func (c *Controller) classifyWithLLM(ctx context.Context, text string) string {
	llmCtx, cancel := context.WithTimeout(ctx, c.deps.Timeouts.LLMHard)
	defer cancel()
	prompt := "Classify the caller's intent as exactly one word: emergency, cancellation, new_request, query, or chitchat."
	reply, err := c.submitLLM(llmCtx, prompt, nil, text, 8, 0)
	if err != nil {
		c.logLLMTimeout(llmCtx, err)
		return "new_request"
	}
	return reply
}

// logLLMTimeout records §8's llm_timeout event whenever an LLM call
// misses its deadline or otherwise errors, so a fallback response can be
// traced back to the model call that forced it.
func (c *Controller) logLLMTimeout(ctx context.Context, cause error) {
	if c.deps.Log != nil {
		c.deps.Log.Warn("llm_timeout", zap.String("session_id", c.sessionID), zap.Error(cause))
	}
	if _, err := c.deps.Ledger.Append(context.Background(), c.tenantID, c.sessionID, "llm_timeout", "session", c.sessionID, map[string]any{
		"cause": cause.Error(),
	}); err != nil && c.deps.Log != nil {
		c.deps.Log.Error("failed to audit llm_timeout", zap.Error(err))
	}
}

// respondOpenly implements §4.4 step 6's open/complex path: a
// query/chitchat turn doesn't fit the slot-fill template flow, so the
// LLM is invoked with the profile's system prompt to produce a
// free-form reply instead. Falls back to a fixed template if the model
// call fails or misses its soft deadline.
func (c *Controller) respondOpenly(ctx context.Context, text string) {
	c.mu.Lock()
	history := append([]models.Message(nil), c.snapshot.History...)
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	systemPrompt := c.profile.SystemPrompt
	c.mu.Unlock()

	llmCtx, cancel := context.WithTimeout(ctx, c.deps.Timeouts.LLMSoft)
	defer cancel()
	reply, err := c.submitLLM(llmCtx, systemPrompt, history, text, 200, 0.7)
	if err != nil {
		c.logLLMTimeout(llmCtx, err)
		reply = "Entschuldigung, dazu kann ich gerade nichts Genaues sagen. Möchten Sie stattdessen einen Auftrag anlegen?"
	}
	_ = c.speak(ctx, reply, false)
}

// escalate implements §4.4 step 4: immediate ESCALATION, critical
// templated response (barge-in disabled), a Job so Routing can hand
// the caller to the emergency worker or fallback contact, audit event,
// transfer attempt.
func (c *Controller) escalate(ctx context.Context, trigger string) {
	c.mu.Lock()
	c.snapshot.State = models.StateEscalation
	c.snapshot.Escalated = true
	c.endStatus = models.SessionEscalated
	draft := c.draft
	draft.ContactID = c.contactID
	draft.Source = sourceFor(c.channel)
	if draft.TradeCategory == "" {
		draft.TradeCategory = models.TradePlumbingHeating
	}
	if draft.Description == "" {
		draft.Description = trigger
	}
	draft.Urgency = models.UrgencyEmergency
	c.mu.Unlock()

	if _, err := c.deps.Ledger.Append(ctx, c.tenantID, c.sessionID, "escalation_triggered", "session", c.sessionID, map[string]any{
		"trigger": trigger,
	}); err != nil && c.deps.Log != nil {
		c.deps.Log.Error("failed to audit escalation", zap.Error(err))
	}

	job, err := c.deps.Jobs.Create(ctx, c.tenantID, c.sessionID, draft, models.UrgencyEmergency)
	if err != nil {
		if c.deps.Log != nil {
			c.deps.Log.Error("emergency job creation failed", zap.Error(err), zap.String("session_id", c.sessionID))
		}
	} else {
		c.mu.Lock()
		c.jobID = job.ID
		c.mu.Unlock()
	}

	_ = c.speak(ctx, "Das ist ein Notfall. Ich verbinde Sie sofort mit einem Mitarbeiter.", true)
	_ = c.out.Transfer(ctx, trigger)
}

func (c *Controller) handleCancellation(ctx context.Context) {
	c.mu.Lock()
	c.endStatus = models.SessionCompleted
	c.mu.Unlock()
	_ = c.speak(ctx, "Verstanden, ich breche den Vorgang ab. Einen schönen Tag noch.", false)
	c.sess.Touch()
}

// createJob implements §4.4 step 7: hand off to JobService and move
// to ACTION.
func (c *Controller) createJob(ctx context.Context) {
	c.mu.Lock()
	draft := c.draft
	draft.ContactID = c.contactID
	draft.Source = sourceFor(c.channel)
	triageBucket := draft.Urgency
	if triageBucket == "" {
		triageBucket = models.UrgencyNormal
	}
	c.mu.Unlock()

	job, err := c.deps.Jobs.Create(ctx, c.tenantID, c.sessionID, draft, triageBucket)
	if err != nil {
		if c.deps.Log != nil {
			c.deps.Log.Error("job creation failed", zap.Error(err), zap.String("session_id", c.sessionID))
		}
		_ = c.speak(ctx, "Es gab ein Problem beim Anlegen des Auftrags. Ein Mitarbeiter wird sich melden.", false)
		return
	}

	c.mu.Lock()
	c.snapshot.State = models.StateAction
	c.jobID = job.ID
	c.endStatus = models.SessionCompleted
	c.mu.Unlock()

	_ = c.speak(ctx, fmt.Sprintf("Ihr Auftrag wurde angelegt, Referenznummer %s. Vielen Dank.", job.JobNumber), false)
	c.mu.Lock()
	c.snapshot.State = models.StateFarewell
	c.mu.Unlock()
}

// speak appends one assistant utterance to the history, records session
// activity, and delivers it through the Outbound; the text is generated
// by the caller.
func (c *Controller) speak(ctx context.Context, text string, critical bool) error {
	c.mu.Lock()
	c.snapshot.History = append(c.snapshot.History, models.Message{Role: models.RoleAssistant, Content: text, Timestamp: time.Now().UTC()})
	c.mu.Unlock()
	c.sess.Touch()
	return c.out.Say(ctx, text, critical)
}

func sourceFor(ch models.SessionChannel) models.Source {
	switch ch {
	case models.ChannelPhone:
		return models.SourcePhone
	case models.ChannelMessenger:
		return models.SourceMessenger
	default:
		return models.SourceChat
	}
}
