// Package session implements the Session Supervisor (§4.9): owns the
// lifecycle of every active Session, enforces the concurrent-session
// cap, and sweeps sessions that have gone idle or over their hard
// time limit.
//
// Grounded on LingByte-LingSIP's ai_phone_engine.go session-map +
// cleanup-goroutine pattern and agentplexus-omnivoice-twilio's
// callsystem/provider.go registry shape (`calls map[string]*Call` +
// `mu sync.RWMutex`) — kept HOW (in-process registry, periodic sweep
// goroutine), replaced WHAT (call bookkeeping → Session lifecycle with
// the spec's resource caps and summary persistence).
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// InferenceAdmitter is the subset of *inference.Pool the Supervisor
// needs to enforce §5's inference-pool-depth backpressure at session
// open time. Declared here rather than importing internal/inference
// directly to avoid a session<->inference import cycle (inference has
// no reason to know about sessions, but keeping the dependency an
// interface keeps that true by construction, not by convention).
type InferenceAdmitter interface {
	// Admit reports whether the pool has headroom for a new session's
	// inference work. Implementations emit their own warn log and
	// counter tick on rejection (§8's high-water-mark boundary case).
	Admit() bool
}

// Driver runs a Session's Conversation SM until the session ends or ctx
// is cancelled. Implemented by internal/conversation; injected here so
// the supervisor doesn't depend on conversation internals (§9).
type Driver interface {
	Run(ctx context.Context, sess *Session) (*models.SessionSummary, error)
}

// Store persists the end-of-session summary (§3 "Session lifecycle").
type Store interface {
	SaveSessionSummary(ctx context.Context, s *models.SessionSummary) error
}

// Descriptor is the caller-supplied information needed to open a
// Session, per §4.9's open(session_descriptor).
type Descriptor struct {
	ID        string
	TenantID  string
	Channel   models.SessionChannel
	ContactID string
	// Transport carries the channel-specific transport handle (e.g. a
	// telephony call or a chat WebSocket connection) through to the
	// Driver, which knows the concrete type to assert it back to.
	Transport any
}

// Session is one live, in-process conversational session. Its mutable
// fields are only ever touched by the goroutine running Driver.Run plus
// the supervisor's own sweep, both synchronized through mu.
type Session struct {
	ID        string
	TenantID  string
	Channel   models.SessionChannel
	ContactID string
	Transport any
	StartedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// Touch records activity, resetting the idle-sweep clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Limits mirrors config.SessionLimits, duplicated here to avoid an
// import cycle between internal/config and internal/session.
type Limits struct {
	MaxConcurrent int
	PhoneIdle     time.Duration
	ChatIdle      time.Duration
	PhoneMax      time.Duration
	ChatMax       time.Duration
	SweepInterval time.Duration
}

// Supervisor is the registry and lifecycle owner for every live
// Session in the process, per §4.9.
type Supervisor struct {
	limits Limits
	driver Driver
	store  Store
	pool   InferenceAdmitter
	log    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	count    int32

	stopSweep chan struct{}
}

func New(limits Limits, driver Driver, store Store, log *zap.Logger) *Supervisor {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 100
	}
	if limits.SweepInterval <= 0 {
		limits.SweepInterval = 10 * time.Second
	}
	return &Supervisor{
		limits:    limits,
		driver:    driver,
		store:     store,
		log:       log,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
}

// WithInferencePool wires the shared inference pool's admission check
// into Open, per §5 Backpressure. Optional: a Supervisor with no pool
// wired only enforces its own MaxConcurrent cap.
func (s *Supervisor) WithInferencePool(pool InferenceAdmitter) *Supervisor {
	s.pool = pool
	return s
}

// StartSweep launches the periodic idle/overrun sweep (§4.9 "Periodic
// sweep"). Call once per process; Stop to halt it.
func (s *Supervisor) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.limits.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopSweep:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Supervisor) Stop() { close(s.stopSweep) }

// Open implements §4.9's open(session_descriptor) → session: enforces
// the concurrency cap, registers the Session, and starts the Driver in
// its own goroutine. Returns apperr.Overloaded if the cap is already
// reached — callers (telephony adapters) must translate this into a
// busy signal, per the invariant in §4.9.
func (s *Supervisor) Open(ctx context.Context, d Descriptor) (*Session, error) {
	if s.pool != nil && !s.pool.Admit() {
		return nil, apperr.New(apperr.Overloaded, "inference_pool_saturated", "inference pool at high-water mark")
	}

	s.mu.Lock()
	if int(s.count) >= s.limits.MaxConcurrent {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Warn("session rejected: supervisor at capacity", zap.Int("max_concurrent", s.limits.MaxConcurrent))
		}
		return nil, apperr.New(apperr.Overloaded, "session_capacity_exceeded", "maximum concurrent sessions reached")
	}
	s.count++
	s.mu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	now := time.Now().UTC()
	sess := &Session{
		ID: d.ID, TenantID: d.TenantID, Channel: d.Channel, ContactID: d.ContactID, Transport: d.Transport,
		StartedAt: now, lastActivity: now, cancel: cancel, done: make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	go s.run(sessCtx, sess)
	return sess, nil
}

func (s *Supervisor) run(ctx context.Context, sess *Session) {
	defer close(sess.done)
	summary, err := s.driver.Run(ctx, sess)
	if err != nil && s.log != nil {
		s.log.Error("session driver ended with error", zap.String("session_id", sess.ID), zap.Error(err))
	}
	s.finish(sess, summary)
}

func (s *Supervisor) finish(sess *Session, summary *models.SessionSummary) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	if s.count > 0 {
		s.count--
	}
	s.mu.Unlock()

	if summary == nil || s.store == nil {
		return
	}
	if err := s.store.SaveSessionSummary(context.Background(), summary); err != nil && s.log != nil {
		s.log.Error("failed to persist session summary", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// Close implements §4.9's close(session_id, reason): it cancels the
// session context, waits up to 2s for Driver.Run to return, and logs a
// warning if it has not. Nothing further stops the driver; the session
// stays registered until the driver returns.
func (s *Supervisor) Close(sessionID, reason string) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if s.log != nil {
		s.log.Info("closing session", zap.String("session_id", sessionID), zap.String("reason", reason))
	}
	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		if s.log != nil {
			s.log.Warn("session did not drain in time", zap.String("session_id", sessionID))
		}
	}
}

// Count returns the number of currently live sessions.
func (s *Supervisor) Count() int {
	return int(atomic.LoadInt32(&s.count))
}

// sweep kills sessions idle beyond threshold or past their hard max
// duration, per §4.9's "Periodic sweep".
func (s *Supervisor) sweep(ctx context.Context) {
	now := time.Now().UTC()
	s.mu.RLock()
	var toClose []string
	for id, sess := range s.sessions {
		idleLimit := s.limits.ChatIdle
		maxLimit := s.limits.ChatMax
		if sess.Channel == models.ChannelPhone {
			idleLimit = s.limits.PhoneIdle
			maxLimit = s.limits.PhoneMax
		}
		if idleLimit > 0 && sess.idleSince(now) > idleLimit {
			toClose = append(toClose, id)
			continue
		}
		if maxLimit > 0 && now.Sub(sess.StartedAt) > maxLimit {
			toClose = append(toClose, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range toClose {
		s.Close(id, "idle_or_overrun")
	}
}
