package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/jobservice"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/pipeline"
	"github.com/fieldopsvoice/dispatch/internal/routing"
	"github.com/fieldopsvoice/dispatch/internal/scheduling"
	"github.com/fieldopsvoice/dispatch/internal/session"
)

type fakeLLM struct {
	reply string
	err   error

	mu             sync.Mutex
	lastSystem     string
	calls          int
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt string, history []models.Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	f.mu.Lock()
	f.lastSystem = systemPrompt
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeOutbound struct {
	mu       sync.Mutex
	said     []string
	ended    bool
	endStat  models.SessionEndStatus
}

func (o *fakeOutbound) Say(ctx context.Context, text string, critical bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.said = append(o.said, text)
	return nil
}
func (o *fakeOutbound) End(ctx context.Context, status models.SessionEndStatus, jobID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = true
	o.endStat = status
	return nil
}
func (o *fakeOutbound) Transfer(ctx context.Context, reason string) error { return nil }

func (o *fakeOutbound) lastSaid() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.said) == 0 {
		return ""
	}
	return o.said[len(o.said)-1]
}

func (o *fakeOutbound) sayCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.said)
}

type fakeAuditStore struct {
	mu       sync.Mutex
	appended []*models.AuditEntry
}

func (f *fakeAuditStore) LastAuditEntry(ctx context.Context, tenantID string) (*models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.appended) == 0 {
		return nil, nil
	}
	return f.appended[len(f.appended)-1], nil
}
func (f *fakeAuditStore) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entry)
	return nil
}
func (f *fakeAuditStore) AllAuditEntries(ctx context.Context, tenantID string) ([]*models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appended, nil
}

func (f *fakeAuditStore) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.appended {
		out = append(out, e.Action)
	}
	return out
}

func testController(t *testing.T, llm pipeline.LLM, out *fakeOutbound, log *zap.Logger) (*Controller, *fakeAuditStore) {
	t.Helper()
	auditStore := &fakeAuditStore{}
	ledger := audit.New(auditStore, log)
	profile := Profile{
		Name:         "test",
		Language:     "de-DE",
		SystemPrompt: "You are a helpful dispatcher for a trades company.",
		Greeting:     "Hallo",
	}
	c := &Controller{
		sessionID: "session-1",
		tenantID:  "tenant-1",
		contactID: "contact-1",
		channel:   models.ChannelChat,
		profile:   profile,
		deps: Deps{
			LLM:      llm,
			Ledger:   ledger,
			Timeouts: pipeline.Timeouts{STT: time.Second, LLMSoft: time.Second, LLMHard: time.Second, TTSFirstFrame: time.Second},
			Log:      log,
		},
		out:  out,
		sess: &session.Session{},
		snapshot: models.Snapshot{
			SessionID: "session-1",
			State:     models.StateIntake,
			Slots:     models.SlotValues{},
		},
	}
	return c, auditStore
}

func TestRespondOpenly_UsesProfileSystemPromptAndSpeaksReply(t *testing.T) {
	llm := &fakeLLM{reply: "Wir haben Montag bis Freitag geöffnet."}
	out := &fakeOutbound{}
	c, _ := testController(t, llm, out, zap.NewNop())

	c.respondOpenly(context.Background(), "Wann habt ihr geöffnet?")

	assert.Equal(t, "Wir haben Montag bis Freitag geöffnet.", out.lastSaid())
	assert.Equal(t, c.profile.SystemPrompt, llm.lastSystem)
}

func TestRespondOpenly_LLMFailureFallsBackAndLogsTimeout(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	out := &fakeOutbound{}
	c, auditStore := testController(t, llm, out, zap.NewNop())

	c.respondOpenly(context.Background(), "Wann habt ihr geöffnet?")

	assert.NotEmpty(t, out.lastSaid())
	assert.Contains(t, auditStore.actions(), "llm_timeout")
}

func TestTurn_QueryIntentTakesOpenPathNotSlotFill(t *testing.T) {
	llm := &fakeLLM{reply: "Klar, gerne."}
	out := &fakeOutbound{}
	c, _ := testController(t, llm, out, zap.NewNop())
	c.profile.IntentRules = []IntentRule{{Intent: "query", Priority: 1, Keywords: []string{"öffnungszeiten"}}}

	c.turn(context.Background(), "Wie sind eure öffnungszeiten?")

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "Klar, gerne.", out.lastSaid())
	assert.NotEqual(t, models.StateSlotFill, c.snapshot.State)
}

func TestClassifyWithLLM_ErrorLogsLLMTimeoutAndDefaultsToNewRequest(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	out := &fakeOutbound{}
	c, auditStore := testController(t, llm, out, zap.NewNop())

	intent := c.classifyWithLLM(context.Background(), "irgendwas")
	assert.Equal(t, "new_request", intent)
	assert.Contains(t, auditStore.actions(), "llm_timeout")
}

func TestOnUtterance_LowConfidenceLogsEventAndReprompts(t *testing.T) {
	core, obs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	llm := &fakeLLM{}
	out := &fakeOutbound{}
	c, auditStore := testController(t, llm, out, log)
	c.deps.STT = fakeLowConfidenceSTT{}

	c.OnUtterance(make([]byte, 320))

	assert.Contains(t, auditStore.actions(), "low_confidence")
	found := false
	for _, entry := range obs.All() {
		if entry.Message == "low_confidence" {
			found = true
		}
	}
	assert.True(t, found)
	assert.NotEmpty(t, out.lastSaid())
}

type fakeLowConfidenceSTT struct{}

func (fakeLowConfidenceSTT) Transcribe(ctx context.Context, pcm []byte, languageHint string) (pipeline.TranscriptResult, error) {
	return pipeline.TranscriptResult{Text: "unclear", Confidence: 0.1}, nil
}

func TestWatchTurnTimeout_FirstTimeoutRepromptsOnce(t *testing.T) {
	out := &fakeOutbound{}
	c, _ := testController(t, &fakeLLM{}, out, zap.NewNop())
	c.turnTimeoutOverride = 80 * time.Millisecond
	c.lastTurnAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	c.runCancel = func() {}

	go c.watchTurnTimeout(ctx)
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, 1, out.sayCount())
	assert.True(t, c.silenceReprompted)
}

func TestWatchTurnTimeout_SecondTimeoutEndsSessionAbandoned(t *testing.T) {
	out := &fakeOutbound{}
	c, _ := testController(t, &fakeLLM{}, out, zap.NewNop())
	c.turnTimeoutOverride = 20 * time.Millisecond
	c.lastTurnAt = time.Now().UTC()

	cancelled := make(chan struct{})
	c.runCancel = func() { close(cancelled) }

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go c.watchTurnTimeout(ctx)

	select {
	case <-cancelled:
	case <-time.After(400 * time.Millisecond):
		t.Fatal("expected watchTurnTimeout to call runCancel after a second silent window")
	}
	assert.Equal(t, models.SessionAbandoned, c.endStatus)
}

// fakeJobStore is the minimal jobservice.Store (also satisfying
// scheduling.Store) needed to drive Service.Create through routing
// against a single fallback rule, with no workers on hand so no
// auto-book is attempted.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func (s *fakeJobStore) NextJobNumber(ctx context.Context, tenantID string, year int) (string, error) {
	return "J-0001", nil
}
func (s *fakeJobStore) CreateJob(ctx context.Context, job *models.Job, historyActor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = "job-1"
	}
	if s.jobs == nil {
		s.jobs = map[string]*models.Job{}
	}
	s.jobs[job.ID] = job
	return nil
}
func (s *fakeJobStore) DeleteJob(ctx context.Context, tenantID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}
func (s *fakeJobStore) GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID], nil
}
func (s *fakeJobStore) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}
func (s *fakeJobStore) AppendJobHistory(ctx context.Context, jobID, actor, action string, detail map[string]any) error {
	return nil
}
func (s *fakeJobStore) ListWorkersByDepartment(ctx context.Context, tenantID, departmentID string) ([]*models.Worker, error) {
	return nil, nil
}
func (s *fakeJobStore) ListWorkers(ctx context.Context, tenantID string) ([]*models.Worker, error) {
	return nil, nil
}
func (s *fakeJobStore) ActiveRoutingRules(ctx context.Context, tenantID string) ([]*models.RoutingRule, error) {
	return []*models.RoutingRule{{ID: "fallback", Name: "fallback", Active: true, IsFallback: true, Action: models.RuleAction{DepartmentID: "dept-1"}}}, nil
}
func (s *fakeJobStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return &models.Tenant{ID: tenantID}, nil
}
func (s *fakeJobStore) BookedIntervals(ctx context.Context, tenantID, workerID string, dayStart, dayEnd time.Time) ([]scheduling.BookedInterval, error) {
	return nil, nil
}
func (s *fakeJobStore) BookSlot(ctx context.Context, tenantID, workerID, jobID string, start, end time.Time) error {
	return nil
}

func TestEscalate_CreatesEmergencyJob(t *testing.T) {
	llm := &fakeLLM{}
	out := &fakeOutbound{}
	c, auditStore := testController(t, llm, out, zap.NewNop())

	store := &fakeJobStore{}
	router := routing.New(zap.NewNop())
	sched := scheduling.New(store, zap.NewNop())
	ledger := audit.New(auditStore, zap.NewNop())
	c.deps.Jobs = jobservice.New(store, ledger, router, sched, nil, zap.NewNop())
	c.profile.EmergencyPhrases = []string{"gasgeruch"}

	c.turn(context.Background(), "Hilfe, es riecht nach Gas im Keller, Gasgeruch überall!")

	require.NotEmpty(t, c.jobID)
	job := store.jobs[c.jobID]
	require.NotNil(t, job)
	assert.Equal(t, models.UrgencyEmergency, job.Urgency)
	assert.Equal(t, models.JobNew, job.Status)
	assert.Equal(t, models.StateEscalation, c.snapshot.State)
	assert.Contains(t, auditStore.actions(), "escalation_triggered")
}

func TestTurn_ResetsSilenceWatchdogState(t *testing.T) {
	out := &fakeOutbound{}
	c, _ := testController(t, &fakeLLM{reply: "ok"}, out, zap.NewNop())
	c.profile.IntentRules = []IntentRule{{Intent: "chitchat", Priority: 1, Keywords: []string{"hallo"}}}
	c.silenceReprompted = true
	c.lastTurnAt = time.Now().UTC().Add(-time.Hour)

	c.turn(context.Background(), "Hallo!")

	require.False(t, c.silenceReprompted)
	assert.WithinDuration(t, time.Now().UTC(), c.lastTurnAt, time.Second)
}
