package telegram

import (
	"context"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/session"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params.Text)
	return &tgmodels.Message{}, nil
}

type fakeInbound struct {
	texts []string
}

func (f *fakeInbound) HandleText(ctx context.Context, text string) { f.texts = append(f.texts, text) }
func (f *fakeInbound) OnBargeIn()                                  {}

func TestChatTransport_Say_DeliversViaSender(t *testing.T) {
	fs := &fakeSender{}
	tr := &chatTransport{bot: fs, chatID: 42, ready: make(chan struct{})}
	err := tr.Say(context.Background(), "hallo", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hallo"}, fs.sent)
}

func TestChatTransport_Say_WrapsProviderError(t *testing.T) {
	fs := &fakeSender{err: assert.AnError}
	tr := &chatTransport{bot: fs, chatID: 42, ready: make(chan struct{})}
	err := tr.Say(context.Background(), "hallo", false)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ProviderTransient, appErr.Kind)
}

func TestChatTransport_BindThenForward_DeliversToInbound(t *testing.T) {
	tr := &chatTransport{bot: &fakeSender{}, chatID: 42, ready: make(chan struct{})}
	fi := &fakeInbound{}
	tr.Bind(fi)

	tr.forward(context.Background(), "Wasserrohrbruch im Keller")
	assert.Equal(t, []string{"Wasserrohrbruch im Keller"}, fi.texts)
}

func TestChatTransport_Forward_WaitsForBind(t *testing.T) {
	tr := &chatTransport{bot: &fakeSender{}, chatID: 42, ready: make(chan struct{})}
	fi := &fakeInbound{}

	done := make(chan struct{})
	go func() {
		tr.forward(context.Background(), "hallo")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("forward returned before Bind was called")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Bind(fi)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not deliver after Bind")
	}
	assert.Equal(t, []string{"hallo"}, fi.texts)
}

func TestChatTransport_Forward_CtxCancelDoesNotBlockForever(t *testing.T) {
	tr := &chatTransport{bot: &fakeSender{}, chatID: 42, ready: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr.forward(ctx, "hallo") // must return promptly, not deadlock
}

func TestChatTransport_End_RemovesFromOwnerRegistry(t *testing.T) {
	c := &Channel{chats: map[int64]*chatTransport{}}
	tr := &chatTransport{bot: &fakeSender{}, chatID: 7, ready: make(chan struct{}), owner: c}
	c.chats[7] = tr

	err := tr.End(context.Background(), models.SessionCompleted, "job-1")
	require.NoError(t, err)
	_, ok := c.chats[7]
	assert.False(t, ok)
}

type fakeContactStore struct {
	byPhone map[string]*models.Contact
	created []*models.Contact
}

func (f *fakeContactStore) FindContactByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error) {
	if c, ok := f.byPhone[phone]; ok {
		return c, nil
	}
	return nil, apperr.NotFoundf("contact_not_found", "no contact")
}

func (f *fakeContactStore) CreateContact(ctx context.Context, c *models.Contact) error {
	f.created = append(f.created, c)
	if f.byPhone == nil {
		f.byPhone = map[string]*models.Contact{}
	}
	f.byPhone[c.Phone] = c
	return nil
}

func TestResolveContact_CreatesOnFirstMessage(t *testing.T) {
	store := &fakeContactStore{}
	c := &Channel{cfg: Config{TenantID: "tenant-1"}, contacts: store}

	contact, err := c.resolveContact(context.Background(), 99, &tgmodels.User{FirstName: "Anna", LastName: "Muster"})
	require.NoError(t, err)
	assert.Equal(t, "telegram:99", contact.Phone)
	assert.Equal(t, "Anna Muster", contact.Name)
	assert.Len(t, store.created, 1)
}

func TestResolveContact_ReusesExisting(t *testing.T) {
	existing := &models.Contact{ID: "c1", TenantID: "tenant-1", Phone: "telegram:99"}
	store := &fakeContactStore{byPhone: map[string]*models.Contact{"telegram:99": existing}}
	c := &Channel{cfg: Config{TenantID: "tenant-1"}, contacts: store}

	contact, err := c.resolveContact(context.Background(), 99, nil)
	require.NoError(t, err)
	assert.Same(t, existing, contact)
	assert.Empty(t, store.created)
}

type stubDriver struct{ blocked chan struct{} }

func (d *stubDriver) Run(ctx context.Context, sess *session.Session) (*models.SessionSummary, error) {
	if binder, ok := sess.Transport.(conversation.Binder); ok {
		binder.Bind(&fakeInbound{})
	}
	<-ctx.Done()
	return &models.SessionSummary{}, nil
}

type stubSessionStore struct{}

func (stubSessionStore) SaveSessionSummary(ctx context.Context, s *models.SessionSummary) error {
	return nil
}

func TestOpenSession_RegistersChatAndOpensSupervisorSession(t *testing.T) {
	sup := session.New(session.Limits{MaxConcurrent: 10}, &stubDriver{}, stubSessionStore{}, nil)
	store := &fakeContactStore{}
	c := &Channel{
		cfg:      Config{TenantID: "tenant-1"},
		sup:      sup,
		contacts: store,
		chats:    map[int64]*chatTransport{},
	}

	tr, err := c.openSession(context.Background(), 100, &tgmodels.User{FirstName: "Ben"})
	require.NoError(t, err)
	require.NotNil(t, tr)

	c.mu.Lock()
	_, ok := c.chats[100]
	c.mu.Unlock()
	assert.True(t, ok)
	assert.Eventually(t, func() bool { return sup.Count() == 1 }, time.Second, 5*time.Millisecond)
}
