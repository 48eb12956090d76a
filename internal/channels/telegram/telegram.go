// Package telegram implements the messenger channel adapter (source
// "messenger" in §3's Job model): a Telegram bot that feeds the same
// Conversation SM every other channel drives, via conversation.Outbound
// + conversation.Inbound instead of a phone call's audio bridge or the
// chat WebSocket's JSON frames.
//
// Grounded on haasonsaas-nexus's internal/channels/telegram/adapter.go
// (bot.New, long-polling RegisterHandler, per-chat message routing) —
// kept HOW, replaced WHAT: adapter.go feeds a generic outbound message
// queue for an arbitrary downstream consumer; this adapter opens one
// session.Supervisor session per Telegram chat and forwards each
// message straight into that session's Controller.
package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/session"
)

// sender is the narrow slice of *bot.Bot this adapter drives, split
// out so tests can inject a fake instead of hitting Telegram's API.
// Grounded on haasonsaas-nexus's BotClient wrapper interface.
type sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

// ContactStore is the lookup/create surface needed to resolve a
// Telegram chat to a Contact record. Satisfied by storage.Postgres.
type ContactStore interface {
	FindContactByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error)
	CreateContact(ctx context.Context, c *models.Contact) error
}

// Config is the construction-time configuration. The bot serves a
// single tenant per process, matching config.Config's single
// TelegramBotToken field — a deployment wanting per-tenant bots runs
// one process per tenant, same as it would for a dedicated phone
// number pool.
type Config struct {
	Token    string
	TenantID string
}

// Channel is the Telegram messenger adapter.
type Channel struct {
	cfg      Config
	bot      *tgbot.Bot
	sup      *session.Supervisor
	contacts ContactStore
	log      *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chatTransport
}

func New(cfg Config, sup *session.Supervisor, contacts ContactStore, log *zap.Logger) (*Channel, error) {
	if cfg.Token == "" {
		return nil, apperr.New(apperr.Validation, "telegram_token_required", "telegram bot token is required")
	}
	c := &Channel{cfg: cfg, sup: sup, contacts: contacts, log: log, chats: make(map[int64]*chatTransport)}
	b, err := tgbot.New(cfg.Token, tgbot.WithDefaultHandler(c.handleUpdate))
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderFatal, "telegram_bot_init_failed", "constructing telegram bot client", err)
	}
	c.bot = b
	return c, nil
}

// Start begins long-polling for updates; it blocks until ctx is
// cancelled, matching bot.Bot.Start's contract.
func (c *Channel) Start(ctx context.Context) {
	c.log.Info("starting telegram channel", zap.String("tenant_id", c.cfg.TenantID))
	c.bot.Start(ctx)
}

func (c *Channel) handleUpdate(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := update.Message.Chat.ID
	text := update.Message.Text

	c.mu.Lock()
	t, ok := c.chats[chatID]
	c.mu.Unlock()

	if ok {
		t.forward(ctx, text)
		return
	}

	// Opening the session already triggers the profile's greeting via
	// Controller.run; the message that caused the open is not replayed
	// as a user turn.
	if _, err := c.openSession(ctx, chatID, update.Message.From); err != nil {
		if c.log != nil {
			c.log.Error("failed to open telegram session", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}
}

func (c *Channel) openSession(ctx context.Context, chatID int64, from *tgmodels.User) (*chatTransport, error) {
	contact, err := c.resolveContact(ctx, chatID, from)
	if err != nil {
		return nil, err
	}

	t := &chatTransport{bot: sender(c.bot), chatID: chatID, ready: make(chan struct{}), owner: c}
	sessionID := uuid.NewString()

	c.mu.Lock()
	c.chats[chatID] = t
	c.mu.Unlock()

	_, err = c.sup.Open(ctx, session.Descriptor{
		ID:        sessionID,
		TenantID:  c.cfg.TenantID,
		Channel:   models.ChannelMessenger,
		ContactID: contact.ID,
		Transport: t,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.chats, chatID)
		c.mu.Unlock()
		return nil, err
	}
	return t, nil
}

// resolveContact finds or creates a Contact keyed on a synthetic
// "telegram:<chat_id>" identifier in the phone field — Telegram never
// discloses a real phone number without an explicit contact-share flow,
// which is out of scope here.
func (c *Channel) resolveContact(ctx context.Context, chatID int64, from *tgmodels.User) (*models.Contact, error) {
	key := fmt.Sprintf("telegram:%d", chatID)
	existing, err := c.contacts.FindContactByPhone(ctx, c.cfg.TenantID, key)
	if err == nil && existing != nil {
		return existing, nil
	}

	name := key
	if from != nil {
		name = fmt.Sprintf("%s %s", from.FirstName, from.LastName)
	}
	contact := &models.Contact{
		ID:       uuid.NewString(),
		TenantID: c.cfg.TenantID,
		Name:     name,
		Phone:    key,
	}
	if err := c.contacts.CreateContact(ctx, contact); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "telegram_contact_create_failed", "creating contact for telegram chat", err)
	}
	return contact, nil
}

// chatTransport implements conversation.Outbound and
// conversation.Binder for one Telegram chat.
type chatTransport struct {
	bot    sender
	chatID int64
	owner  *Channel

	bindOnce sync.Once
	ready    chan struct{}
	inbound  conversation.Inbound
}

var (
	_ conversation.Outbound = (*chatTransport)(nil)
	_ conversation.Binder   = (*chatTransport)(nil)
)

func (t *chatTransport) Bind(in conversation.Inbound) {
	t.bindOnce.Do(func() {
		t.inbound = in
		close(t.ready)
	})
}

// forward waits for the session's Controller to finish binding (a
// small, one-time race against session.Supervisor.Open's goroutine
// start-up) then delivers the message as a user turn.
func (t *chatTransport) forward(ctx context.Context, text string) {
	select {
	case <-t.ready:
		t.inbound.HandleText(ctx, text)
	case <-ctx.Done():
	}
}

func (t *chatTransport) Say(ctx context.Context, text string, critical bool) error {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: t.chatID, Text: text})
	if err != nil {
		return apperr.Wrap(apperr.ProviderTransient, "telegram_send_failed", "sending telegram message", err)
	}
	return nil
}

func (t *chatTransport) End(ctx context.Context, status models.SessionEndStatus, jobID string) error {
	t.owner.mu.Lock()
	delete(t.owner.chats, t.chatID)
	t.owner.mu.Unlock()
	return nil
}

// Transfer has no Telegram-native equivalent; a human handoff on this
// channel means an operator later replies from the department's own
// account, which is outside what this adapter can automate.
func (t *chatTransport) Transfer(ctx context.Context, reason string) error {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: t.chatID,
		Text:   "Ein Mitarbeiter wird sich in Kürze bei Ihnen melden.",
	})
	return err
}
