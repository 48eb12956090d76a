package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/models"
	"github.com/fieldopsvoice/dispatch/internal/session"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Chat widgets are embedded cross-origin on tenant sites; the
	// tenant token in the connection query string is the real
	// authorization boundary, not Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatFrame is the {type, text} JSON envelope §6's chat WebSocket
// contract defines.
type chatFrame struct {
	Type string `json:"type"` // "user" | "assistant" | "end"
	Text string `json:"text,omitempty"`
	JobID string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
}

type chatHandlers struct{ d *Deps }

// connect implements the chat WebSocket endpoint (§6): upgrades the
// connection, opens a session.Supervisor session with a chatTransport
// Outbound, then reads {type:"user"} frames off the socket for the
// lifetime of the connection.
func (h *chatHandlers) connect(c *gin.Context) {
	ws, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.d.Log != nil {
			h.d.Log.Error("chat websocket upgrade failed", zap.Error(err))
		}
		return
	}
	defer ws.Close()

	tid := tenantID(c)
	contactID := c.Query("contact_id")
	sessionID := uuid.NewString()

	t := &chatTransport{ws: ws, ready: make(chan struct{}), log: h.d.Log}

	sess, err := h.d.Sessions.Open(c.Request.Context(), session.Descriptor{
		ID:        sessionID,
		TenantID:  tid,
		Channel:   models.ChannelChat,
		ContactID: contactID,
		Transport: t,
	})
	if err != nil {
		_ = ws.WriteJSON(chatFrame{Type: "end", Status: "rejected"})
		return
	}

	for {
		var in chatFrame
		if err := ws.ReadJSON(&in); err != nil {
			h.d.Sessions.Close(sess.ID, "client_disconnected")
			return
		}
		if in.Type != "user" {
			continue
		}
		select {
		case <-t.ready:
			t.inbound.HandleText(c.Request.Context(), in.Text)
		case <-c.Request.Context().Done():
			return
		}
	}
}

// chatTransport implements conversation.Outbound and conversation.Binder
// for one chat WebSocket connection, mirroring
// internal/channels/telegram's chatTransport (same Bind-then-forward
// shape, gorilla/websocket frames instead of a bot API call).
type chatTransport struct {
	ws  *websocket.Conn
	log *zap.Logger

	writeMu sync.Mutex

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

func (t *chatTransport) Say(ctx context.Context, text string, critical bool) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.ws.WriteJSON(chatFrame{Type: "assistant", Text: text}); err != nil {
		return apperr.Wrap(apperr.ProviderTransient, "chat_send_failed", "sending chat frame", err)
	}
	return nil
}

func (t *chatTransport) End(ctx context.Context, status models.SessionEndStatus, jobID string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteJSON(chatFrame{Type: "end", Status: string(status), JobID: jobID})
}

func (t *chatTransport) Transfer(ctx context.Context, reason string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteJSON(chatFrame{Type: "assistant", Text: "Ein Mitarbeiter übernimmt das Gespräch: " + reason})
}
