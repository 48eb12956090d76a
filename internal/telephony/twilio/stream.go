package twilio

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// mediaMessage mirrors the Twilio Media Streams wire protocol.
// Grounded on transport/provider.go's mediaMessage/startMessage/
// mediaPayload/dtmfMessage structs.
type mediaMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startMessage `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	DTMF      *dtmfMessage  `json:"dtmf,omitempty"`
}

type startMessage struct {
	StreamSID string   `json:"streamSid"`
	CallSID   string   `json:"callSid"`
	Tracks    []string `json:"tracks"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type dtmfMessage struct {
	Digit string `json:"digit"`
}

// outboundQueueDepth bounds how many un-sent audio frames a mediaConn
// will hold before dropping the oldest, matching transport/
// provider.go's audioWriter backpressure policy (§4.2's "frame
// buffers have a hard cap; on overflow, discard the oldest").
const outboundQueueDepth = 100

// mediaConn owns one Media Streams WebSocket connection for the
// lifetime of a call. readLoop decodes inbound μ-law frames to PCM
// and dispatches them to the Provider's Handler; writeLoop drains the
// outbound queue a Call.PlayAudio enqueues into.
type mediaConn struct {
	ws       *websocket.Conn
	provider *Provider
	log      *zap.Logger

	mu        sync.Mutex
	streamSID string
	callSID   string
	closed    bool
	done      chan struct{}
	outbound  chan []byte
}

func newMediaConn(ws *websocket.Conn, p *Provider, log *zap.Logger) *mediaConn {
	return &mediaConn{
		ws:       ws,
		provider: p,
		log:      log,
		done:     make(chan struct{}),
		outbound: make(chan []byte, outboundQueueDepth),
	}
}

func (c *mediaConn) readLoop() {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Event {
		case "start":
			if msg.Start == nil {
				continue
			}
			c.mu.Lock()
			c.streamSID = msg.Start.StreamSID
			c.callSID = msg.Start.CallSID
			c.mu.Unlock()
			c.provider.onStreamStarted(msg.Start.CallSID, c)

		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			c.mu.Lock()
			callSID := c.callSID
			c.mu.Unlock()
			c.provider.onAudioFrame(callSID, mulawToPCM(raw))

		case "dtmf":
			if msg.DTMF == nil {
				continue
			}
			c.mu.Lock()
			callSID := c.callSID
			c.mu.Unlock()
			c.provider.onDTMF(callSID, msg.DTMF.Digit)

		case "stop":
			c.mu.Lock()
			callSID := c.callSID
			c.mu.Unlock()
			c.provider.onStreamStopped(callSID)
			return
		}
	}
}

func (c *mediaConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-c.outbound:
			if !ok {
				return
			}
			c.mu.Lock()
			streamSID := c.streamSID
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			payload := map[string]any{
				"event":     "media",
				"streamSid": streamSID,
				"media":     map[string]string{"payload": base64.StdEncoding.EncodeToString(pcmToMulaw(frame))},
			}
			if err := c.ws.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

// enqueue pushes a PCM frame for delivery, dropping the oldest queued
// frame on overflow rather than blocking the caller.
func (c *mediaConn) enqueue(pcm []byte) {
	select {
	case c.outbound <- pcm:
	default:
		select {
		case <-c.outbound:
		default:
		}
		select {
		case c.outbound <- pcm:
		default:
		}
	}
}

func (c *mediaConn) clear() {
	for {
		select {
		case <-c.outbound:
		default:
			return
		}
	}
}

func (c *mediaConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	_ = c.ws.Close()
}
