package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Intent types, client → server.
const (
	IntentOpen    = "open"
	IntentSend    = "send"
	IntentTyping  = "typing"
	IntentRetry   = "retry"
	IntentDiscard = "discard"
	IntentClose   = "close"
)

// Frame types, server → client.
const (
	FrameView  = "view"
	FrameSent  = "sent"
	FrameError = "error"
)

// Intent is one UI action read from the socket.
type Intent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	TempID         string `json:"temp_id,omitempty"`
}

// Frame is one server → client message.
type Frame struct {
	Type    string `json:"type"`
	View    *View  `json:"view,omitempty"`
	TempID  string `json:"temp_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WebSocketClient реалізує інтерфейс chathub.Client. It owns at most one
// Session and streams its views to the browser.
type WebSocketClient struct {
	ID       string
	UserID   string
	Identity IdentityProvider
	Conn     *websocket.Conn
	Hub      *ManagerService
	Send     chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.Mutex
	session *Session
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string, identity IdentityProvider) *WebSocketClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketClient{
		ID:       uuid.New().String(),
		UserID:   userID,
		Identity: identity,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, sendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *WebSocketClient) GetClientID() string { return c.ID }
func (c *WebSocketClient) GetUserID() string   { return c.UserID }

func (c *WebSocketClient) GetConversationID() string {
	if s := c.currentSession(); s != nil {
		return s.ConversationID()
	}
	return ""
}

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close ends the session and stops the write pump, which closes the socket.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		c.swapSession(nil)
		c.cancel()
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}

		var intent Intent
		if err := json.Unmarshal(message, &intent); err != nil {
			log.Printf("Error decoding JSON from client %s: %v", c.UserID, err)
			c.sendError("INVALID_PAYLOAD", "invalid intent")
			continue
		}
		c.handleIntent(intent)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *WebSocketClient) handleIntent(intent Intent) {
	if intent.Type == IntentOpen {
		c.open(intent.ConversationID)
		return
	}

	s := c.currentSession()
	if s == nil {
		c.sendError("NOT_OPEN", "open a conversation first")
		return
	}

	var err error
	switch intent.Type {
	case IntentSend:
		var tempID string
		if tempID, err = s.Send(intent.Content); err == nil {
			c.enqueue(Frame{Type: FrameSent, TempID: tempID})
		}
	case IntentTyping:
		err = s.SetTyping(intent.IsTyping)
	case IntentRetry:
		err = s.Retry(intent.TempID)
	case IntentDiscard:
		err = s.Discard(intent.TempID)
	case IntentClose:
		c.swapSession(nil)
	default:
		c.sendError("UNKNOWN_INTENT", "unknown intent type: "+intent.Type)
		return
	}
	if err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *WebSocketClient) open(conversationID string) {
	if conversationID == "" {
		c.sendError("INVALID_PAYLOAD", "conversation_id required")
		return
	}
	if err := c.Hub.Authorize(c.ctx, conversationID, c.UserID); err != nil {
		c.sendError(errorCode(err), err.Error())
		return
	}

	s := c.Hub.NewSession(c.Identity)
	c.swapSession(s)
	go c.forwardViews(s)
	go func() {
		if err := s.Open(c.ctx, conversationID); err != nil {
			c.sendError(errorCode(err), err.Error())
		}
	}()
}

func (c *WebSocketClient) forwardViews(s *Session) {
	for v := range s.Views() {
		c.enqueue(Frame{Type: FrameView, View: &v})
	}
}

// swapSession installs next and closes the previous session, if any.
func (c *WebSocketClient) swapSession(next *Session) {
	c.mu.Lock()
	prev := c.session
	c.session = next
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (c *WebSocketClient) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *WebSocketClient) enqueue(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("Error encoding JSON for client %s: %v", c.UserID, err)
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	}
}

func (c *WebSocketClient) sendError(code, message string) {
	c.enqueue(Frame{Type: FrameError, Code: code, Message: message})
}

func errorCode(err error) string {
	var historyErr *HistoryLoadError
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.As(err, &historyErr):
		return "HISTORY_UNAVAILABLE"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotOpen), errors.Is(err, ErrSessionClosed):
		return "NOT_OPEN"
	case errors.Is(err, ErrUnknownMessage), errors.Is(err, ErrNotFailed):
		return "BAD_MESSAGE"
	default:
		return "INTERNAL"
	}
}
