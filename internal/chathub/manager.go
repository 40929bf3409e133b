package chathub

import (
	"context"
	"log"
	"sync"

	"djchat/backend/internal/config"
)

// ParticipantChecker guards which conversations a user may open.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// ManagerService tracks connected clients and builds their sessions from the
// shared store and transport.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client

	Store     MessageStore
	Transport Transport
	Access    ParticipantChecker
	Config    config.ChatConfig
	Recorder  Recorder

	done chan struct{}
}

func NewManagerService(store MessageStore, transport Transport, cfg config.ChatConfig) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Store:        store,
		Transport:    transport,
		Config:       cfg.WithDefaults(),
		done:         make(chan struct{}),
	}
}

// NewSession builds an unopened session for the given identity.
func (m *ManagerService) NewSession(identity IdentityProvider, opts ...SessionOption) *Session {
	if m.Recorder != nil {
		opts = append([]SessionOption{WithRecorder(m.Recorder)}, opts...)
	}
	return NewSession(m.Config, m.Store, m.Transport, identity, opts...)
}

// Authorize checks that userID may open conversationID.
func (m *ManagerService) Authorize(ctx context.Context, conversationID, userID string) error {
	if m.Access == nil {
		return nil
	}
	ok, err := m.Access.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Run is the registry loop. When ctx is done every client is closed.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case client := <-m.RegisterCh:
			m.mu.Lock()
			m.Clients[client.GetClientID()] = client
			m.mu.Unlock()
			log.Printf("INFO: client %s (user %s) connected", client.GetClientID(), client.GetUserID())

		case client := <-m.UnregisterCh:
			m.mu.Lock()
			_, ok := m.Clients[client.GetClientID()]
			delete(m.Clients, client.GetClientID())
			m.mu.Unlock()
			if ok {
				client.Close()
				log.Printf("INFO: client %s (user %s) disconnected", client.GetClientID(), client.GetUserID())
			}

		case <-ctx.Done():
			m.mu.Lock()
			clients := m.Clients
			m.Clients = make(map[string]Client)
			m.mu.Unlock()
			for _, client := range clients {
				client.Close()
			}
			log.Printf("INFO: chat hub stopped, closed %d clients", len(clients))
			return
		}
	}
}

// Register hands a client to the registry loop.
func (m *ManagerService) Register(client Client) {
	select {
	case m.RegisterCh <- client:
	case <-m.done:
		client.Close()
	}
}

// Unregister removes a client; it never blocks once the loop has stopped.
func (m *ManagerService) Unregister(client Client) {
	select {
	case m.UnregisterCh <- client:
	case <-m.done:
	}
}

// ClientCount returns the number of registered clients.
func (m *ManagerService) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients)
}

// HasClient reports whether clientID is registered.
func (m *ManagerService) HasClient(clientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Clients[clientID]
	return ok
}
