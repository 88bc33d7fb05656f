package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	"github.com/PatricioTamez/orchestrator2.0/internal/identity"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

// Manager owns one Client per signed-in identity for the HTTP surface.
type Manager struct {
	store     store.LiveStore
	responder bot.Responder
	log       *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates an empty client manager.
func NewManager(st store.LiveStore, responder bot.Responder, log *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		responder: responder,
		log:       log,
		clients:   make(map[string]*Client),
	}
}

// Attach returns the identity's client, creating and starting one on
// first sign-in. Attaching is idempotent.
func (m *Manager) Attach(id *models.Identity) *Client {
	m.mu.Lock()
	client, ok := m.clients[id.ID]
	if !ok {
		client = NewClient(m.store, m.responder, m.log)
		m.clients[id.ID] = client
	}
	m.mu.Unlock()

	client.Session().MarkReady(id)
	return client
}

// Client returns the identity's client if one is attached.
func (m *Manager) Client(identityID string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[identityID]
	return client, ok
}

// Release signs the identity's client out and discards it.
func (m *Manager) Release(identityID string) {
	m.mu.Lock()
	client, ok := m.clients[identityID]
	delete(m.clients, identityID)
	m.mu.Unlock()

	if ok {
		client.Session().Clear()
		client.Close()
	}
}

// HandleSession routes identity-provider session events to clients.
// Registered with identity.Provider.OnChange at startup.
func (m *Manager) HandleSession(ev identity.Event) {
	if ev.Identity == nil {
		return
	}
	if ev.SignedIn {
		m.Attach(ev.Identity)
		return
	}
	m.Release(ev.Identity.ID)
}

// Shutdown closes every attached client.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
