// Package session keeps one isolated chat.Controller per interactive session.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/writer-chat/internal/chat"
	"github.com/comigor/writer-chat/internal/logger"
)

// StoreFactory creates the conversation store for a new session.
type StoreFactory func(sessionID string) chat.Store

// Notifier is the event sink shared by all sessions.
type Notifier interface {
	chat.Notifier
	// Close drops the session's subscribers.
	Close(sessionID string)
}

// dropper is implemented by stores that hold resources beyond the session's lifetime.
type dropper interface {
	Drop() error
}

type entry struct {
	ctrl  *chat.Controller
	store chat.Store
}

// Manager is the registry of live sessions.
type Manager struct {
	newStore  StoreFactory
	completer chat.Completer
	persona   string
	notifier  Notifier

	mu       sync.Mutex
	sessions map[string]entry
}

// NewManager returns an empty registry. notifier may be nil.
func NewManager(newStore StoreFactory, completer chat.Completer, persona string, notifier Notifier) *Manager {
	return &Manager{
		newStore:  newStore,
		completer: completer,
		persona:   persona,
		notifier:  notifier,
		sessions:  make(map[string]entry),
	}
}

// Create starts a new session with a random id.
func (m *Manager) Create() *chat.Controller {
	return m.Open(uuid.NewString())
}

// Open returns the session with id, creating it if needed.
func (m *Manager) Open(id string) *chat.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		return e.ctrl
	}

	store := m.newStore(id)
	var n chat.Notifier
	if m.notifier != nil {
		n = m.notifier
	}
	ctrl := chat.NewController(id, store, m.completer, m.persona, n)
	m.sessions[id] = entry{ctrl: ctrl, store: store}
	logger.L.Info("session started", "session", id)
	return ctrl
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*chat.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return e.ctrl, ok
}

// Resolve returns the session named by id if it exists, otherwise a new
// session with a fresh id. Client-supplied ids never name new sessions.
func (m *Manager) Resolve(id string) (*chat.Controller, bool) {
	if id != "" {
		if ctrl, ok := m.Get(id); ok {
			return ctrl, false
		}
	}
	return m.Create(), true
}

// End destroys a session and its conversation.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	// Closing first keeps an in-flight reply out of the dropped store.
	e.ctrl.Close()
	if m.notifier != nil {
		m.notifier.Close(id)
	}
	logger.L.Info("session ended", "session", id)
	if d, ok := e.store.(dropper); ok {
		if err := d.Drop(); err != nil {
			return fmt.Errorf("ending session: %w", err)
		}
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
