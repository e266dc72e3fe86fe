package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
	"github.com/twinj/uuid"
)

// Manager owns one Bridge per session id.
type Manager struct {
	store  Store
	logger log.Logger

	mu      sync.Mutex
	bridges map[string]*Bridge
}

func NewManager(store Store, logger log.Logger) *Manager {
	return &Manager{
		store:   store,
		logger:  log.With(logger, "component", "session"),
		bridges: make(map[string]*Bridge),
	}
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewV4().String()
}

// Bridge returns the bridge of session id, loading its user from the store
// on first access. A user whose ID token has expired is signed out before the
// bridge is returned.
func (m *Manager) Bridge(id string) (*Bridge, error) {
	b, err := m.bridge(id)
	if err != nil {
		return nil, err
	}

	if u := b.CurrentUser(); u != nil && u.Expired(time.Now()) {
		m.logger.Log("event", "token_expired", "session", id, "email", u.Email)
		if err := b.SignOut(context.Background()); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *Manager) bridge(id string) (*Bridge, error) {
	if id == "" {
		return nil, identitysvc.ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.bridges[id]; ok {
		return b, nil
	}

	var user *identitysvc.User
	u, err := m.store.Get(id)
	switch {
	case err == nil:
		user = &u
	case errors.Is(err, ErrSessionNotFound):
	default:
		return nil, err
	}

	b := newBridge(id, m.store, user, m.logger)
	m.bridges[id] = b
	return b, nil
}

// Release drops the in-memory bridge of session id. The persisted user, if
// any, is kept.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.bridges, id)
}

// Discard drops the bridge of session id and deletes its persisted user
// without notifying observers.
func (m *Manager) Discard(id string) error {
	m.Release(id)
	return m.store.Delete(id)
}
