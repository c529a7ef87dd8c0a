package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"pdf-qa/internal/config"
	"pdf-qa/internal/helper"
	"pdf-qa/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionManager ties the session cookie of a request to its stored state
type SessionManager struct {
	store session.Store
	cfg   config.SessionConfig

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionManager(store session.Store, cfg config.SessionConfig) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, locks: make(map[string]*sessionLock)}
}

// Load returns the state of the request's session, issuing a new session
// cookie when the request carries none.
func (m *SessionManager) Load(c *gin.Context) (*session.State, error) {
	id, fresh, err := m.sessionID(c)
	if err != nil {
		return nil, err
	}
	if fresh {
		return session.New(id), nil
	}
	return m.Get(c.Request.Context(), id)
}

// LoadLocked is Load for requests that modify the state. The session stays
// locked until the returned func is called, after the state is saved.
func (m *SessionManager) LoadLocked(c *gin.Context) (*session.State, func(), error) {
	id, fresh, err := m.sessionID(c)
	if err != nil {
		return nil, nil, err
	}
	unlock := m.Lock(id)
	if fresh {
		return session.New(id), unlock, nil
	}
	state, err := m.Get(c.Request.Context(), id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return state, unlock, nil
}

// Lock serializes load, modify and save of one session within this process
func (m *SessionManager) Lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// sessionID reads the session cookie or issues a new one; fresh reports the latter
func (m *SessionManager) sessionID(c *gin.Context) (string, bool, error) {
	if id, err := c.Cookie(m.cfg.CookieName); err == nil && helper.IsUUID(id) {
		return id, false, nil
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return "", false, err
	}
	http.SetCookie(c.Writer, m.cookie(id))
	return id, true, nil
}

// Get returns the stored state of id, or a fresh state if nothing was saved yet
func (m *SessionManager) Get(ctx context.Context, id string) (*session.State, error) {
	state, err := m.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(id), nil
	}
	return state, err
}

func (m *SessionManager) Save(ctx context.Context, state *session.State) error {
	return m.store.Save(ctx, state)
}

func (m *SessionManager) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   m.cfg.MaxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
