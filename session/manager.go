package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const CookieName = "captura_session"

// Manager binds sessions to a cookie and persists them in a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(store Store, ttl time.Duration, secureCookie bool) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		secure: secureCookie,
		now:    time.Now,
		locks:  make(map[string]*sessionLock),
	}
}

// Lock serializes work on one session id within this process. The returned func releases it.
func (m *Manager) Lock(id string) func() {
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

// Acquire locks the session named by the request cookie and loads it. The caller must hold
// the returned release func until its last Save, so load-modify-save never interleaves with
// another request on the same session.
func (m *Manager) Acquire(w http.ResponseWriter, r *http.Request) (*Session, func(), error) {
	release := func() {}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		release = m.Lock(cookie.Value)
	}
	s, err := m.Load(w, r)
	if err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

// Update runs fn on the stored session id under its lock and saves the result.
// fn's error aborts the save.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	release := m.Lock(id)
	defer release()

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return nil, err
	}
	return s, nil
}

// Start creates an empty session and sets its cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	s := &Session{ID: uuid.NewString(), CreatedAt: m.now().UTC()}
	if err := m.Save(ctx, w, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the session named by the request cookie, starting a new one when the cookie
// is missing or the session expired.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	ctx := r.Context()
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return m.Start(ctx, w)
	}
	s, err := m.store.Load(ctx, cookie.Value)
	if errors.Is(err, ErrNotFound) {
		logrus.WithField("session", shortID(cookie.Value)).Debug("Session expired, starting a new one")
		return m.Start(ctx, w)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists s and refreshes the cookie expiry.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return nil
}

// Rotate moves s to a fresh id, used after login.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, s *Session) error {
	old := s.ID
	s.ID = uuid.NewString()
	if err := m.Save(ctx, w, s); err != nil {
		s.ID = old
		return err
	}
	return m.store.Delete(ctx, old)
}

// Destroy drops s from the store and expires its cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return m.store.Delete(ctx, s.ID)
}

// Active returns the number of live sessions.
func (m *Manager) Active(ctx context.Context) (int, error) {
	return m.store.Len(ctx)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
