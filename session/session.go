// Package session holds the per-connection state: login, role and location acquisition.
package session

import (
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
)

// Session is the state of one interactive client. Admin implies Authenticated.
type Session struct {
	ID            string          `json:"id"`
	Authenticated bool            `json:"authenticated"`
	Admin         bool            `json:"admin"`
	Username      string          `json:"username,omitempty"`
	Location      location.Status `json:"location"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Login verifies the credentials and, on success, replaces the login state and discards any
// location state from the previous identity. On failure the session is left unchanged.
func (s *Session) Login(v auth.Verifier, username, password string) (auth.Role, error) {
	role, err := v.Verify(username, password)
	if err != nil {
		return auth.RoleNone, err
	}
	*s = Session{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		Authenticated: true,
		Admin:         role == auth.RoleAdmin,
		Username:      auth.NormalizeUsername(username),
	}
	return role, nil
}

// Logout clears login and location state in a single assignment.
func (s *Session) Logout() {
	*s = Session{ID: s.ID, CreatedAt: s.CreatedAt}
}

// Role returns RoleNone for anonymous sessions.
func (s *Session) Role() auth.Role {
	switch {
	case s.Authenticated && s.Admin:
		return auth.RoleAdmin
	case s.Authenticated:
		return auth.RoleUser
	}
	return auth.RoleNone
}
