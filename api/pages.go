package api

import (
	"errors"
	"net/http"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	log "github.com/sirupsen/logrus"
)

// page carries the fields shared by every HTML view.
type page struct {
	Title    string
	Username string
	Error    string
	Notice   string
}

type loginPage struct {
	page
	Login string
}

func homeFor(role auth.Role) string {
	switch role {
	case auth.RoleAdmin:
		return "/admin"
	case auth.RoleUser:
		return "/form"
	}
	return "/login"
}

func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, homeFor(sessionFrom(r).Role()), http.StatusSeeOther)
}

func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if sess.Authenticated {
		http.Redirect(w, r, homeFor(sess.Role()), http.StatusSeeOther)
		return
	}
	render(w, http.StatusOK, "login.html", loginPage{page: page{Title: "Iniciar sesión"}})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	sess := sessionFrom(r)
	username := r.PostForm.Get("username")

	role, err := sess.Login(s.Verifier, username, r.PostForm.Get("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.WithField("username", auth.NormalizeUsername(username)).Info("Rejected login")
		render(w, http.StatusUnauthorized, "login.html", loginPage{
			page:  page{Title: "Iniciar sesión", Error: "Credenciales inválidas"},
			Login: username,
		})
		return
	}
	if err != nil {
		log.WithError(err).Error("Error verifying credentials")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.Sessions.Rotate(r.Context(), w, sess); err != nil {
		log.WithError(err).Error("Error saving session")
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{"username": sess.Username, "role": role}).Info("Logged in")
	http.Redirect(w, r, homeFor(role), http.StatusSeeOther)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	username := sess.Username
	sess.Logout()
	if !s.saveSession(w, r, sess) {
		return
	}
	if username != "" {
		log.WithField("username", username).Info("Logged out")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := s.Sessions.Save(r.Context(), w, sess); err != nil {
		log.WithError(err).Error("Error saving session")
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return false
	}
	return true
}

// requireRole redirects anonymous visitors to the login page and rejects insufficient roles.
func requireRole(w http.ResponseWriter, r *http.Request, role auth.Role) (*session.Session, bool) {
	sess := sessionFrom(r)
	switch {
	case !sess.Authenticated:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	case role == auth.RoleAdmin && !sess.Admin:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return sess, true
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"schema": s.Repo.Schema().Name,
	})
}
