package api

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	log "github.com/sirupsen/logrus"
)

type formField struct {
	Name      string
	Label     string
	Value     string
	MaxLength int
	Numeric   bool
}

type formPage struct {
	page
	Fields   []formField
	Location location.View
	Script   template.HTML
}

func (s *Server) formPage(sess *session.Session, values map[string]string) formPage {
	schema := s.Repo.Schema()
	fields := make([]formField, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = formField{
			Name:      f.Name,
			Label:     f.Label,
			Value:     values[f.Name],
			MaxLength: f.MaxLength,
			Numeric:   f.Kind != models.KindText,
		}
	}
	return formPage{
		page:     page{Title: "Captura de datos", Username: sess.Username},
		Fields:   fields,
		Location: sess.Location.View(s.clock()),
	}
}

// FormPage renders the user view. A round-tripped location relay is consumed first and the
// browser is redirected to the same URL without the relay parameters.
func (s *Server) FormPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}

	if q := r.URL.Query(); location.HasRelay(q) {
		s.applyRelay(sess, q)
		if !s.saveSession(w, r, sess) {
			return
		}
		target := *r.URL
		target.RawQuery = location.StripQuery(q).Encode()
		http.Redirect(w, r, target.RequestURI(), http.StatusSeeOther)
		return
	}

	data := s.formPage(sess, nil)
	if id := r.URL.Query().Get("saved"); id != "" {
		data.Notice = "Registro " + id + " guardado"
	}

	if req, dispatch := s.Bridge.Dispatch(&sess.Location); dispatch {
		script, err := location.Script(req)
		if err != nil {
			log.WithError(err).Error("Error rendering location script")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		data.Script = script
		if !s.saveSession(w, r, sess) {
			return
		}
	}
	render(w, http.StatusOK, "form.html", data)
}

func (s *Server) applyRelay(sess *session.Session, q url.Values) {
	entry := log.WithField("username", sess.Username)
	relay, err := location.ParseQuery(q)
	if err != nil {
		// only the outstanding request is worth reporting; anything else is stale
		if !sess.Location.Awaits(strings.TrimSpace(q.Get(location.ParamRequest))) {
			entry.WithField("request_id", q.Get(location.ParamRequest)).Debug("Ignoring stale location relay")
			return
		}
		entry.WithError(err).Warn("Ignoring malformed location relay")
		return
	}
	applied, err := s.Bridge.Apply(&sess.Location, relay)
	switch {
	case err != nil:
		entry.WithError(err).Warn("Ignoring malformed location relay")
	case applied:
		entry.WithFields(log.Fields{"request_id": relay.RequestID, "state": sess.Location.State}).Info("Location relay applied")
	default:
		entry.WithField("request_id", relay.RequestID).Debug("Ignoring stale location relay")
	}
}

// SubmitForm stores one record. Submission requires a granted location.
func (s *Server) SubmitForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	schema := s.Repo.Schema()
	values := make(map[string]string, len(schema.Fields))
	for _, name := range schema.FieldNames() {
		values[name] = r.PostForm.Get(name)
	}

	if err := sess.Location.Ready(); err != nil {
		data := s.formPage(sess, values)
		data.Error = locationMessage(err)
		render(w, http.StatusConflict, "form.html", data)
		return
	}

	id, err := s.Repo.Insert(r.Context(), models.Record{
		Owner:    sess.Username,
		Fields:   values,
		Location: sess.Location.Coordinates,
	})
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		data := s.formPage(sess, values)
		data.Error = verr.Error()
		render(w, http.StatusUnprocessableEntity, "form.html", data)
		return
	case err != nil:
		storageFailure(w, err)
		return
	}

	log.WithFields(log.Fields{"record_id": id, "owner": sess.Username}).Info("Record submitted")
	http.Redirect(w, r, "/form?saved="+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func locationMessage(err error) string {
	var denied *location.DeniedError
	switch {
	case errors.Is(err, location.ErrPending):
		return "Todavía esperando la ubicación del navegador"
	case errors.As(err, &denied):
		return "No se pudo obtener la ubicación: " + denied.Reason
	}
	return "Obtén tu ubicación antes de guardar"
}

func storageFailure(w http.ResponseWriter, err error) {
	logStorageError(err)
	http.Error(w, "No se pudo guardar. Intenta de nuevo más tarde.", http.StatusInternalServerError)
}

// RequestLocation starts a new acquisition; the next form render carries the client script.
func (s *Server) RequestLocation(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	req := s.Bridge.Request(&sess.Location)
	if !s.saveSession(w, r, sess) {
		return
	}
	log.WithFields(log.Fields{"username": sess.Username, "request_id": req.ID}).Debug("Location requested")
	http.Redirect(w, r, "/form", http.StatusSeeOther)
}

// RelayLocation is the page-message relay channel.
func (s *Server) RelayLocation(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !sess.Authenticated {
		writeJSONError(w, http.StatusUnauthorized, "login required")
		return
	}
	relay, err := location.DecodeMessage(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	applied, err := s.Bridge.Apply(&sess.Location, relay)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if applied {
		if !s.saveSession(w, r, sess) {
			return
		}
		log.WithFields(log.Fields{"username": sess.Username, "request_id": relay.RequestID, "state": sess.Location.State}).Info("Location relay applied")
	}
	writeJSON(w, http.StatusOK, struct {
		Applied bool `json:"applied"`
		location.View
	}{applied, sess.Location.View(s.clock())})
}

func (s *Server) LocationStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !sess.Authenticated {
		writeJSONError(w, http.StatusUnauthorized, "login required")
		return
	}
	writeJSON(w, http.StatusOK, sess.Location.View(s.clock()))
}
