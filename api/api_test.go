package api

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/auth"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/types"
)

type staticCollector struct{}

func (staticCollector) GetStats() types.CollectionStats {
	return types.CollectionStats{TotalSnapshots: 7}
}

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	repo   *db.Repository
	store  *session.MemoryStore
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore lets a test put wrap between the session manager and the memory store.
func newTestEnvWithStore(t *testing.T, wrap func(session.Store) session.Store) *testEnv {
	t.Helper()
	repo, err := db.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "api.db"), models.AddressSchema)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := session.NewMemoryStore(time.Minute)
	var backing session.Store = store
	if wrap != nil {
		backing = wrap(store)
	}
	s := &Server{
		Repo:      repo,
		Sessions:  session.NewManager(backing, time.Hour, false),
		Verifier:  auth.DemoVerifier(),
		Bridge:    location.NewBridge(0),
		Collector: staticCollector{},
		MasterKey: "master",
	}
	srv := httptest.NewServer(NewRouter(s))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
		repo.Close()
	})
	return &testEnv{t: t, srv: srv, repo: repo, store: store, server: s}
}

// client returns a cookie-keeping client that does not follow redirects.
func (e *testEnv) client() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) get(c *http.Client, path string) *http.Response {
	e.t.Helper()
	resp, err := c.Get(e.srv.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) post(c *http.Client, path string, form url.Values) *http.Response {
	e.t.Helper()
	resp, err := c.PostForm(e.srv.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(username, password string) *http.Client {
	e.t.Helper()
	c := e.client()
	resp := e.post(c, "/login", url.Values{"username": {username}, "password": {password}})
	if resp.StatusCode != http.StatusSeeOther {
		e.t.Fatalf("login %s: expected 303, got %d", username, resp.StatusCode)
	}
	return c
}

func (e *testEnv) sessionID(c *http.Client) string {
	e.t.Helper()
	u, _ := url.Parse(e.srv.URL)
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == session.CookieName {
			return cookie.Value
		}
	}
	e.t.Fatalf("no session cookie")
	return ""
}

func (e *testEnv) session(c *http.Client) *session.Session {
	e.t.Helper()
	s, err := e.store.Load(context.Background(), e.sessionID(c))
	if err != nil {
		e.t.Fatalf("load session: %v", err)
	}
	return s
}

func document(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func expectRedirect(t *testing.T, resp *http.Response, target string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != target {
		t.Fatalf("expected redirect to %q, got %q", target, got)
	}
}

func validForm(phone string) url.Values {
	v := url.Values{}
	for name, value := range map[string]string{
		"calle":            "Reforma",
		"numero":           "12",
		"colonia":          "Centro",
		"cp":               "06000",
		"ciudad":           "CDMX",
		"nombre":           "Ana",
		"apellido_paterno": "Lopez",
		"apellido_materno": "Diaz",
		"seccion":          "101",
		"celular":          phone,
	} {
		v.Set(name, value)
	}
	return v
}

// grant walks c through a successful acquisition using the query relay.
func (e *testEnv) grant(c *http.Client, lat, lon string) {
	e.t.Helper()
	expectRedirect(e.t, e.post(c, "/location/request", nil), "/form")
	e.get(c, "/form")
	id := e.session(c).Location.RequestID
	q := url.Values{location.ParamRequest: {id}, location.ParamLatitude: {lat}, location.ParamLongitude: {lon}}
	expectRedirect(e.t, e.get(c, "/form?"+q.Encode()), "/form")
	if st := e.session(c).Location.State; st != location.Granted {
		e.t.Fatalf("expected granted, got %v", st)
	}
}
