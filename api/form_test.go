package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/db"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/session"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestFormRequiresLogin(t *testing.T) {
	e := newTestEnv(t)
	c := e.client()
	expectRedirect(t, e.get(c, "/form"), "/login")
	expectRedirect(t, e.post(c, "/form", validForm("5512345678")), "/login")
	expectRedirect(t, e.post(c, "/location/request", nil), "/login")
}

func TestSubmitBlockedUntilGranted(t *testing.T) {
	e := newTestEnv(t)
	c := e.login("alice", "demo")

	resp := e.post(c, "/form", validForm("5512345678"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before requesting, got %d", resp.StatusCode)
	}
	doc := document(t, resp)
	if v, _ := doc.Find(`input[name="calle"]`).Attr("value"); v != "Reforma" {
		t.Fatalf("expected submitted values to be kept, got %q", v)
	}

	expectRedirect(t, e.post(c, "/location/request", nil), "/form")

	doc = document(t, e.get(c, "/form"))
	if !strings.Contains(doc.Find("script").Text(), "getCurrentPosition") {
		t.Fatalf("expected the acquisition script on the first render")
	}
	if state, _ := doc.Find("#location").Attr("data-state"); state != "requested" {
		t.Fatalf("expected requested state, got %q", state)
	}
	if _, disabled := doc.Find(`#record button`).Attr("disabled"); !disabled {
		t.Fatalf("submit must be disabled while pending")
	}

	doc = document(t, e.get(c, "/form"))
	if doc.Find("script").Length() != 0 {
		t.Fatalf("script must be dispatched only once")
	}

	resp = e.post(c, "/form", validForm("5512345678"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while pending, got %d", resp.StatusCode)
	}
	if n, _ := e.repo.Count(context.Background()); n != 0 {
		t.Fatalf("blocked submission wrote %d rows", n)
	}
}

func TestRelayGrantsOnceAndSubmits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.login("alice", "demo")

	expectRedirect(t, e.post(c, "/location/request", nil), "/form")
	e.get(c, "/form")
	id := e.session(c).Location.RequestID
	relay := url.Values{
		location.ParamRequest:   {id},
		location.ParamLatitude:  {"19.4326"},
		location.ParamLongitude: {"-99.1332"},
		"tab":                   {"1"},
	}
	expectRedirect(t, e.get(c, "/form?"+relay.Encode()), "/form?tab=1")

	s := e.session(c)
	if s.Location.State != location.Granted || s.Location.Coordinates.Latitude != 19.4326 {
		t.Fatalf("expected granted coordinates, got %+v", s.Location)
	}

	resp := e.post(c, "/form", validForm("5512345678"))
	if resp.StatusCode != http.StatusSeeOther || !strings.HasPrefix(resp.Header.Get("Location"), "/form?saved=") {
		t.Fatalf("expected redirect after save, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	// identical redelivery is ignored and writes nothing
	expectRedirect(t, e.get(c, "/form?"+relay.Encode()), "/form?tab=1")
	if n, _ := e.repo.Count(ctx); n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}

	records, _ := e.repo.List(ctx, db.ListFilter{})
	if records[0].Owner != "alice" || records[0].Location == nil || records[0].Location.Longitude != -99.1332 {
		t.Fatalf("unexpected stored record %+v", records[0])
	}

	doc := document(t, e.get(c, resp.Header.Get("Location")))
	if doc.Find("#notice").Length() != 1 {
		t.Fatalf("expected a saved notice")
	}
	if href, _ := doc.Find("#location a").Attr("href"); !strings.Contains(href, "19.432600,-99.133200") {
		t.Fatalf("expected a map link, got %q", href)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t)
	c := e.login("alice", "demo")
	e.grant(c, "19.4", "-99.1")

	resp := e.post(c, "/form", validForm("12345"))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if msg := document(t, resp).Find("#error").Text(); !strings.Contains(msg, "10") {
		t.Fatalf("expected the phone message, got %q", msg)
	}

	missing := validForm("5512345678")
	missing.Del("colonia")
	resp = e.post(c, "/form", missing)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if n, _ := e.repo.Count(context.Background()); n != 0 {
		t.Fatalf("invalid submissions wrote %d rows", n)
	}
}

func TestRelayDenied(t *testing.T) {
	e := newTestEnv(t)
	c := e.login("alice", "demo")

	e.post(c, "/location/request", nil)
	id := e.session(c).Location.RequestID
	q := url.Values{location.ParamRequest: {id}, location.ParamErrCode: {"1"}}
	expectRedirect(t, e.get(c, "/form?"+q.Encode()), "/form")

	resp := e.post(c, "/form", validForm("5512345678"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if msg := document(t, resp).Find("#error").Text(); !strings.Contains(msg, "permission denied") {
		t.Fatalf("expected the platform reason, got %q", msg)
	}
}

func TestMalformedQueryRelayKeepsPending(t *testing.T) {
	e := newTestEnv(t)
	c := e.login("alice", "demo")

	e.post(c, "/location/request", nil)
	id := e.session(c).Location.RequestID
	q := url.Values{location.ParamRequest: {id}, location.ParamLatitude: {"91"}, location.ParamLongitude: {"0"}}
	expectRedirect(t, e.get(c, "/form?"+q.Encode()), "/form")
	if s := e.session(c); s.Location.State != location.Requested || s.Location.RequestID != id {
		t.Fatalf("malformed relay changed state: %+v", s.Location)
	}
}

func relayMessage(t *testing.T, e *testEnv, c *http.Client, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := c.Post(e.srv.URL+"/location/relay", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestMessageRelay(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := relayMessage(t, e, e.client(), `{"request_id":"x","latitude":1,"longitude":2}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous relay, got %d", resp.StatusCode)
	}

	c := e.login("alice", "demo")
	e.post(c, "/location/request", nil)
	id := e.session(c).Location.RequestID

	resp, _ = relayMessage(t, e, c, `{"request_id":"`+id+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty outcome, got %d", resp.StatusCode)
	}

	body := `{"request_id":"` + id + `","latitude":20.5,"longitude":-100.25}`
	resp, out := relayMessage(t, e, c, body)
	if resp.StatusCode != http.StatusOK || out["applied"] != true || out["state"] != "granted" || out["can_submit"] != true {
		t.Fatalf("unexpected relay response %d %v", resp.StatusCode, out)
	}

	_, out = relayMessage(t, e, c, body)
	if out["applied"] != false || out["state"] != "granted" {
		t.Fatalf("redelivery must be a no-op, got %v", out)
	}

	status := e.get(c, "/location/status")
	var view map[string]any
	json.NewDecoder(status.Body).Decode(&view)
	if view["state"] != "granted" || view["map_url"] == nil {
		t.Fatalf("unexpected status %v", view)
	}
	if _, leaked := view["request_id"]; leaked {
		t.Fatalf("status must not expose the request nonce")
	}
}

func TestMalformedStaleRelayIsQuiet(t *testing.T) {
	hook := test.NewGlobal()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetLevel(level)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	})

	e := newTestEnv(t)
	c := e.login("alice", "demo")

	// nothing outstanding yet
	q := url.Values{location.ParamRequest: {"gone"}, location.ParamLatitude: {"91"}, location.ParamLongitude: {"0"}}
	expectRedirect(t, e.get(c, "/form?"+q.Encode()), "/form")

	e.post(c, "/location/request", nil)
	id := e.session(c).Location.RequestID
	expectRedirect(t, e.get(c, "/form?"+q.Encode()), "/form")

	var stale int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Ignoring malformed location relay" {
			t.Fatalf("stale relay logged at %v", entry.Level)
		}
		if entry.Message == "Ignoring stale location relay" && entry.Level == log.DebugLevel {
			stale++
		}
	}
	if stale != 2 {
		t.Fatalf("expected 2 stale relay entries, got %d", stale)
	}
	if s := e.session(c); s.Location.State != location.Requested || s.Location.RequestID != id {
		t.Fatalf("stale relay changed state: %+v", s.Location)
	}

	// the outstanding nonce is still reported
	hook.Reset()
	q.Set(location.ParamRequest, id)
	e.get(c, "/form?"+q.Encode())
	warned := false
	for _, entry := range hook.AllEntries() {
		warned = warned || (entry.Message == "Ignoring malformed location relay" && entry.Level == log.WarnLevel)
	}
	if !warned {
		t.Fatalf("expected a warning for the outstanding request")
	}
}

// pausingStore holds the first Load of one session id until release is closed.
type pausingStore struct {
	session.Store
	mu      sync.Mutex
	target  string
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingStore) pause(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = id
	p.loaded = make(chan struct{})
	p.release = make(chan struct{})
}

func (p *pausingStore) Load(ctx context.Context, id string) (*session.Session, error) {
	p.mu.Lock()
	hit := p.target != "" && id == p.target
	if hit {
		p.target = ""
	}
	loaded, release := p.loaded, p.release
	p.mu.Unlock()

	s, err := p.Store.Load(ctx, id)
	if hit {
		close(loaded)
		<-release
	}
	return s, err
}

func TestRelayCannotOverwriteNewerRequest(t *testing.T) {
	paused := &pausingStore{}
	e := newTestEnvWithStore(t, func(s session.Store) session.Store {
		paused.Store = s
		return paused
	})
	c := e.login("alice", "demo")

	e.post(c, "/location/request", nil)
	old := e.session(c).Location.RequestID
	paused.pause(e.sessionID(c))

	relay := url.Values{location.ParamRequest: {old}, location.ParamLatitude: {"19.4"}, location.ParamLongitude: {"-99.1"}}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if resp, err := c.Get(e.srv.URL + "/form?" + relay.Encode()); err == nil {
			resp.Body.Close()
		}
	}()
	select {
	case <-paused.loaded:
	case <-time.After(5 * time.Second):
		t.Fatalf("relay never reached the store")
	}

	// a fresh request arrives while the relay still holds its copy of the session
	go func() {
		defer wg.Done()
		if resp, err := c.PostForm(e.srv.URL+"/location/request", nil); err == nil {
			resp.Body.Close()
		}
	}()
	time.Sleep(50 * time.Millisecond)
	close(paused.release)
	wg.Wait()

	s := e.session(c)
	if s.Location.State != location.Requested || s.Location.RequestID == "" || s.Location.RequestID == old {
		t.Fatalf("expected the newer request to survive, got %+v", s.Location)
	}
	if s.Location.Coordinates != nil {
		t.Fatalf("stale coordinates leaked into the new request: %+v", s.Location.Coordinates)
	}
}

func TestConcurrentMessageRelayAppliesOnce(t *testing.T) {
	e := newTestEnv(t)
	c := e.login("alice", "demo")
	e.post(c, "/location/request", nil)
	id := e.session(c).Location.RequestID
	body := `{"request_id":"` + id + `","latitude":20.5,"longitude":-100.25}`

	const senders = 5
	results := make(chan bool, senders)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Post(e.srv.URL+"/location/relay", "application/json", strings.NewReader(body))
			if err != nil {
				results <- false
				return
			}
			defer resp.Body.Close()
			var out struct {
				Applied bool `json:"applied"`
			}
			json.NewDecoder(resp.Body).Decode(&out)
			results <- out.Applied
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for ok := range results {
		if ok {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied relay, got %d", applied)
	}
	if s := e.session(c); s.Location.State != location.Granted {
		t.Fatalf("expected granted, got %v", s.Location.State)
	}
}
