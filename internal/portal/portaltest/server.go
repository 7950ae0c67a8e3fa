// Package portaltest provides a fake scheduling portal for tests.
package portaltest

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

const (
	// BasePath is where the fake portal is mounted, mirroring /gestes.
	BasePath  = "/gestes"
	LoginPath = "/connexion"
	// AgendaPath serves the calendar page to authenticated sessions.
	AgendaPath = "/agenda"

	Token      = "f3a9c1d2e4b5a6978877665544332211"
	Username   = "pl03xyz"
	Password   = "correct horse"
	cookieName = "GESTES"
	sessionID  = "session-42"
)

// Portal is a fake portal backed by httptest.Server.
type Portal struct {
	*httptest.Server

	mu           sync.Mutex
	block        string
	tokenMissing bool
	forms        []map[string]string
	userAgents   []string
}

// New starts a fake portal serving block on successful login.
func New(block string) *Portal {
	p := &Portal{block: block}
	mux := http.NewServeMux()
	mux.HandleFunc(BasePath+LoginPath, p.handleLogin)
	mux.HandleFunc(BasePath+AgendaPath, p.handleAgenda)
	p.Server = httptest.NewServer(mux)
	return p
}

// BaseURL is the portal root to put in config.
func (p *Portal) BaseURL() string {
	return p.URL + BasePath
}

// SetBlock replaces the events array served after login.
func (p *Portal) SetBlock(block string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = block
}

// SetTokenMissing toggles whether the login page carries the token field.
func (p *Portal) SetTokenMissing(missing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenMissing = missing
}

// Forms returns the submitted login forms.
func (p *Portal) Forms() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]string, len(p.forms))
	copy(out, p.forms)
	return out
}

// UserAgents returns the User-Agent header of every request received.
func (p *Portal) UserAgents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.userAgents))
	copy(out, p.userAgents)
	return out
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgents = append(p.userAgents, r.UserAgent())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch r.Method {
	case http.MethodGet:
		http.SetCookie(w, &http.Cookie{Name: cookieName, Value: sessionID, Path: BasePath})
		if p.tokenMissing {
			_, _ = w.Write([]byte(`<html><body><form><input name="username"/></form></body></html>`))
			return
		}
		_, _ = w.Write([]byte(LoginPage(Token)))

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		p.forms = append(p.forms, form)

		c, err := r.Cookie(cookieName)
		authenticated := err == nil && c.Value == sessionID &&
			form["_csrfToken"] == Token &&
			form["username"] == Username &&
			form["password"] == Password
		if !authenticated {
			// The portal re-renders the login form with a 200.
			_, _ = w.Write([]byte(LoginPage(Token)))
			return
		}
		_, _ = w.Write([]byte(AgendaPage(Username, p.block)))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (p *Portal) handleAgenda(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgents = append(p.userAgents, r.UserAgent())

	c, err := r.Cookie(cookieName)
	if err != nil || c.Value != sessionID {
		http.Redirect(w, r, BasePath+LoginPath, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(AgendaPage(Username, p.block)))
}
