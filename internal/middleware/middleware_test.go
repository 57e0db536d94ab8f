package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/session"
)

func newSessions() *Sessions {
	return &Sessions{Manager: session.NewManager(), Signer: auth.NewCookieSigner([]byte("test-key"))}
}

func TestSessionLoad(t *testing.T) {
	m := newSessions()
	s := m.Manager.New()

	var got *session.Session
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		cookieValue string
		wantSession bool
	}{
		{
			name:        "Valid Cookie",
			cookieValue: m.Signer.Sign(s.ID()),
			wantSession: true,
		},
		{
			name:        "Invalid Signature",
			cookieValue: "abc|invalid_signature",
		},
		{
			name:        "Unknown Session",
			cookieValue: m.Signer.Sign("gone"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest("GET", "/", nil)
			req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookieValue})
			rr := httptest.NewRecorder()

			m.Load(nextHandler).ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
			if (got != nil) != tt.wantSession {
				t.Errorf("session in context = %v, want %v", got != nil, tt.wantSession)
			}
			if tt.wantSession && got != s {
				t.Error("Expected the registered session")
			}
		})
	}

	t.Run("Missing Cookie", func(t *testing.T) {
		got = nil
		req := httptest.NewRequest("GET", "/", nil)
		m.Load(nextHandler).ServeHTTP(httptest.NewRecorder(), req)
		if got != nil {
			t.Error("Expected no session")
		}
	})
}

func TestIssueAndClear(t *testing.T) {
	m := newSessions()

	s, known := m.Pending(httptest.NewRequest("POST", "/api/unlock", nil))
	if known || s.State() != session.Locked {
		t.Fatalf("Expected a new locked session, got known=%v state=%s", known, s.State())
	}
	if m.Manager.Len() != 0 {
		t.Fatalf("Expected pending session to stay unregistered, got %d", m.Manager.Len())
	}

	rr := httptest.NewRecorder()
	m.Issue(rr, s)
	if _, ok := m.Manager.Get(s.ID()); !ok {
		t.Fatal("Expected issued session to be registered")
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
		t.Fatalf("Expected session cookie, got %+v", cookies)
	}
	if id, err := m.Signer.Verify(cookies[0].Value); err != nil || id != s.ID() {
		t.Errorf("Cookie does not carry the session ID: %q (%v)", id, err)
	}

	// A request that already carries a session reuses it.
	req := httptest.NewRequest("POST", "/api/unlock", nil)
	req.AddCookie(cookies[0])
	var again *session.Session
	m.Load(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		again, known = m.Pending(r)
	})).ServeHTTP(httptest.NewRecorder(), req)
	if again != s || !known {
		t.Error("Expected Pending to reuse the existing session")
	}

	rr = httptest.NewRecorder()
	m.Clear(rr, s)
	if _, ok := m.Manager.Get(s.ID()); ok {
		t.Error("Expected session to be removed")
	}
	if c := rr.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("Expected expired cookie, got %+v", c)
	}
}

func TestRequireAuth(t *testing.T) {
	m := newSessions()
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	locked := m.Manager.New()
	owner := m.Manager.New()
	owner.Unlock(true)
	owner.BeginAuth()
	owner.Login("o1", models.RoleOwner, "")
	user := m.Manager.New()
	user.Unlock(true)
	user.BeginAuth()
	user.Login("u1", models.RoleGirlfriend, "o1")

	tests := []struct {
		name    string
		session *session.Session
		roles   []models.Role
		want    int
	}{
		{"no session", nil, nil, http.StatusUnauthorized},
		{"locked", locked, nil, http.StatusForbidden},
		{"any role", user, nil, http.StatusOK},
		{"owner only as owner", owner, []models.Role{models.RoleOwner}, http.StatusOK},
		{"owner only as user", user, []models.Role{models.RoleOwner}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.session != nil {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: m.Signer.Sign(tt.session.ID())})
			}
			rr := httptest.NewRecorder()
			m.Load(RequireAuth(tt.roles...)(nextHandler)).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	var deadline bool
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	})

	Timeout(time.Second)(nextHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !deadline {
		t.Error("Expected a deadline on ordinary requests")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	Timeout(time.Second)(nextHandler).ServeHTTP(httptest.NewRecorder(), req)
	if deadline {
		t.Error("Expected websocket upgrades to be left unbounded")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	// Mock next handler that returns 404
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	LoggingMiddleware(nextHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v",
			rr.Code, http.StatusNotFound)
	}
}

// MockHijacker implements http.Hijacker for testing
type MockHijacker struct {
	httptest.ResponseRecorder
}

func (m *MockHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func TestLoggingMiddleware_Hijack(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Error("ResponseWriter does not implement http.Hijacker")
			return
		}
		if _, _, err := hijacker.Hijack(); err != nil {
			t.Errorf("Hijack failed: %v", err)
		}
	})

	// The recorder alone cannot hijack, so wrap it.
	mockWriter := &MockHijacker{ResponseRecorder: *httptest.NewRecorder()}

	LoggingMiddleware(nextHandler).ServeHTTP(mockWriter, httptest.NewRequest("GET", "/", nil))
}
