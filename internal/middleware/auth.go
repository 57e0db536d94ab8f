package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/pliu/pinchat/internal/auth"
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

const CookieName = "pinchat_session"

// Sessions ties the signed session cookie to the in-memory session table.
type Sessions struct {
	Manager *session.Manager
	Signer  *auth.CookieSigner
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// Load attaches the caller's session to the request context when the cookie
// is present, correctly signed and still known. Requests without one pass
// through untouched.
func (m *Sessions) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.Signer.Verify(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		s, ok := m.Manager.Get(id)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), SessionKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Pending returns the request's session. Without one it returns a fresh
// locked session that is not registered yet; hand it to Issue once it has
// unlocked.
func (m *Sessions) Pending(r *http.Request) (*session.Session, bool) {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s, true
	}
	return session.New(uuid.NewString()), false
}

// Issue registers s and sets its cookie.
func (m *Sessions) Issue(w http.ResponseWriter, s *session.Session) {
	m.Manager.Add(s)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.Signer.Sign(s.ID()),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear forgets s and expires the cookie.
func (m *Sessions) Clear(w http.ResponseWriter, s *session.Session) {
	m.Manager.Remove(s.ID())
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*session.Session)
	return s, ok
}

// RequireAuth rejects requests without an authenticated session. With roles
// given, the session must also hold one of them.
func RequireAuth(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			info := s.Snapshot()
			if info.State != session.Authenticated {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if len(roles) > 0 && !hasRole(roles, info.Role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
