package auth

import (
	"context"
	"net/http"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

type userContextKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the signed-in user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}

// Middleware resolves the session cookie into a *User.
type Middleware struct {
	Sessions *SessionService
	Users    *UserService
	// OnError writes a failure response. Required for RequireSession.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireSession rejects requests without a valid session.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := m.resolve(r)
		if err != nil {
			m.OnError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// OptionalSession attaches the user when a valid session exists.
func (m *Middleware) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, err := m.resolve(r); err == nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) resolve(r *http.Request) (*User, error) {
	userID, err := m.Sessions.Validate(r.Context(), GetFromRequest(r))
	if err != nil {
		return nil, err
	}
	u, err := m.Users.Get(r.Context(), userID)
	if err != nil {
		if errs.CodeOf(err) == errs.NotFound {
			obs.From(r.Context()).Warn("session for missing user", "user_id", userID)
			return nil, ErrNoSession
		}
		return nil, err
	}
	return u, nil
}
