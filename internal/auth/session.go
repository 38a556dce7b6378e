package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/db"
	"github.com/kuitang/pillbridge-verify/internal/errs"
)

const (
	SessionCookieName = "pb_session"
	SessionDuration   = 7 * 24 * time.Hour
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errs.New(errs.Unauthenticated, "Not signed in")

// SessionService stores opaque session IDs against user IDs.
type SessionService struct {
	store *db.Store
	clock Clock
}

// NewSessionService creates a session service. A nil clock uses wall time.
func NewSessionService(store *db.Store, clock Clock) *SessionService {
	if clock == nil {
		clock = realClock{}
	}
	return &SessionService{store: store, clock: clock}
}

// Create opens a session for userID and returns its ID.
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", errs.Wrap(errs.Internal, "generate session id", err)
	}
	now := s.clock.Now()
	err = s.store.Queries().UpsertSession(ctx, db.Session{
		SessionID: id,
		UserID:    userID,
		ExpiresAt: now.Add(SessionDuration).Unix(),
		CreatedAt: now.Unix(),
	})
	if err != nil {
		return "", errs.Wrap(errs.Internal, "store session", err)
	}
	return id, nil
}

// Validate returns the user ID for a live session.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	sess, err := s.store.Queries().GetValidSession(ctx, sessionID, s.clock.Now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", errs.Wrap(errs.Internal, "validate session", err)
	}
	return sess.UserID, nil
}

// Delete ends a session. Unknown IDs are not an error.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if err := s.store.Queries().DeleteSession(ctx, sessionID); err != nil {
		return errs.Wrap(errs.Internal, "delete session", err)
	}
	return nil
}

// Cleanup removes expired sessions.
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.Queries().DeleteExpiredSessions(ctx, s.clock.Now().Unix())
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "cleanup sessions", err)
	}
	return n, nil
}

// SetCookie writes the session cookie. The stand-in app serves plain HTTP on
// localhost, so the cookie is not marked Secure.
func SetCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetFromRequest returns the session ID cookie, or "".
func GetFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
