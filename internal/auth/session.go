package auth

import (
	"net/http"
	"time"

	"ms-ledger/internal/models"

	"github.com/google/uuid"
)

const (
	SessionCookie = "ledger_session"
	SessionHeader = "X-Session-Token"
)

// SessionToken returns the caller's anonymous session, or "" if there is none.
func SessionToken(r *http.Request) string {
	if token := r.Header.Get(SessionHeader); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// EnsureSession returns the caller's session, minting one and setting the
// cookie when the request carries none.
func EnsureSession(w http.ResponseWriter, r *http.Request, ttl time.Duration) string {
	if token := SessionToken(r); token != "" {
		return token
	}
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, token)
	return token
}

// Identity is who is asking, as far as the ledger can tell.
func Identity(r *http.Request) models.Identity {
	return models.Identity{PersonID: UserID(r.Context()), SessionToken: SessionToken(r)}
}
