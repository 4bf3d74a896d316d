package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/api/shared"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
)

// OwnerCookieName is the cookie carrying the anonymous owner ID.
const OwnerCookieName = "anon_id"

// OwnerCookieMaxAge is how long an issued owner cookie lives.
const OwnerCookieMaxAge = 365 * 24 * time.Hour

// AnonOwner identifies callers by an anonymous owner cookie.
type AnonOwner struct {
	// Secure marks issued cookies Secure. Enable behind HTTPS.
	Secure bool
}

// NewAnonOwner creates an AnonOwner.
func NewAnonOwner(secure bool) *AnonOwner {
	return &AnonOwner{Secure: secure}
}

// Identify puts the owner ID from the cookie into the request context when
// the cookie holds a valid ID. It never issues a cookie.
func (a *AnonOwner) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ownerID, ok := ownerFromCookie(r); ok {
			r = r.WithContext(shared.WithOwnerID(r.Context(), ownerID))
		}
		next.ServeHTTP(w, r)
	})
}

// Ensure is Identify, but issues a fresh owner cookie when the request has
// none or an invalid one.
func (a *AnonOwner) Ensure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFromCookie(r)
		if !ok {
			ownerID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     OwnerCookieName,
				Value:    ownerID,
				Path:     "/",
				MaxAge:   int(OwnerCookieMaxAge / time.Second),
				HttpOnly: true,
				Secure:   a.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			logger.FromContext(r.Context()).Debug("issued owner cookie")
		}
		next.ServeHTTP(w, r.WithContext(shared.WithOwnerID(r.Context(), ownerID)))
	})
}

func ownerFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(OwnerCookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil || id == uuid.Nil {
		return "", false
	}
	return id.String(), true
}
