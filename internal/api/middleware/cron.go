package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/imggen-api/internal/api/shared"
)

var errBadCronSecret = errors.New("missing or wrong cron secret")

// CronAuth requires "Authorization: Bearer <secret>". An empty secret
// rejects every request.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Unauthorized", errBadCronSecret)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
