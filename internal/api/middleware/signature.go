package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/phrazzld/imggen-api/internal/api/shared"
	"github.com/phrazzld/imggen-api/internal/platform/qstash"
)

// maxSignedBody bounds the body read for signature verification.
const maxSignedBody = 64 << 10

// SignatureChecker verifies a push delivery signature over the raw body.
type SignatureChecker interface {
	Verify(signature string, body []byte, destination string) error
}

// SignatureVerifier rejects deliveries whose signature header does not match
// the request body. With a nil checker every request passes, which is how
// the worker endpoint runs when no signing keys are configured. Destination,
// when set, must equal the token subject.
func SignatureVerifier(checker SignatureChecker, destination string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if checker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
				return
			}
			_ = r.Body.Close()

			if err := checker.Verify(r.Header.Get(qstash.SignatureHeader), body, destination); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid signature", err)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
