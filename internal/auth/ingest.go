package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

// IngestAuthMiddleware validates the shared secret field gateways present
// on every reading submission.
type IngestAuthMiddleware struct {
	secret []byte
}

// NewIngestAuthMiddleware constructs ingest auth middleware.
func NewIngestAuthMiddleware(secret []byte) *IngestAuthMiddleware {
	return &IngestAuthMiddleware{secret: secret}
}

// Wrap enforces the shared-secret check. A gateway deployed without a
// secret fails closed with a server error rather than accepting traffic.
func (m *IngestAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			http.Error(w, "ingest auth not configured", http.StatusInternalServerError)
			return
		}
		presented := strings.TrimSpace(r.Header.Get("X-Ingest-Secret"))
		if presented == "" {
			http.Error(w, "missing ingest secret", http.StatusUnauthorized)
			return
		}
		// Compare digests so length differences do not leak timing.
		expected := sha256.Sum256(m.secret)
		got := sha256.Sum256([]byte(presented))
		if !hmac.Equal(expected[:], got[:]) {
			http.Error(w, "invalid ingest secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
