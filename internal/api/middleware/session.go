package middleware

import (
	"net/http"

	"github.com/openvillage/plaza/internal/store"
)

// SessionGate protects read endpoints behind an operator session when a gate
// password is configured. With no gate configured it is a pass-through, which
// is the development default.
type SessionGate struct {
	redis   *store.RedisStore
	enabled bool
}

// NewSessionGate creates a session gate. gateHash empty disables the gate.
func NewSessionGate(redis *store.RedisStore, gateHash string) *SessionGate {
	return &SessionGate{redis: redis, enabled: gateHash != ""}
}

// RequireSession verifies the X-Plaza-Session token on gated endpoints.
func (g *SessionGate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Plaza-Session")
		if !g.redis.CheckSession(r.Context(), token) {
			jsonError(w, http.StatusUnauthorized, "session required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
