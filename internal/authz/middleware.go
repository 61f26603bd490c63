package authz

import (
	"encoding/json"
	"net/http"

	"github.com/alecgard/teamhub/internal/auth"
)

// RequestDecisionFunc receives the outcome of a Require check.
type RequestDecisionFunc func(r *http.Request, p Predicate, allowed bool)

// Require returns middleware that lets a request through only when the
// session principal satisfies p. Anonymous requests get 401 and everyone
// else who fails gets 403.
func Require(p Predicate, observers ...RequestDecisionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			allowed := Evaluate(p, user, nil)
			for _, fn := range observers {
				fn(r, p, allowed)
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			if user == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			writeJSONError(w, http.StatusForbidden, "forbidden", "requires "+Label(p))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
