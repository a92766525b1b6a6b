package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAdminToken protege as rotas de admin com um token compartilhado no
// cabeçalho X-Admin-Token. Sem token configurado, as rotas ficam fechadas.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "admin API disabled", http.StatusServiceUnavailable)
				return
			}
			got := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
