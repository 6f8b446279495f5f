package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// requireAPIKey checks the X-API-Key header against the configured bcrypt
// hash. Without a configured hash every request passes.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.APIKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.config.APIKeyHash), []byte(key)); err != nil {
			slog.Warn("API key rejected", "remote", r.RemoteAddr)
			writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
