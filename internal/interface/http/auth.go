package http

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HeaderServiceKey carries the shared service key on /v1 requests.
const HeaderServiceKey = "X-Service-Key"

// HashServiceKey produces the bcrypt hash stored in configuration.
// The plaintext key never appears in config files or logs.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// authenticated wraps an API handler with service-key verification.
// An empty configured hash disables the check.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.ServiceKeyHash == "" {
			next(w, r)
			return
		}

		key := r.Header.Get(HeaderServiceKey)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing_service_key", "Service key is required")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(s.config.ServiceKeyHash), []byte(key)); err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid_service_key", "Invalid service key")
			return
		}

		next(w, r)
	})
}
