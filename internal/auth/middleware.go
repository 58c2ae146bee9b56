package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type Config struct {
	APIKey string
	// Public lists exact paths served without a key, e.g. health checks.
	Public []string
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// APIKeyMiddleware validates API key authentication
func APIKeyMiddleware(config *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth if no API key configured (for development)
			if config.APIKey == "" || config.isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && config.matches(token) {
				next.ServeHTTP(w, r)
				return
			}

			if config.matches(r.Header.Get("X-API-Key")) {
				next.ServeHTTP(w, r)
				return
			}

			writeUnauthorized(w)
		})
	}
}

func (c *Config) matches(candidate string) bool {
	return candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(c.APIKey)) == 1
}

func (c *Config) isPublic(path string) bool {
	for _, p := range c.Public {
		if p == path {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter) {
	errorResp := ErrorResponse{
		Code:    "unauthorized",
		Message: "Invalid or missing API key",
		Hint:    "Provide API key via Authorization: Bearer <key> or X-API-Key: <key>",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(errorResp)
}
