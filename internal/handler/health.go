package handler

import (
	"net/http"
)

// Health handles GET /__/auth/iframe/health. The channel counts as loaded
// once this answers.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
