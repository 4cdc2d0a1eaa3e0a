package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// generateRandomString returns a URL-safe random string of the given length.
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	encoded := base64.RawURLEncoding.EncodeToString(b)
	return encoded[:length]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
