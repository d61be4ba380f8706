// Package httpkit holds the JSON helpers shared by the admin handlers.
package httpkit

import (
	"encoding/json"
	"net/http"
)

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 64 << 10

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// bodies over MaxBodyBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
