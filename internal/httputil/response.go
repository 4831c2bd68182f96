package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope is the standard response shape. Every endpoint answers with
// success plus an optional human-readable message; errors additionally carry
// a machine-readable code.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondMessage sends a success envelope with the given message.
func RespondMessage(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, Envelope{Success: true, Message: message}, statusCode)
}

// RespondError sends a failure envelope with the given message and status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, Envelope{Success: false, Message: message}, statusCode)
}

// RespondErrorWithCode sends a failure envelope with a machine-readable error code.
func RespondErrorWithCode(w http.ResponseWriter, message string, code string, statusCode int) {
	RespondJSON(w, Envelope{Success: false, Message: message, Code: code}, statusCode)
}
