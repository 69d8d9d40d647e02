package handlers

import (
	"encoding/json"
	"net/http"

	"image-hunter/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// writeJSON sends v with the given status code. Encoding failures can only
// be logged once the header is out.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Error: message})
}

func writeJSONStatus(w http.ResponseWriter, code int, status string) {
	writeJSON(w, code, statusResponse{Status: status})
}
