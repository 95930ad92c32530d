package server

import (
	"encoding/json"
	"net/http"
)

// errorBody is the error envelope for every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errMsg string) {
	writeJSON(w, status, errorBody{Error: errMsg})
}

func writeErrorMessage(w http.ResponseWriter, status int, errMsg, message string) {
	writeJSON(w, status, errorBody{Error: errMsg, Message: message})
}

// decodeJSON decodes the request body into v, answering 400 itself on
// malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
