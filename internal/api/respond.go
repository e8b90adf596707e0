package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Status: false, Error: msg})
}
