package api

import (
	"encoding/json"
	"net/http"

	"github.com/masterkusok/mpprefs/internal/value"
)

type errorResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type JoinRequest struct {
	Addr   string `json:"addr"`
	NodeID string `json:"node_id"`
}

type rowsResponse struct {
	Rows []value.Row `json:"rows"`
}

type insertResponse struct {
	URI string `json:"uri"`
}

type countResponse struct {
	Count int `json:"count"`
}

type typeResponse struct {
	Type string `json:"type"`
}

// changeMessage is one frame of the observe stream.
type changeMessage struct {
	URI string `json:"uri"`
}

func renderJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func renderAPIError(w http.ResponseWriter, code int, message string) {
	response := errorResponse{
		Message: message,
		Status:  http.StatusText(code),
	}
	renderJSON(w, code, response)
}
