package cluster

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const contentTypeJSON = "application/json"

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusFailed indicates an operation failed.
	StatusFailed Status = "error"
)

// Response is the envelope used for health checks and errors. Successful
// data responses are bare JSON arrays instead.
type Response struct {
	Status Status `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusFailed, Error: err}
}

// WriteJSON writes data with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("error encoding response", "error", err)
	}
}

// WriteError writes err as an error envelope with the status code its
// taxonomy maps to.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusCode(err), NewErrorResponse(err.Error()))
}
