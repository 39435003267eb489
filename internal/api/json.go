package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"dispatchmap/internal/obs"
	"dispatchmap/internal/routeview"
	"dispatchmap/internal/segment"
	"dispatchmap/internal/store"
)

const problemBase = "https://dispatchmap.dev/problems/"

// Problem is an RFC7807 problem details body. Type is a stable URI per
// error class; RequestID matches the X-Request-Id response header.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	sendProblem(w, Problem{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func sendProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problemType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return problemBase + "invalid-request"
	case http.StatusNotFound:
		return problemBase + "not-found"
	case http.StatusConflict:
		return problemBase + "order-assigned"
	case http.StatusGone:
		return problemBase + "view-closed"
	case http.StatusRequestEntityTooLarge:
		return problemBase + "too-large"
	case http.StatusInternalServerError:
		return problemBase + "internal"
	}
	return "about:blank"
}

// errorStatus maps collaborator and manager sentinels onto HTTP statuses.
func errorStatus(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, segment.ErrSegmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrOrderAssigned):
		return http.StatusConflict
	case errors.Is(err, store.ErrIndexOutOfRange), errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, routeview.ErrClosed), errors.Is(err, segment.ErrClosed):
		return http.StatusGone
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// storeProblem writes err as a problem. Unmapped errors are logged and
// answered without their text.
func storeProblem(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := errorStatus(err)
	reqID := obs.RequestID(r.Context())
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("op=api req=%s %s %s err=%v", reqID, r.Method, r.URL.Path, err)
		detail = "internal error"
	}
	sendProblem(w, Problem{
		Type:      problemType(status),
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: reqID,
	})
}
