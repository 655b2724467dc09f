package todos

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logs "github.com/danmuck/smplog"
)

type createRequest struct {
	Todo            Todo `json:"todo"`
	SimulateFailure bool `json:"simulateFailure"`
}

type deleteRequest struct {
	SimulateFailure bool `json:"simulateFailure"`
}

type patchRequest struct {
	Updates         Updates `json:"updates"`
	SimulateFailure bool    `json:"simulateFailure"`
}

// Error bodies the REST API sends for the service sentinels.
const (
	notFoundMessage  = "Todo not found"
	simulatedMessage = "Simulated failure"
)

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler serves svc as the REST API:
//
//	GET    /api/todos
//	POST   /api/todos       {"todo":{...},"simulateFailure":bool}
//	DELETE /api/todos/{id}  {"simulateFailure":bool}
//	PATCH  /api/todos/{id}  {"updates":{...},"simulateFailure":bool}
func NewHandler(svc Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/todos", handleList(svc))
	mux.HandleFunc("POST /api/todos", handleCreate(svc))
	mux.HandleFunc("DELETE /api/todos/{id}", handleDelete(svc))
	mux.HandleFunc("PATCH /api/todos/{id}", handlePatch(svc))
	return mux
}

func handleList(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []Todo{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return
		}
		created, err := svc.Create(r.Context(), req.Todo, req.SimulateFailure)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleDelete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		// an empty body means no simulated failure
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return
		}
		if err := svc.Delete(r.Context(), r.PathValue("id"), req.SimulateFailure); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handlePatch(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return
		}
		patched, err := svc.Patch(r.Context(), r.PathValue("id"), req.Updates, req.SimulateFailure)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, patched)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFoundMessage})
	case errors.Is(err, ErrSimulated):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: simulatedMessage})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warnf("writeJSON(): %v", err)
	}
}
