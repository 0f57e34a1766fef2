package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dronenav/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeStoreError maps store.ErrNotFound to 404 and anything else to 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, title string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
}

// page reads the cursor and limit query parameters.
func page(r *http.Request) (string, int) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	return r.URL.Query().Get("cursor"), limit
}

func writeList(w http.ResponseWriter, items any, next string) {
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
