package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/siftdata/sift/internal/metrics"
)

func (r *Router) handleListDatasets(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"datasets": r.store.List()})
}

type createDatasetRequest struct {
	Name  string           `json:"name"`
	Items []map[string]any `json:"items"`
}

// handleCreateDataset ingests rows as a new dataset. The body is either a
// JSON object with name and items, or newline-delimited JSON with the
// name in the dataset query parameter.
func (r *Router) handleCreateDataset(w http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()

	if max := r.cfg.Limits.GetMaxDatasets(); len(r.store.List()) >= max {
		r.writeAPIError(w, ErrBadRequest(fmt.Sprintf("dataset limit reached (%d)", max)))
		return
	}

	contentType := req.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-ndjson") || strings.HasPrefix(contentType, "application/jsonl") {
		name := req.URL.Query().Get("name")
		d, err := r.store.IngestJSONL(name, req.Body)
		if err != nil {
			r.writeDomainError(w, err)
			return
		}
		metrics.SetDatasetRows(d.Name(), d.NumRows())
		r.writeJSON(w, http.StatusCreated, d.Manifest())
		return
	}

	var body createDatasetRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	d, err := r.store.Create(body.Name, body.Items)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	metrics.SetDatasetRows(d.Name(), d.NumRows())
	r.writeJSON(w, http.StatusCreated, d.Manifest())
}

func (r *Router) handleGetManifest(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}
	r.writeJSON(w, http.StatusOK, d.Manifest())
}

func (r *Router) handleDeleteDataset(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("dataset")
	if err := r.store.Delete(req.Context(), name); err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
