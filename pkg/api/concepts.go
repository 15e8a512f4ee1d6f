package api

import (
	"encoding/json"
	"net/http"

	"github.com/siftdata/sift/internal/concept"
)

func (r *Router) handleListConcepts(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"concepts": r.concepts.List()})
}

func (r *Router) handleCreateConcept(w http.ResponseWriter, req *http.Request) {
	var c concept.Concept
	if err := json.NewDecoder(req.Body).Decode(&c); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	if c.Namespace == "" || c.Name == "" {
		r.writeAPIError(w, ErrBadRequest("concept requires namespace and name"))
		return
	}
	if err := r.concepts.Create(c); err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusCreated, c)
}

func (r *Router) handleDeleteConcept(w http.ResponseWriter, req *http.Request) {
	ns := req.PathValue("namespace")
	name := req.PathValue("name")
	if err := r.concepts.Delete(ns, name); err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
