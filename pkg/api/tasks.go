package api

import (
	"context"
	"net/http"
	"time"
)

func (r *Router) handleListTasks(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"tasks": r.tasks.List()})
}

// handleGetTask returns one task. With ?wait=true the handler blocks until
// the task reaches a terminal state or the request context ends.
func (r *Router) handleGetTask(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("task")

	if req.URL.Query().Get("wait") == "true" {
		ctx := req.Context()
		if timeoutStr := req.URL.Query().Get("timeout_ms"); timeoutStr != "" {
			if d, err := time.ParseDuration(timeoutStr + "ms"); err == nil && d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
		}
		t, err := r.tasks.Wait(ctx, id)
		if err != nil {
			r.writeDomainError(w, err)
			return
		}
		r.writeJSON(w, http.StatusOK, t)
		return
	}

	t, err := r.tasks.Get(id)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, t)
}
