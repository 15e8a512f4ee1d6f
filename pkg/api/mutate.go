package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/siftdata/sift/internal/metrics"
	"github.com/siftdata/sift/internal/query"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/task"
)

// handleLoadDataset starts a background task that restores a persisted
// dataset from the object store into memory.
func (r *Router) handleLoadDataset(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("dataset")

	t := r.tasks.Submit("load_dataset", name, "load "+name, name+"\x00load", func(ctx context.Context) error {
		ctx, cancel := r.taskContext(ctx)
		defer cancel()
		task.ReportProgress(ctx, 0.1, "reading segments")
		d, err := r.store.Load(ctx, name)
		if err != nil {
			return err
		}
		metrics.SetDatasetRows(name, d.NumRows())
		r.store.NotifyChange(name)
		return nil
	})
	r.writeJSON(w, http.StatusAccepted, t)
}

type computeSignalRequest struct {
	Signal   query.UDF      `json:"signal"`
	LeafPath query.PathSpec `json:"leaf_path"`
}

// handleComputeSignal starts a background task that computes a signal over
// every row and grafts the result column into the dataset schema. Repeated
// requests for the same output coalesce onto the running task.
func (r *Router) handleComputeSignal(w http.ResponseWriter, req *http.Request) {
	var body computeSignalRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}

	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}

	source := body.LeafPath.Path()
	if err := schema.ValidatePath(source); err != nil {
		r.writeDomainError(w, err)
		return
	}
	// Build the signal up front so bad names and configs fail the request,
	// not the task.
	sig, err := r.signals.New(body.Signal.Name, body.Signal.Config)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	if d.Schema().GetField(source) == nil {
		r.writeDomainError(w, fmt.Errorf("%w: %q", schema.ErrFieldNotFound, source.String()))
		return
	}

	outPath := source.Child(sig.Name())
	description := fmt.Sprintf("compute %s at %s", sig.Name(), outPath.String())
	coalesceKey := name + "\x00" + schema.SerializePath(outPath)
	config := body.Signal.Config

	t := r.tasks.Submit("compute_signal", name, description, coalesceKey, func(ctx context.Context) error {
		ctx, cancel := r.taskContext(ctx)
		defer cancel()
		task.ReportProgress(ctx, 0.1, "computing signal values")
		if _, err := d.ComputeSignal(ctx, sig, config, source); err != nil {
			return err
		}
		metrics.AddSignalValues(sig.Name(), d.NumRows())
		task.ReportProgress(ctx, 0.9, "persisting dataset")
		return r.afterMutation(ctx, name)
	})
	r.writeJSON(w, http.StatusAccepted, t)
}

type computeEmbeddingIndexRequest struct {
	Embedding string         `json:"embedding"`
	LeafPath  query.PathSpec `json:"leaf_path"`
}

// handleComputeEmbeddingIndex starts a background task that embeds a text
// column and stores the vector index used by semantic and concept search.
func (r *Router) handleComputeEmbeddingIndex(w http.ResponseWriter, req *http.Request) {
	var body computeEmbeddingIndexRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}

	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}

	source := body.LeafPath.Path()
	if err := schema.ValidatePath(source); err != nil {
		r.writeDomainError(w, err)
		return
	}
	embedder, err := r.embedders.Get(body.Embedding)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	if d.Schema().GetField(source) == nil {
		r.writeDomainError(w, fmt.Errorf("%w: %q", schema.ErrFieldNotFound, source.String()))
		return
	}

	description := fmt.Sprintf("index %s with %s", source.String(), embedder.Name())
	coalesceKey := name + "\x00index\x00" + schema.SerializePath(source) + "@" + embedder.Name()

	t := r.tasks.Submit("compute_embedding_index", name, description, coalesceKey, func(ctx context.Context) error {
		ctx, cancel := r.taskContext(ctx)
		defer cancel()
		task.ReportProgress(ctx, 0.1, "embedding rows")
		if err := d.ComputeEmbeddingIndex(ctx, embedder, source); err != nil {
			return err
		}
		task.ReportProgress(ctx, 0.9, "persisting dataset")
		return r.afterMutation(ctx, name)
	})
	r.writeJSON(w, http.StatusAccepted, t)
}

type deleteSignalRequest struct {
	SignalPath query.PathSpec `json:"signal_path"`
}

// handleDeleteSignal removes a computed signal subtree. Deletion is cheap,
// so it runs synchronously.
func (r *Router) handleDeleteSignal(w http.ResponseWriter, req *http.Request) {
	var body deleteSignalRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}

	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}

	target := body.SignalPath.Path()
	if err := schema.ValidatePath(target); err != nil {
		r.writeDomainError(w, err)
		return
	}
	if err := d.DeleteSignal(target); err != nil {
		r.writeDomainError(w, err)
		return
	}
	if err := r.afterMutation(req.Context(), name); err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, d.Manifest())
}

// afterMutation persists the dataset when configured and fires the change
// listeners that invalidate cached results.
func (r *Router) afterMutation(ctx context.Context, name string) error {
	if r.cfg.Datasets.SaveOnMutate {
		if err := r.store.Save(ctx, name); err != nil {
			return err
		}
	}
	r.store.NotifyChange(name)
	return nil
}

func (r *Router) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(r.cfg.Timeout.GetTaskTimeout()) * time.Millisecond
	return context.WithTimeout(ctx, timeout)
}
