// Package task runs dataset mutations in the background. Every mutating
// operation returns a task id immediately; clients poll the task until it
// reaches a terminal state. Tasks with the same coalescing key share one
// execution, so submitting the same computation twice never does the work
// twice.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/internal/metrics"
)

var (
	ErrNotFound = errors.New("task not found")
)

type progressKey struct{}

// ReportProgress records intermediate progress for the task running under
// ctx. Outside a task it is a no-op.
func ReportProgress(ctx context.Context, progress float64, details string) {
	if report, ok := ctx.Value(progressKey{}).(func(float64, string)); ok {
		report(progress, details)
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is the client-visible record of one background computation.
type Task struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Dataset     string    `json:"dataset,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Details     string    `json:"details,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type record struct {
	mu   sync.Mutex
	task Task
	done chan struct{}
}

func (r *record) snapshot() Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.task
}

// Manager owns all task records and their goroutines.
type Manager struct {
	mu       sync.Mutex
	tasks    map[string]*record
	inflight map[string]*record // coalescing key -> running record
	logger   *logging.Logger
	sem      chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a task manager with no concurrency cap. Close cancels
// all running tasks and waits for them to settle.
func NewManager(logger *logging.Logger) *Manager {
	return NewManagerWithLimit(logger, 0)
}

// NewManagerWithLimit creates a task manager that runs at most maxConcurrent
// tasks at once; excess submissions stay pending until a slot frees up.
// Zero means unbounded.
func NewManagerWithLimit(logger *logging.Logger, maxConcurrent int) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tasks:    make(map[string]*record),
		inflight: make(map[string]*record),
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	if maxConcurrent > 0 {
		m.sem = make(chan struct{}, maxConcurrent)
	}
	return m
}

// Submit starts fn in the background and returns its task. When coalesceKey
// is non-empty and a task with the same key is still running, that task is
// returned instead of starting a duplicate.
func (m *Manager) Submit(kind, dataset, description, coalesceKey string, fn func(ctx context.Context) error) Task {
	m.mu.Lock()
	if coalesceKey != "" {
		if existing, ok := m.inflight[coalesceKey]; ok {
			m.mu.Unlock()
			return existing.snapshot()
		}
	}

	r := &record{
		task: Task{
			ID:          uuid.New().String(),
			Kind:        kind,
			Dataset:     dataset,
			Description: description,
			Status:      StatusPending,
			CreatedAt:   time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	m.tasks[r.task.ID] = r
	if coalesceKey != "" {
		m.inflight[coalesceKey] = r
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(r, coalesceKey, fn)
	return r.snapshot()
}

func (m *Manager) run(r *record, coalesceKey string, fn func(ctx context.Context) error) {
	defer m.wg.Done()

	var err error
	if m.sem != nil {
		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.baseCtx.Done():
			err = m.baseCtx.Err()
		}
	}

	start := time.Now()
	if err == nil {
		ctx := context.WithValue(m.baseCtx, progressKey{}, func(progress float64, details string) {
			r.mu.Lock()
			if !r.task.Status.Terminal() {
				r.task.Progress = clampProgress(progress)
				if details != "" {
					r.task.Details = details
				}
			}
			r.mu.Unlock()
		})
		err = fn(ctx)
	}

	finished := time.Now().UTC()
	r.mu.Lock()
	r.task.FinishedAt = &finished
	if err != nil {
		r.task.Status = StatusError
		r.task.Error = err.Error()
	} else {
		r.task.Status = StatusCompleted
		r.task.Progress = 1
	}
	t := r.task
	r.mu.Unlock()
	close(r.done)

	m.mu.Lock()
	if coalesceKey != "" && m.inflight[coalesceKey] == r {
		delete(m.inflight, coalesceKey)
	}
	m.mu.Unlock()

	metrics.ObserveTask(t.Kind, string(t.Status), time.Since(start).Seconds())
	if m.logger != nil {
		if err != nil {
			m.logger.Error("task failed", "task_id", t.ID, "kind", t.Kind, "dataset", t.Dataset, "error", err)
		} else {
			m.logger.Info("task completed", "task_id", t.ID, "kind", t.Kind, "dataset", t.Dataset, "duration_ms", time.Since(start).Milliseconds())
		}
	}
}

// Get returns a task by id.
func (m *Manager) Get(id string) (Task, error) {
	m.mu.Lock()
	r, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.snapshot(), nil
}

// List returns all tasks, newest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	records := make([]*record, 0, len(m.tasks))
	for _, r := range m.tasks {
		records = append(records, r)
	}
	m.mu.Unlock()

	out := make([]Task, len(records))
	for i, r := range records {
		out[i] = r.snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Wait blocks until the task reaches a terminal state or the context ends.
// Intended for tests and the CLI; the HTTP layer polls instead.
func (m *Manager) Wait(ctx context.Context, id string) (Task, error) {
	m.mu.Lock()
	r, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Close cancels running tasks and waits for their goroutines.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
