package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"morphocore/internal/blob"
	"morphocore/internal/duplication"
	"morphocore/internal/media"
	"morphocore/internal/observability"
	"morphocore/internal/schema"
)

// Handler executes approved requests.
type Handler struct {
	store    *Store
	registry *schema.Registry
	local    *media.LocalConfig
	remote   blob.Store

	logger  observability.Logger
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLocalMedia enables copying assets of the hashed-directory store.
func WithLocalMedia(cfg media.LocalConfig) HandlerOption {
	return func(h *Handler) { h.local = &cfg }
}

// WithObjectStore sets the object store holding remote assets.
func WithObjectStore(store blob.Store) HandlerOption {
	return func(h *Handler) { h.remote = store }
}

// WithLogger sets the logger shared with every orchestrator.
func WithLogger(l observability.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder shared with every orchestrator.
func WithMetricsRecorder(m observability.MetricsRecorder) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithTracer sets the tracer shared with every orchestrator.
func WithTracer(t observability.Tracer) HandlerOption {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// NewHandler returns a handler cloning catalog tables described by reg.
func NewHandler(store *Store, reg *schema.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:    store,
		registry: reg,
		logger:   observability.NopLogger(),
		metrics:  observability.NopMetrics(),
		tracer:   observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleDuplication clones the project of an approved duplication request.
func (h *Handler) HandleDuplication(ctx context.Context, requestID int64) (int64, error) {
	return h.handle(ctx, KindDuplication, requestID, func(r Request) duplication.Config {
		return duplication.ProjectConfig(h.registry, r.ProjectID)
	})
}

// HandlePartitionPublish clones one partition of a project as a new project.
func (h *Handler) HandlePartitionPublish(ctx context.Context, requestID int64) (int64, error) {
	return h.handle(ctx, KindPartitionPublish, requestID, func(r Request) duplication.Config {
		return duplication.PartitionConfig(h.registry, r.ProjectID, r.PartitionID)
	})
}

func (h *Handler) handle(ctx context.Context, kind Kind, id int64, configure func(Request) duplication.Config) (int64, error) {
	req, err := h.store.Get(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	if req.Status != StatusApproved {
		return 0, fmt.Errorf("%s request %d is %s: %w", kind, id, req.Status, ErrNotApproved)
	}
	log := []any{"kind", string(kind), "request", id, "project", req.ProjectID}

	newID, err := h.run(ctx, req, configure(req))
	if err != nil {
		h.logger.Error("request failed", append(log, "err", err)...)
		if serr := h.store.SetStatus(ctx, nil, kind, id, StatusFailed, 0, err.Error()); serr != nil {
			h.logger.Error("record request failure", append(log, "err", serr)...)
			return 0, errors.Join(err, serr)
		}
		return 0, err
	}
	h.logger.Info("request completed", append(log, "new_project", newID)...)
	return newID, nil
}

// run clones, queues follow-up tasks and completes the request in one
// transaction.
func (h *Handler) run(ctx context.Context, req Request, cfg duplication.Config) (int64, error) {
	tx, err := h.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	rollback := func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			h.logger.Error("rollback failed", "err", err)
		}
	}
	cfg.Tx = tx
	cfg.Dialect = h.store.Dialect()
	cfg.Local = h.local
	cfg.Remote = h.remote
	cfg.Overrides = duplication.CloneOverrides(req.UserID)

	o, err := duplication.New(cfg,
		duplication.WithLogger(h.logger),
		duplication.WithMetricsRecorder(h.metrics),
		duplication.WithTracer(h.tracer))
	if err != nil {
		rollback()
		return 0, err
	}
	newID, err := o.Duplicate(ctx)
	if err != nil {
		rollback()
		return 0, err
	}
	if err := h.finish(ctx, tx, req, newID); err != nil {
		rollback()
		o.Compensate(ctx)
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		o.Compensate(ctx)
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newID, nil
}

func (h *Handler) finish(ctx context.Context, tx *sql.Tx, req Request, newID int64) error {
	if _, err := h.store.Enqueue(ctx, tx, TaskOverviewRegenerate, map[string]any{"project_id": newID}); err != nil {
		return err
	}
	params := map[string]any{
		"request_id":     req.ID,
		"request_type":   string(req.Kind),
		"user_id":        req.UserID,
		"project_id":     req.ProjectID,
		"new_project_id": newID,
	}
	if req.Kind == KindPartitionPublish {
		params["partition_id"] = req.PartitionID
	}
	if _, err := h.store.Enqueue(ctx, tx, TaskDuplicationEmail, params); err != nil {
		return err
	}
	return h.store.SetStatus(ctx, tx, req.Kind, req.ID, StatusCompleted, newID, "")
}
