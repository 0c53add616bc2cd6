// Package pipeline orchestrates post-completion processing for a render
// job: locate the record, fetch the artifact, persist it durably (or to
// the local fallback), notify the client, and clean up worker-side files.
//
// Two guarantees hold even under partial failure: the artifact exists
// somewhere, and the client is told something. Everything else is
// advisory.
package pipeline

import (
	"context"
	"log/slog"

	"easel/internal/metrics"
	"easel/internal/model"
	"easel/internal/workflow"
)

// RecordStore is the subset of the job record store the pipeline needs.
type RecordStore interface {
	GetJobByWorkerTaskID(ctx context.Context, workerTaskID string) (*model.JobRecord, error)
	UpdateJob(ctx context.Context, rec *model.JobRecord) error
}

// WorkerAPI is the per-worker client surface used after a completion
// event. The listener passes the client of the worker whose stream
// delivered the event.
type WorkerAPI interface {
	FetchOutputs(ctx context.Context, workerTaskID string) (string, error)
	FetchArtifact(ctx context.Context, path string) ([]byte, error)
	DeleteRemoteFile(ctx context.Context, kind workflow.FileKind, path string) error
}

// BlobStore uploads artifact bytes durably under a provider-assigned key.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// Fallback persists artifact bytes locally when the blob store fails.
type Fallback interface {
	Write(artifactPath string, data []byte) (string, error)
}

// Notifier delivers the finished record to the client callback.
type Notifier interface {
	Notify(ctx context.Context, rec *model.JobRecord) error
}

type Pipeline struct {
	store    RecordStore
	blobs    BlobStore
	fallback Fallback
	notifier Notifier
	logger   *slog.Logger
}

func New(store RecordStore, blobs BlobStore, fallback Fallback, notifier Notifier, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		blobs:    blobs,
		fallback: fallback,
		notifier: notifier,
		logger:   logger,
	}
}

// Run processes one completion event. The record is bound before any
// failable step so that the notify and cleanup steps always have a
// defined value to act on. Failures downgrade the outcome via the
// record's error code; nothing escalates past this method.
func (p *Pipeline) Run(ctx context.Context, wc WorkerAPI, workerTaskID string) {
	rec, err := p.store.GetJobByWorkerTaskID(ctx, workerTaskID)
	if err != nil {
		p.logger.Error("record lookup failed", "worker_task_id", workerTaskID, "err", err)
		return
	}
	if rec == nil {
		// An event for an unknown or already-finalized job. Not an error.
		p.logger.Debug("completion event for unknown job", "worker_task_id", workerTaskID)
		return
	}

	logger := p.logger.With("worker_task_id", workerTaskID, "client_task_id", rec.ClientTaskID)

	if p.storeArtifactStep(ctx, wc, rec, logger) {
		logger.Info("job finalized", "error_code", rec.ErrorCode.String(), "durable_key", rec.DurableKey)
	}

	p.notifyStep(ctx, rec, logger)
	p.cleanupStep(ctx, wc, rec, logger)

	metrics.RecordCompletion(rec.ErrorCode.String())
}

// storeArtifactStep resolves, fetches, and persists the artifact. It
// reports whether the artifact ended up durably stored.
func (p *Pipeline) storeArtifactStep(ctx context.Context, wc WorkerAPI, rec *model.JobRecord, logger *slog.Logger) bool {
	path, err := wc.FetchOutputs(ctx, rec.WorkerTaskID)
	if err != nil {
		logger.Error("resolve outputs failed", "err", err)
		rec.ErrorCode = model.RetrieveError
		p.update(ctx, rec, logger)
		return false
	}

	// Persist the resolved path immediately so inspection can find the
	// artifact even if a later step fails.
	rec.ArtifactPath = path
	p.update(ctx, rec, logger)

	data, err := wc.FetchArtifact(ctx, path)
	if err != nil {
		logger.Error("fetch artifact failed", "path", path, "err", err)
		rec.ErrorCode = model.RetrieveError
		p.update(ctx, rec, logger)
		return false
	}

	key, err := p.blobs.Put(ctx, data)
	if err != nil {
		logger.Error("durable upload failed, using local fallback", "err", err)
		rec.ErrorCode = model.StoreError
		if local, fbErr := p.fallback.Write(rec.ArtifactPath, data); fbErr != nil {
			logger.Error("fallback write failed", "err", fbErr)
		} else {
			logger.Warn("artifact stored locally", "path", local)
		}
		p.update(ctx, rec, logger)
		return false
	}

	rec.DurableKey = key
	p.update(ctx, rec, logger)
	return true
}

// notifyStep makes the single callback attempt. A callback failure only
// becomes the record's error code when no earlier step already set one.
func (p *Pipeline) notifyStep(ctx context.Context, rec *model.JobRecord, logger *slog.Logger) {
	if err := p.notifier.Notify(ctx, rec); err != nil {
		logger.Error("client callback failed", "url", rec.ClientCallbackURL, "err", err)
		if rec.ErrorCode == model.Success {
			rec.ErrorCode = model.UnknownError
			p.update(ctx, rec, logger)
		}
	}
}

// cleanupStep issues the best-effort delete of the worker-side output
// file, exactly once per completed job regardless of pipeline outcome. A
// job whose output was never resolved has nothing to clean.
func (p *Pipeline) cleanupStep(ctx context.Context, wc WorkerAPI, rec *model.JobRecord, logger *slog.Logger) {
	if rec.ArtifactPath == "" {
		return
	}
	if err := wc.DeleteRemoteFile(ctx, workflow.KindOutput, rec.ArtifactPath); err != nil {
		logger.Warn("remote cleanup failed", "path", rec.ArtifactPath, "err", err)
	}
}

func (p *Pipeline) update(ctx context.Context, rec *model.JobRecord, logger *slog.Logger) {
	if err := p.store.UpdateJob(ctx, rec); err != nil {
		logger.Error("record update failed", "err", err)
	}
}
