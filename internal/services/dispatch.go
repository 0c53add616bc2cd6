package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"easel/internal/config"
	"easel/internal/metrics"
	"easel/internal/model"
	"easel/internal/worker"
	"easel/internal/workflow"
)

// Service types accepted by the dispatch endpoint.
const (
	ServiceText2Img = "text2img"
	ServiceImg2Img  = "img2img"
)

var ErrUnknownServiceType = errors.New("unknown service type")

// DispatchRequest is the internal representation of a job request after
// HTTP decoding.
type DispatchRequest struct {
	ServiceType  string
	ClientTaskID string
	CallbackURL  string
	Text         string
	ImageBase64  string
}

// Records is the subset of the record store the dispatcher needs.
type Records interface {
	CreateJob(ctx context.Context, rec *model.JobRecord) (*model.JobRecord, error)
	UpdateJob(ctx context.Context, rec *model.JobRecord) error
}

// DispatchService submits render jobs: it picks a worker, prepares the
// job description, submits it, and persists the resulting record.
type DispatchService interface {
	Dispatch(ctx context.Context, req *DispatchRequest) (*model.JobRecord, error)
}

type dispatchService struct {
	cfg    *config.Config
	store  Records
	pool   *worker.Pool
	logger *slog.Logger
}

func NewDispatchService(cfg *config.Config, store Records, pool *worker.Pool, logger *slog.Logger) DispatchService {
	return &dispatchService{cfg: cfg, store: store, pool: pool, logger: logger}
}

// Dispatch runs one job submission. The record is created before the
// remote submit call so that a submission failure is still observable to
// the caller: such a record carries SUBMIT_ERROR and no worker task id,
// and the job is never retried automatically.
func (s *dispatchService) Dispatch(ctx context.Context, req *DispatchRequest) (*model.JobRecord, error) {
	w, err := s.pool.Select()
	if err != nil {
		return nil, err
	}

	desc, err := s.buildDescription(ctx, w, req)
	if err != nil {
		return nil, err
	}

	callback := req.CallbackURL
	if callback == "" {
		callback = s.cfg.Callback.BaseURL + "/" + req.ClientTaskID
	}

	rec := &model.JobRecord{
		ClientTaskID:      req.ClientTaskID,
		ClientCallbackURL: callback,
	}
	rec, err = s.store.CreateJob(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	workerTaskID, err := w.Client().SubmitJob(ctx, desc, w.ClientID)
	if err != nil {
		s.logger.Error("job submission failed", "endpoint", w.Endpoint, "client_task_id", req.ClientTaskID, "err", err)
		rec.ErrorCode = model.SubmitError
		if updErr := s.store.UpdateJob(ctx, rec); updErr != nil {
			s.logger.Error("record update failed after submit error", "err", updErr)
		}
		metrics.RecordDispatch(req.ServiceType, false)
		return rec, nil
	}

	rec.WorkerTaskID = workerTaskID
	if err := s.store.UpdateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist worker task id: %w", err)
	}

	s.logger.Info("job dispatched", "endpoint", w.Endpoint, "client_task_id", req.ClientTaskID, "worker_task_id", workerTaskID, "queue_remaining", w.QueueRemaining())
	metrics.RecordDispatch(req.ServiceType, true)
	return rec, nil
}

// buildDescription renders the job description for the request's service
// type, uploading the reference image first for image-to-image jobs.
func (s *dispatchService) buildDescription(ctx context.Context, w *worker.Worker, req *DispatchRequest) (json.RawMessage, error) {
	switch req.ServiceType {
	case ServiceText2Img:
		return workflow.Text2Img(req.Text)
	case ServiceImg2Img:
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("decode reference image: %w", err)
		}
		path, err := w.Client().UploadInput(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("upload reference image: %w", err)
		}
		return workflow.Img2Img(req.Text, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownServiceType, req.ServiceType)
	}
}
