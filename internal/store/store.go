package store

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"easel/internal/model"
)

// Store wraps access to the render_jobs table on a shared *sql.DB.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// nullable maps the empty string to SQL NULL so optional record fields stay
// NULL until the pipeline fills them in.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateJob inserts a new job record and returns it with its assigned id.
func (s *Store) CreateJob(ctx context.Context, rec *model.JobRecord) (*model.JobRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO render_jobs (client_task_id, client_callback_url, worker_task_id, artifact_path, durable_key, error_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.ClientTaskID,
		rec.ClientCallbackURL,
		nullable(rec.WorkerTaskID),
		nullable(rec.ArtifactPath),
		nullable(rec.DurableKey),
		int(rec.ErrorCode),
	)
	if err := row.Scan(&rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateJob persists the mutable fields of an existing record.
func (s *Store) UpdateJob(ctx context.Context, rec *model.JobRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE render_jobs
		SET worker_task_id = $1, artifact_path = $2, durable_key = $3, error_code = $4, updated_at = now()
		WHERE id = $5`,
		nullable(rec.WorkerTaskID),
		nullable(rec.ArtifactPath),
		nullable(rec.DurableKey),
		int(rec.ErrorCode),
		rec.ID,
	)
	return err
}

// GetJob fetches a record by its internal id. A missing row yields (nil, nil).
func (s *Store) GetJob(ctx context.Context, id int64) (*model.JobRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, client_task_id, client_callback_url, worker_task_id, artifact_path, durable_key, error_code
		FROM render_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetJobByWorkerTaskID resolves the record for a worker-assigned task id.
// This is the hot path behind every completion event; it is backed by
// idx_render_jobs_worker_task_id. A missing row yields (nil, nil): an event
// for an unknown or already-finalized job is not an error.
func (s *Store) GetJobByWorkerTaskID(ctx context.Context, workerTaskID string) (*model.JobRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, client_task_id, client_callback_url, worker_task_id, artifact_path, durable_key, error_code
		FROM render_jobs WHERE worker_task_id = $1`, workerTaskID)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*model.JobRecord, error) {
	var rec model.JobRecord
	var workerTaskID, artifactPath, durableKey sql.NullString
	var errorCode int

	err := row.Scan(&rec.ID, &rec.ClientTaskID, &rec.ClientCallbackURL, &workerTaskID, &artifactPath, &durableKey, &errorCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.WorkerTaskID = workerTaskID.String
	rec.ArtifactPath = artifactPath.String
	rec.DurableKey = durableKey.String
	rec.ErrorCode = model.ErrorCode(errorCode)
	return &rec, nil
}
