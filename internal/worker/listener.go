package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"easel/internal/metrics"
)

// CompletionFunc handles a job-completion event for a worker-assigned
// task id. It runs synchronously inside the listener's read loop:
// completion handling for one job blocks the next event on the same
// stream, which keeps a single worker's completions ordered. Listeners
// for different workers run independently.
type CompletionFunc func(ctx context.Context, workerTaskID string)

// Listener consumes one worker's event stream for the process lifetime.
// It reconnects with the same client identifier after any transport
// failure and never gives up; a worker that is down is retried forever.
type Listener struct {
	worker     *Worker
	onComplete CompletionFunc
	backoff    time.Duration
	logger     *slog.Logger
}

func NewListener(w *Worker, onComplete CompletionFunc, backoff time.Duration, logger *slog.Logger) *Listener {
	return &Listener{
		worker:     w,
		onComplete: onComplete,
		backoff:    backoff,
		logger:     logger.With("endpoint", w.Endpoint, "client_id", w.ClientID),
	}
}

type streamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type statusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int64 `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
}

// Run loops between connected and disconnected until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	uri := "ws://" + l.worker.Endpoint + "/ws?clientId=" + l.worker.ClientID

	for ctx.Err() == nil {
		conn, _, _, err := ws.Dial(ctx, uri)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("event stream dial failed, retrying", "err", err)
			metrics.RecordListenerReconnect(l.worker.Endpoint)
			if !sleep(ctx, l.backoff) {
				return
			}
			continue
		}

		l.logger.Info("connected to worker event stream")
		l.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("event stream closed, reconnecting")
		metrics.RecordListenerReconnect(l.worker.Endpoint)
		if !sleep(ctx, l.backoff) {
			return
		}
	}
}

// readLoop consumes events until the stream fails or ctx is cancelled.
func (l *Listener) readLoop(ctx context.Context, conn net.Conn) {
	// Unblock the pending read when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			return
		}
		l.handleMessage(ctx, data)
	}
}

// handleMessage processes one stream event. Malformed or unrecognized
// events are logged and skipped; they must never terminate the listener.
func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	var evt streamEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		l.logger.Warn("malformed stream event", "err", err)
		return
	}

	switch evt.Type {
	case "executing":
		var exec executingData
		if err := json.Unmarshal(evt.Data, &exec); err != nil {
			l.logger.Warn("malformed executing event", "err", err)
			return
		}
		// A null node means the worker finished the whole job.
		if exec.Node == nil && exec.PromptID != "" {
			l.logger.Info("job completed on worker", "worker_task_id", exec.PromptID)
			l.onComplete(ctx, exec.PromptID)
		}
	case "status":
		var st statusData
		if err := json.Unmarshal(evt.Data, &st); err != nil {
			l.logger.Warn("malformed status event", "err", err)
			return
		}
		l.worker.SetQueueRemaining(st.Status.ExecInfo.QueueRemaining)
		l.logger.Debug("queue gauge updated", "queue_remaining", st.Status.ExecInfo.QueueRemaining)
	default:
		// Other event kinds carry nothing we track.
	}
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
