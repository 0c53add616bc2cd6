// Package notify delivers the final job record to the originating
// client's callback endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"easel/internal/model"
)

// Notifier POSTs job records to their callback URLs. Exactly one attempt
// is made per completion event; there is no retry queue.
type Notifier struct {
	http   *http.Client
	logger *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify serializes the record (error code as its integer ordinal, unset
// optional fields omitted) and POSTs it to the record's callback URL.
func (n *Notifier) Notify(ctx context.Context, rec *model.JobRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rec.ClientCallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("callback post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("callback returned %d", resp.StatusCode)
	}

	n.logger.Debug("callback delivered", "url", rec.ClientCallbackURL, "status", resp.StatusCode)
	return nil
}
