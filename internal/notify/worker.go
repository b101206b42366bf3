package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

type DispatchJobArgs struct {
	Event Event `json:"event"`
}

func (DispatchJobArgs) Kind() string { return "notify_event" }

// DispatchWorker posts events to the notification dispatcher. The dispatcher
// owns fan-out to email/push/SMS; this worker only delivers the event payload.
// Delivery failures are logged, not retried: losing a notification must never
// matter to the ledger.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchJobArgs]
	dispatcherURL string
	httpClient    *http.Client
	log           *slog.Logger
}

func NewDispatchWorker(dispatcherURL string, log *slog.Logger) *DispatchWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchWorker{
		dispatcherURL: dispatcherURL,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		log:           log,
	}
}

func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchJobArgs]) error {
	if w.dispatcherURL == "" {
		return nil
	}
	body, err := json.Marshal(job.Args.Event)
	if err != nil {
		w.log.Error("marshal notification event", "kind", job.Args.Event.Kind, "error", err)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.dispatcherURL, bytes.NewReader(body))
	if err != nil {
		w.log.Error("build notification request", "error", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Error("deliver notification", "kind", job.Args.Event.Kind, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.Error("deliver notification", "kind", job.Args.Event.Kind,
			"error", fmt.Sprintf("dispatcher returned status %d", resp.StatusCode))
	}
	return nil
}
