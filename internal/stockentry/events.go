package stockentry

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atlas-erp/atlas-erp/jobs"
)

// TaskEnqueuer is the slice of the jobs client the publisher needs.
type TaskEnqueuer interface {
	EnqueueStockEntrySubmitted(ctx context.Context, payload jobs.StockEntryEventPayload) (*asynq.TaskInfo, error)
	EnqueueStockEntryCancelled(ctx context.Context, payload jobs.StockEntryEventPayload) (*asynq.TaskInfo, error)
}

// AsyncEvents publishes lifecycle events onto the job queue. Enqueue
// failures are logged and swallowed, the posting itself already committed.
type AsyncEvents struct {
	enqueuer TaskEnqueuer
	logger   *slog.Logger
}

// NewAsyncEvents constructs AsyncEvents.
func NewAsyncEvents(enqueuer TaskEnqueuer, logger *slog.Logger) *AsyncEvents {
	return &AsyncEvents{enqueuer: enqueuer, logger: logger}
}

func (p *AsyncEvents) EntrySubmitted(ctx context.Context, e *StockEntry) {
	p.publish(ctx, e, p.enqueuer.EnqueueStockEntrySubmitted)
}

func (p *AsyncEvents) EntryCancelled(ctx context.Context, e *StockEntry) {
	p.publish(ctx, e, p.enqueuer.EnqueueStockEntryCancelled)
}

func (p *AsyncEvents) publish(ctx context.Context, e *StockEntry,
	enqueue func(context.Context, jobs.StockEntryEventPayload) (*asynq.TaskInfo, error)) {

	payload := jobs.StockEntryEventPayload{
		Name:            e.Name,
		Purpose:         string(e.Purpose),
		ProductionOrder: e.ProductionOrder,
		PostedAt:        e.PostedAt,
	}
	if _, err := enqueue(ctx, payload); err != nil {
		p.logger.Warn("stock entry event enqueue failed", "entry", e.Name, "error", err)
	}
}
