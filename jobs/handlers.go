package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian-crm/internal/stock"
)

// ChallanSweeper is the slice of the challan service the sweep needs.
type ChallanSweeper interface {
	SweepStaleAllocations(ctx context.Context) (int, error)
}

// LedgerVerifier replays product movement logs and reports mismatches.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context) ([]stock.Mismatch, error)
}

// MetricsSink receives job outcome counters.
type MetricsSink interface {
	CountLedgerMismatches(n int)
	CountStaleAllocationsReverted(n int)
}

// Handlers processes maintenance tasks.
type Handlers struct {
	Challans ChallanSweeper
	Ledger   LedgerVerifier
	Metrics  MetricsSink
	Logger   *slog.Logger
}

// HandleStaleAllocationSweep reverts expired allocations.
func (h *Handlers) HandleStaleAllocationSweep(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	reverted, err := h.Challans.SweepStaleAllocations(ctx)
	if err != nil {
		h.Logger.Error("stale allocation sweep", slog.Any("error", err))
		return err
	}
	if h.Metrics != nil {
		h.Metrics.CountStaleAllocationsReverted(reverted)
	}
	h.Logger.Info("stale allocation sweep", slog.Int("reverted", reverted))
	return nil
}

// HandleLedgerIntegrity replays every product and logs disagreements.
func (h *Handlers) HandleLedgerIntegrity(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	mismatches, err := h.Ledger.VerifyLedger(ctx)
	if err != nil {
		h.Logger.Error("ledger integrity", slog.Any("error", err))
		return err
	}
	if h.Metrics != nil {
		h.Metrics.CountLedgerMismatches(len(mismatches))
	}
	for _, m := range mismatches {
		h.Logger.Warn("ledger mismatch",
			slog.String("product_id", m.ProductID),
			slog.Float64("stored", m.Stored),
			slog.Float64("replayed", m.Replayed))
	}
	if len(mismatches) == 0 {
		h.Logger.Info("ledger integrity clean")
	}
	return nil
}
