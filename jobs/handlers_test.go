package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/stock"
)

type fakeSweeper struct{ reverted int }

func (f *fakeSweeper) SweepStaleAllocations(context.Context) (int, error) {
	return f.reverted, nil
}

type fakeVerifier struct{ mismatches []stock.Mismatch }

func (f *fakeVerifier) VerifyLedger(context.Context) ([]stock.Mismatch, error) {
	return f.mismatches, nil
}

type fakeMetrics struct {
	mismatches int
	stale      int
}

func (f *fakeMetrics) CountLedgerMismatches(n int)         { f.mismatches += n }
func (f *fakeMetrics) CountStaleAllocationsReverted(n int) { f.stale += n }

func TestHandleStaleAllocationSweep(t *testing.T) {
	metrics := &fakeMetrics{}
	h := &Handlers{Challans: &fakeSweeper{reverted: 3}, Metrics: metrics, Logger: slog.Default()}

	task, err := NewStaleAllocationSweepTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, h.HandleStaleAllocationSweep(context.Background(), task))
	require.Equal(t, 3, metrics.stale)
}

func TestHandleLedgerIntegrity(t *testing.T) {
	metrics := &fakeMetrics{}
	h := &Handlers{
		Ledger:  &fakeVerifier{mismatches: []stock.Mismatch{{ProductID: "X", Stored: 5, Replayed: 7}}},
		Metrics: metrics,
		Logger:  slog.Default(),
	}

	task, err := NewLedgerIntegrityTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, h.HandleLedgerIntegrity(context.Background(), task))
	require.Equal(t, 1, metrics.mismatches)
}
