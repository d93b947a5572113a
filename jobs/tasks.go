// Package jobs wires background maintenance tasks over Asynq: the stale
// allocation sweep and the ledger integrity replay.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStaleAllocationSweep reverts Allocating challans whose allocation
	// window expired.
	TaskStaleAllocationSweep = "challan:stale_allocation_sweep"
	// TaskLedgerIntegrity replays every product's movement log against the
	// stored stock level.
	TaskLedgerIntegrity = "stock:ledger_integrity"
)

// SweepPayload carries scheduling metadata for the allocation sweep.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStaleAllocationSweepTask constructs the sweep task.
func NewStaleAllocationSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleAllocationSweep, body, asynq.Queue(QueueDefault)), nil
}

// IntegrityPayload carries scheduling metadata for the integrity replay.
type IntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs the integrity task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
