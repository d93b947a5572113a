package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported ledger movements.
type MovementType string

const (
	// MovementIn represents an inbound receipt.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound issue, normally a delivery.
	MovementOut MovementType = "OUT"
	// MovementReturn represents goods coming back; it adds stock like IN and
	// is distinguished only by reason semantics for reporting.
	MovementReturn MovementType = "RETURN"
	// MovementAdjustment sets an absolute stock level and resets the replay baseline.
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// IsValid checks if the movement type is valid.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementReturn, MovementAdjustment:
		return true
	default:
		return false
	}
}

// ItemStatus is derived from current stock against the minimum level.
type ItemStatus string

const (
	ItemInStock    ItemStatus = "IN_STOCK"
	ItemLowStock   ItemStatus = "LOW_STOCK"
	ItemOutOfStock ItemStatus = "OUT_OF_STOCK"
)

// Item is the per-product stock record, mutated only through the ledger path.
type Item struct {
	ProductID    string          `json:"product_id"`
	CurrentStock float64         `json:"current_stock"`
	MinStock     float64         `json:"min_stock"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Status derives the stock level indicator.
func (i Item) Status() ItemStatus {
	switch {
	case i.CurrentStock == 0:
		return ItemOutOfStock
	case i.CurrentStock <= i.MinStock:
		return ItemLowStock
	default:
		return ItemInStock
	}
}

// Movement is one append-only ledger row.
type Movement struct {
	ID         uuid.UUID    `json:"id"`
	ProductID  string       `json:"product_id"`
	Type       MovementType `json:"movement_type"`
	Quantity   float64      `json:"quantity"`
	ChallanID  *uuid.UUID   `json:"challan_id,omitempty"`
	Reason     string       `json:"reason"`
	ActorID    int64        `json:"actor_id"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// MovementInput describes a requested ledger write.
type MovementInput struct {
	ProductID  string
	Type       MovementType
	Quantity   float64
	ChallanID  *uuid.UUID
	Reason     string
	ActorID    int64
	RequestKey string // optional idempotency key for retried posts
}

// MovementFilter filters ledger history reads.
type MovementFilter struct {
	ProductID string
	ChallanID *uuid.UUID
	From      time.Time
	To        time.Time
	Limit     int
}

// Mismatch reports a product whose stored stock disagrees with the replayed ledger.
type Mismatch struct {
	ProductID string  `json:"product_id"`
	Stored    float64 `json:"stored"`
	Replayed  float64 `json:"replayed"`
}

// Replay folds movements from a zero baseline into a stock level. ADJUSTMENT
// resets the baseline to its absolute quantity.
func Replay(movements []Movement) float64 {
	var level float64
	for _, m := range movements {
		switch m.Type {
		case MovementIn, MovementReturn:
			level += m.Quantity
		case MovementOut:
			level -= m.Quantity
		case MovementAdjustment:
			level = m.Quantity
		}
	}
	return level
}
