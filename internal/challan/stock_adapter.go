package challan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-crm/meridian-crm/internal/shared"
	"github.com/meridian-crm/meridian-crm/internal/stock"
)

// StockAdapter bridges the challan pipeline to the stock ledger. It reads
// levels for reconciliation and binds Out postings into the completion
// transaction. Products without a stock record count as zero on hand, so a
// missing item reconciles to a zero deliverable instead of an error.
type StockAdapter struct {
	ledger *stock.Ledger
	repo   *stock.Repository
}

// NewStockAdapter builds the adapter.
func NewStockAdapter(ledger *stock.Ledger, repo *stock.Repository) *StockAdapter {
	return &StockAdapter{ledger: ledger, repo: repo}
}

// CurrentStock reads the on-hand level without locking.
func (a *StockAdapter) CurrentStock(ctx context.Context, productID string) (float64, error) {
	item, err := a.ledger.GetItem(ctx, productID)
	if err != nil {
		if shared.KindOf(err) == shared.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return item.CurrentStock, nil
}

// Bind attaches ledger writes to a challan-owned transaction.
func (a *StockAdapter) Bind(tx pgx.Tx) BoundLedger {
	return &boundLedger{ledger: a.ledger, tx: a.repo.Bind(tx)}
}

type boundLedger struct {
	ledger *stock.Ledger
	tx     stock.TxRepository
}

// StockOnHand reads the level under FOR UPDATE so concurrent commits over the
// same product serialize.
func (b *boundLedger) StockOnHand(ctx context.Context, productID string) (float64, error) {
	item, err := b.tx.GetItemForUpdate(ctx, productID)
	if err != nil {
		if shared.KindOf(err) == shared.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return item.CurrentStock, nil
}

// PostOut appends one Out movement for a delivered line.
func (b *boundLedger) PostOut(ctx context.Context, productID string, quantity float64, challanID uuid.UUID, actorID int64) error {
	_, _, err := b.ledger.Apply(ctx, b.tx, stock.MovementInput{
		ProductID: productID,
		Type:      stock.MovementOut,
		Quantity:  quantity,
		ChallanID: &challanID,
		Reason:    fmt.Sprintf("delivery:%s", challanID),
		ActorID:   actorID,
	})
	return err
}
