package stock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

type memRepo struct {
	items     map[string]Item
	movements []Movement
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[string]Item)}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]Item, len(r.items))
	for k, v := range r.items {
		snapshot[k] = v
	}
	moved := len(r.movements)
	if err := fn(ctx, r); err != nil {
		r.items = snapshot
		r.movements = r.movements[:moved]
		return err
	}
	return nil
}

func (r *memRepo) GetItem(_ context.Context, productID string) (Item, error) {
	item, ok := r.items[productID]
	if !ok {
		return Item{}, shared.Ef(shared.ErrNotFound, "product %s has no stock record", productID)
	}
	return item, nil
}

func (r *memRepo) GetItemForUpdate(ctx context.Context, productID string) (Item, error) {
	return r.GetItem(ctx, productID)
}

func (r *memRepo) ListItems(_ context.Context, _, _ int) ([]Item, int, error) {
	items := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items, len(items), nil
}

func (r *memRepo) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memRepo) ListProductIDs(_ context.Context) ([]string, error) {
	var ids []string
	for id := range r.items {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memRepo) UpsertItem(_ context.Context, item Item) error {
	r.items[item.ProductID] = item
	return nil
}

func (r *memRepo) InsertMovement(_ context.Context, m Movement) error {
	r.movements = append(r.movements, m)
	return nil
}

func seed(repo *memRepo, productID string, stock, min float64) {
	repo.items[productID] = Item{
		ProductID:    productID,
		CurrentStock: stock,
		MinStock:     min,
		UnitPrice:    decimal.NewFromInt(100),
	}
}

func TestUpdateStockIn(t *testing.T) {
	repo := newMemRepo()
	seed(repo, "SKU-1", 10, 5)
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})

	movement, item, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-1", Type: MovementIn, Quantity: 4, Reason: "grn 17", ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, MovementIn, movement.Type)
	require.Equal(t, 14.0, item.CurrentStock)
	require.Len(t, repo.movements, 1)
}

func TestUpdateStockReturnAddsStock(t *testing.T) {
	repo := newMemRepo()
	seed(repo, "SKU-1", 10, 5)
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})

	_, item, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-1", Type: MovementReturn, Quantity: 3, Reason: "customer return", ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 13.0, item.CurrentStock)
}

func TestUpdateStockOutBlocksNegative(t *testing.T) {
	repo := newMemRepo()
	seed(repo, "SKU-1", 2, 5)
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})

	_, _, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-1", Type: MovementOut, Quantity: 3, Reason: "delivery", ActorID: 1,
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, repo.movements)
	require.Equal(t, 2.0, repo.items["SKU-1"].CurrentStock)
}

func TestUpdateStockOutAllowedWhenConfigured(t *testing.T) {
	repo := newMemRepo()
	seed(repo, "SKU-1", 2, 5)
	ledger := NewLedger(repo, nil, nil, LedgerConfig{AllowNegativeStock: true})

	_, item, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-1", Type: MovementOut, Quantity: 3, Reason: "delivery", ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, -1.0, item.CurrentStock)
}

func TestUpdateStockAdjustmentIsAbsolute(t *testing.T) {
	repo := newMemRepo()
	seed(repo, "SKU-1", 42, 5)
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})

	_, item, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-1", Type: MovementAdjustment, Quantity: 7, Reason: "cycle count", ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 7.0, item.CurrentStock)
}

func TestUpdateStockCreatesItemOnReceipt(t *testing.T) {
	repo := newMemRepo()
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})

	_, item, err := ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-NEW", Type: MovementIn, Quantity: 5, Reason: "first receipt", ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 5.0, item.CurrentStock)

	_, _, err = ledger.UpdateStock(context.Background(), MovementInput{
		ProductID: "SKU-MISSING", Type: MovementOut, Quantity: 1, Reason: "delivery", ActorID: 1,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStockValidation(t *testing.T) {
	ledger := NewLedger(newMemRepo(), nil, nil, LedgerConfig{})

	_, _, err := ledger.UpdateStock(context.Background(), MovementInput{Type: MovementIn, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ledger.UpdateStock(context.Background(), MovementInput{ProductID: "SKU-1", Type: "TRANSFER", Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ledger.UpdateStock(context.Background(), MovementInput{ProductID: "SKU-1", Type: MovementIn, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ledger.UpdateStock(context.Background(), MovementInput{ProductID: "SKU-1", Type: MovementAdjustment, Quantity: -2})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestItemStatusDerivation(t *testing.T) {
	require.Equal(t, ItemOutOfStock, Item{CurrentStock: 0, MinStock: 5}.Status())
	require.Equal(t, ItemLowStock, Item{CurrentStock: 5, MinStock: 5}.Status())
	require.Equal(t, ItemInStock, Item{CurrentStock: 6, MinStock: 5}.Status())
}

func TestReplayWithAdjustmentBaseline(t *testing.T) {
	movements := []Movement{
		{Type: MovementIn, Quantity: 10},
		{Type: MovementOut, Quantity: 4},
		{Type: MovementAdjustment, Quantity: 20},
		{Type: MovementReturn, Quantity: 2},
		{Type: MovementOut, Quantity: 5},
	}
	require.Equal(t, 17.0, Replay(movements))
}

func TestVerifyLedgerReportsMismatch(t *testing.T) {
	repo := newMemRepo()
	ledger := NewLedger(repo, nil, nil, LedgerConfig{})
	ctx := context.Background()

	_, _, err := ledger.UpdateStock(ctx, MovementInput{ProductID: "SKU-1", Type: MovementIn, Quantity: 10, Reason: "receipt", ActorID: 1})
	require.NoError(t, err)

	mismatches, err := ledger.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Empty(t, mismatches)

	// Corrupt the stored level behind the ledger's back.
	item := repo.items["SKU-1"]
	item.CurrentStock = 99
	repo.items["SKU-1"] = item

	mismatches, err = ledger.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, 99.0, mismatches[0].Stored)
	require.Equal(t, 10.0, mismatches[0].Replayed)
}
