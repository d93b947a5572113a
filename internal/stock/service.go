package stock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, productID string) (Item, error)
	ListItems(ctx context.Context, limit, offset int) ([]Item, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListProductIDs(ctx context.Context) ([]string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Ledger coordinates stock mutations. Every accepted movement writes exactly
// one movement row and the item mutation in the same transaction.
type Ledger struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	allowNeg    bool
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	AllowNegativeStock bool
}

// NewLedger builds a Ledger.
func NewLedger(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg LedgerConfig) *Ledger {
	return &Ledger{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock}
}

// UpdateStock applies a single movement in its own transaction. Direct
// corrections (manual IN / RETURN / ADJUSTMENT) and delivery OUT postings both
// funnel through Apply, so the ledger invariant holds on every path.
func (l *Ledger) UpdateStock(ctx context.Context, input MovementInput) (Movement, Item, error) {
	if err := validateInput(input); err != nil {
		return Movement{}, Item{}, err
	}

	insertedKey := false
	if l.idempotency != nil && input.RequestKey != "" {
		if err := l.idempotency.CheckAndInsert(ctx, input.RequestKey, "stock"); err != nil {
			if err == shared.ErrIdempotencyConflict {
				return Movement{}, Item{}, shared.Ef(shared.ErrConcurrencyConflict, "movement %s already posted", input.RequestKey)
			}
			return Movement{}, Item{}, err
		}
		insertedKey = true
	}

	var (
		movement Movement
		item     Item
	)
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, item, err = l.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = l.idempotency.Delete(ctx, input.RequestKey)
		}
		return Movement{}, Item{}, err
	}

	if l.audit != nil {
		_ = l.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("stock:%s", input.Type),
			Entity:   "stock_movement",
			EntityID: movement.ID.String(),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"quantity":   input.Quantity,
				"reason":     input.Reason,
			},
		})
	}
	return movement, item, nil
}

// Apply performs the movement against an already-open transaction. The challan
// completion path calls this through its ledger adapter so all line writes and
// the terminal status update share one atomic unit.
func (l *Ledger) Apply(ctx context.Context, tx TxRepository, input MovementInput) (Movement, Item, error) {
	if err := validateInput(input); err != nil {
		return Movement{}, Item{}, err
	}

	item, err := tx.GetItemForUpdate(ctx, input.ProductID)
	if err != nil {
		if shared.KindOf(err) == shared.ErrNotFound {
			// Receipts and absolute adjustments may open a new item; issues
			// and returns require one to exist.
			switch input.Type {
			case MovementIn, MovementAdjustment:
				item = Item{ProductID: input.ProductID}
			default:
				return Movement{}, Item{}, shared.Ef(shared.ErrNotFound, "product %s has no stock record", input.ProductID)
			}
		} else {
			return Movement{}, Item{}, err
		}
	}

	newStock := item.CurrentStock
	switch input.Type {
	case MovementIn, MovementReturn:
		newStock += input.Quantity
	case MovementOut:
		newStock -= input.Quantity
	case MovementAdjustment:
		newStock = input.Quantity
	}
	if newStock < 0 && !l.allowNeg {
		return Movement{}, Item{}, shared.Ef(shared.ErrInsufficientStock,
			"product %s: %s of %.2f would drive stock below zero (current %.2f)",
			input.ProductID, input.Type, input.Quantity, item.CurrentStock)
	}

	now := time.Now().UTC()
	movement := Movement{
		ID:         uuid.New(),
		ProductID:  input.ProductID,
		Type:       input.Type,
		Quantity:   input.Quantity,
		ChallanID:  input.ChallanID,
		Reason:     input.Reason,
		ActorID:    input.ActorID,
		OccurredAt: now,
	}

	item.CurrentStock = newStock
	item.UpdatedAt = now
	if err := tx.UpsertItem(ctx, item); err != nil {
		return Movement{}, Item{}, shared.Wrap(shared.ErrLedgerWrite, "upsert stock item", err)
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return Movement{}, Item{}, shared.Wrap(shared.ErrLedgerWrite, "append movement", err)
	}
	return movement, item, nil
}

// GetItem returns the stock record for one product.
func (l *Ledger) GetItem(ctx context.Context, productID string) (Item, error) {
	if productID == "" {
		return Item{}, shared.E(shared.ErrValidation, "product id required")
	}
	return l.repo.GetItem(ctx, productID)
}

// ListItems returns stock records with totals for pagination.
func (l *Ledger) ListItems(ctx context.Context, limit, offset int) ([]Item, int, error) {
	return l.repo.ListItems(ctx, limit, offset)
}

// ListMovements returns ledger history for a product or challan.
func (l *Ledger) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == "" && filter.ChallanID == nil {
		return nil, shared.E(shared.ErrValidation, "product id or challan id required")
	}
	return l.repo.ListMovements(ctx, filter)
}

// ReplayProduct recomputes a product's stock level from its full movement log.
func (l *Ledger) ReplayProduct(ctx context.Context, productID string) (float64, error) {
	if productID == "" {
		return 0, shared.E(shared.ErrValidation, "product id required")
	}
	movements, err := l.repo.ListMovements(ctx, MovementFilter{ProductID: productID})
	if err != nil {
		return 0, err
	}
	return Replay(movements), nil
}

// VerifyLedger replays every product and reports items whose stored stock
// disagrees with the movement log. Used by the integrity job. Products are
// independent, so replays run concurrently.
func (l *Ledger) VerifyLedger(ctx context.Context) ([]Mismatch, error) {
	products, err := l.repo.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		mismatches []Mismatch
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, productID := range products {
		productID := productID
		g.Go(func() error {
			item, err := l.repo.GetItem(ctx, productID)
			if err != nil {
				return err
			}
			replayed, err := l.ReplayProduct(ctx, productID)
			if err != nil {
				return err
			}
			if item.CurrentStock != replayed {
				mu.Lock()
				mismatches = append(mismatches, Mismatch{ProductID: productID, Stored: item.CurrentStock, Replayed: replayed})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].ProductID < mismatches[j].ProductID })
	return mismatches, nil
}

func validateInput(input MovementInput) error {
	if input.ProductID == "" {
		return shared.E(shared.ErrValidation, "product id required")
	}
	if !input.Type.IsValid() {
		return shared.Ef(shared.ErrValidation, "unknown movement type %q", string(input.Type))
	}
	switch input.Type {
	case MovementAdjustment:
		if input.Quantity < 0 {
			return shared.E(shared.ErrValidation, "adjustment quantity must be >= 0")
		}
	default:
		if input.Quantity <= 0 {
			return shared.E(shared.ErrValidation, "movement quantity must be > 0")
		}
	}
	return nil
}
