package challan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Store abstracts challan persistence.
type Store interface {
	Raise(ctx context.Context, ch DeliveryChallan) (DeliveryChallan, bool, error)
	Get(ctx context.Context, id uuid.UUID) (DeliveryChallan, error)
	List(ctx context.Context, filter ListFilter) ([]DeliveryChallan, int, error)
	ListStaleAllocating(ctx context.Context, cutoff time.Time) ([]DeliveryChallan, error)
	UpdateTransition(ctx context.Context, ch *DeliveryChallan) error
	CommitDelivery(ctx context.Context, fn func(context.Context, CommitTx) error) error
}

// CommitTx is the unit of work for completion: ledger writes and the terminal
// status update share one transaction, so partial line application cannot
// survive a failure.
type CommitTx interface {
	StockOnHand(ctx context.Context, productID string) (float64, error)
	PostOut(ctx context.Context, productID string, quantity float64, challanID uuid.UUID, actorID int64) error
	UpdateTransition(ctx context.Context, ch *DeliveryChallan) error
}

// LedgerPort reads stock levels for reconciliation without reserving them.
type LedgerPort interface {
	CurrentStock(ctx context.Context, productID string) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort abstracts the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives the challan state machine. Every transition is guarded by
// the challan's version column; concurrent writers lose with a conflict and
// must re-read.
type Service struct {
	store         Store
	ledger        LedgerPort
	audit         AuditPort
	approvals     ApprovalPort
	allocationTTL time.Duration
	now           func() time.Time
}

// ServiceConfig groups optional service settings.
type ServiceConfig struct {
	// AllocationTTL bounds the window between allocate and complete. Zero
	// disables staleness checks.
	AllocationTTL time.Duration
}

// NewService builds a challan Service.
func NewService(store Store, ledger LedgerPort, audit AuditPort, approvals ApprovalPort, cfg ServiceConfig) *Service {
	return &Service{
		store:         store,
		ledger:        ledger,
		audit:         audit,
		approvals:     approvals,
		allocationTTL: cfg.AllocationTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Raise creates the challan for (orderRef, owner) or returns the existing one
// unchanged. The uniqueness constraint, not a lookup, decides the winner when
// two raises race.
func (s *Service) Raise(ctx context.Context, input RaiseInput) (DeliveryChallan, error) {
	if err := validateRaise(input); err != nil {
		return DeliveryChallan{}, err
	}

	now := s.now()
	ch := DeliveryChallan{
		ID:              uuid.New(),
		OrderRef:        input.OrderRef,
		OwnerEmployeeID: input.OwnerEmployeeID,
		Status:          StatusCreated,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, line := range input.Lines {
		ch.Lines = append(ch.Lines, ProductLine{
			ID:           uuid.New(),
			ChallanID:    ch.ID,
			ProductID:    line.ProductID,
			ClassOrLevel: line.ClassOrLevel,
			Category:     line.Category,
			Quantity:     line.Quantity,
			Strength:     line.Strength,
			UnitPrice:    line.UnitPrice,
			SpecTag:      line.SpecTag,
			LineOrder:    i + 1,
		})
	}

	stored, created, err := s.store.Raise(ctx, ch)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if created {
		s.recordAudit(ctx, input.ActorID, "challan:raise", stored.ID, map[string]any{
			"order_ref": stored.OrderRef,
			"owner":     stored.OwnerEmployeeID,
			"lines":     len(stored.Lines),
		})
	}
	return stored, nil
}

// SubmitPO attaches the purchase order document reference.
func (s *Service) SubmitPO(ctx context.Context, id uuid.UUID, documentRef string, actorID int64) (DeliveryChallan, error) {
	if documentRef == "" {
		return DeliveryChallan{}, shared.E(shared.ErrValidation, "po document ref required")
	}
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanSubmitPO() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot submit po from %s", ch.Status)
	}

	ch.Status = StatusPOSubmitted
	ch.PODocumentRef = documentRef
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordAudit(ctx, actorID, "challan:submit_po", ch.ID, map[string]any{"document_ref": documentRef})
	return ch, nil
}

// SubmitToManager sets the requested quantity and sends the challan to review.
func (s *Service) SubmitToManager(ctx context.Context, id uuid.UUID, requestedQuantity float64, remarks string, actorID int64) (DeliveryChallan, error) {
	if requestedQuantity <= 0 {
		return DeliveryChallan{}, shared.E(shared.ErrValidation, "requested quantity must be > 0")
	}
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanSubmitToManager() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot submit to manager from %s", ch.Status)
	}

	ch.Status = StatusSentToManager
	ch.RequestedQuantity = requestedQuantity
	ch.Remarks = remarks
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordApproval(ctx, ch.ID, actorID, shared.ApprovalSubmit, remarks)
	s.recordAudit(ctx, actorID, "challan:submit_to_manager", ch.ID, map[string]any{"requested_quantity": requestedQuantity})
	return ch, nil
}

// ForwardToAllocation is the manager approval moving the challan to the
// warehouse queue.
func (s *Service) ForwardToAllocation(ctx context.Context, id uuid.UUID, actorID int64) (DeliveryChallan, error) {
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanForward() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot forward from %s", ch.Status)
	}

	ch.Status = StatusPendingAllocation
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordApproval(ctx, ch.ID, actorID, shared.ApprovalForward, "")
	s.recordAudit(ctx, actorID, "challan:forward", ch.ID, nil)
	return ch, nil
}

// Allocate reconciles each line against current stock and moves the challan
// to Allocating. Stock is only read here; nothing is reserved, so the commit
// re-validates on completion.
func (s *Service) Allocate(ctx context.Context, id uuid.UUID, actorID int64) (DeliveryChallan, error) {
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanAllocate() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot allocate from %s", ch.Status)
	}

	result, err := reconcileLines(ch.Lines, ch.RequestedQuantity, func(productID string) (float64, error) {
		return s.ledger.CurrentStock(ctx, productID)
	})
	if err != nil {
		return DeliveryChallan{}, err
	}

	now := s.now()
	ch.Status = StatusAllocating
	ch.AvailableQuantity = result.Available
	ch.DeliverableQuantity = result.Deliverable
	ch.AllocatedAt = &now
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordApproval(ctx, ch.ID, actorID, shared.ApprovalAllocate, "")
	s.recordAudit(ctx, actorID, "challan:allocate", ch.ID, map[string]any{
		"available_quantity":   result.Available,
		"deliverable_quantity": result.Deliverable,
	})
	return ch, nil
}

// Complete commits one Out movement per deliverable line and the terminal
// status update in a single transaction. Stock is re-read under lock and the
// deliverable quantity is clamped down rather than letting stock go negative,
// so of two orders racing over the same scarce product the second ships less.
// Shipped quantities also never exceed the order's requested quantity.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, shipment ShipmentInfo, actorID int64) (DeliveryChallan, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !existing.Status.CanComplete() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot complete from %s", existing.Status)
	}
	if s.allocationTTL > 0 {
		if existing.AllocatedAt == nil || s.now().Sub(*existing.AllocatedAt) > s.allocationTTL {
			return DeliveryChallan{}, shared.E(shared.ErrInvalidTransition, "allocation is stale, re-allocate before completing")
		}
	}

	var completed DeliveryChallan
	err = s.store.CommitDelivery(ctx, func(ctx context.Context, tx CommitTx) error {
		ch := existing
		ch.Lines = make([]ProductLine, len(existing.Lines))
		copy(ch.Lines, existing.Lines)

		var deliverable float64
		remaining := ch.RequestedQuantity
		for i := range ch.Lines {
			line := &ch.Lines[i]
			if line.DeliverableQuantity <= 0 {
				continue
			}
			onHand, err := tx.StockOnHand(ctx, line.ProductID)
			if err != nil {
				return err
			}
			quantity := math.Min(line.DeliverableQuantity, math.Max(onHand, 0))
			if ch.RequestedQuantity > 0 {
				quantity = math.Min(quantity, remaining)
			}
			line.DeliverableQuantity = quantity
			if quantity <= 0 {
				continue
			}
			if err := tx.PostOut(ctx, line.ProductID, quantity, ch.ID, actorID); err != nil {
				if shared.KindOf(err) != nil {
					return err
				}
				return shared.Wrap(shared.ErrLedgerWrite, fmt.Sprintf("post out for product %s", line.ProductID), err)
			}
			remaining -= quantity
			deliverable += quantity
		}

		now := s.now()
		ch.DeliverableQuantity = deliverable
		if ch.RequestedQuantity > deliverable {
			ch.ShortfallQuantity = ch.RequestedQuantity - deliverable
			ch.ShortClosed = true
		}
		ch.Status = StatusCompleted
		ch.Carrier = shipment.Carrier
		ch.TrackingRef = shipment.TrackingRef
		ch.CompletedAt = &now
		if err := tx.UpdateTransition(ctx, &ch); err != nil {
			return err
		}
		completed = ch
		return nil
	})
	if err != nil {
		return DeliveryChallan{}, err
	}

	s.recordApproval(ctx, completed.ID, actorID, shared.ApprovalComplete, "")
	s.recordAudit(ctx, actorID, "challan:complete", completed.ID, map[string]any{
		"deliverable_quantity": completed.DeliverableQuantity,
		"shortfall_quantity":   completed.ShortfallQuantity,
		"carrier":              shipment.Carrier,
	})
	return completed, nil
}

// Hold parks the challan and remembers where it was.
func (s *Service) Hold(ctx context.Context, id uuid.UUID, reason string, actorID int64) (DeliveryChallan, error) {
	if reason == "" {
		return DeliveryChallan{}, shared.E(shared.ErrValidation, "hold reason required")
	}
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanHold() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot hold from %s", ch.Status)
	}

	returnTo := ch.Status
	ch.HoldReturnStatus = &returnTo
	ch.HoldReason = reason
	ch.Status = StatusHold
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordAudit(ctx, actorID, "challan:hold", ch.ID, map[string]any{"reason": reason, "return_to": string(returnTo)})
	return ch, nil
}

// Resume restores the pre-hold state exactly.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, actorID int64) (DeliveryChallan, error) {
	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	if !ch.Status.CanResume() {
		return DeliveryChallan{}, shared.Ef(shared.ErrInvalidTransition, "cannot resume from %s", ch.Status)
	}
	if ch.HoldReturnStatus == nil || !ch.HoldReturnStatus.IsValid() {
		return DeliveryChallan{}, shared.E(shared.ErrInvalidTransition, "hold return state missing")
	}

	ch.Status = *ch.HoldReturnStatus
	ch.HoldReturnStatus = nil
	ch.HoldReason = ""
	if err := s.store.UpdateTransition(ctx, &ch); err != nil {
		return DeliveryChallan{}, err
	}
	s.recordAudit(ctx, actorID, "challan:resume", ch.ID, map[string]any{"restored_to": string(ch.Status)})
	return ch, nil
}

// Get returns one challan.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (DeliveryChallan, error) {
	return s.store.Get(ctx, id)
}

// List returns challans with a total for pagination.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]DeliveryChallan, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Ef(shared.ErrValidation, "unknown status %q", string(filter.Status))
	}
	return s.store.List(ctx, filter)
}

// SweepStaleAllocations reverts Allocating challans older than the allocation
// window back to PendingAllocation with quantities cleared. Challans that
// moved on between the read and the guarded update are skipped.
func (s *Service) SweepStaleAllocations(ctx context.Context) (int, error) {
	if s.allocationTTL <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.allocationTTL)
	stale, err := s.store.ListStaleAllocating(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, ch := range stale {
		ch.Status = StatusPendingAllocation
		ch.AvailableQuantity = 0
		ch.DeliverableQuantity = 0
		ch.AllocatedAt = nil
		for i := range ch.Lines {
			ch.Lines[i].AvailableQuantity = 0
			ch.Lines[i].DeliverableQuantity = 0
		}
		if err := s.store.UpdateTransition(ctx, &ch); err != nil {
			if shared.KindOf(err) == shared.ErrConcurrencyConflict || shared.KindOf(err) == shared.ErrNotFound {
				continue
			}
			return reverted, err
		}
		reverted++
		s.recordAudit(ctx, 0, "challan:stale_allocation_revert", ch.ID, nil)
	}
	return reverted, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "delivery_challan",
		EntityID: id.String(),
		Meta:     meta,
	})
}

func (s *Service) recordApproval(ctx context.Context, id uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "challan",
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func validateRaise(input RaiseInput) error {
	if input.OrderRef == "" {
		return shared.E(shared.ErrValidation, "order ref required")
	}
	if input.OwnerEmployeeID == 0 {
		return shared.E(shared.ErrValidation, "owner employee required")
	}
	if len(input.Lines) == 0 {
		return shared.E(shared.ErrValidation, "at least one product line required")
	}
	for i, line := range input.Lines {
		if line.ProductID == "" {
			return shared.Ef(shared.ErrValidation, "line %d: product id required", i+1)
		}
		if line.Strength <= 0 {
			return shared.Ef(shared.ErrValidation, "line %d: strength must be > 0", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return shared.Ef(shared.ErrValidation, "line %d: unit price must be >= 0", i+1)
		}
	}
	return nil
}
