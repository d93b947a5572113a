package conversion

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian-crm/internal/challan"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// LeadStore reads and closes leads.
type LeadStore interface {
	Get(ctx context.Context, ref string) (Lead, error)
	// MarkClosed flips the lead to Closed and reports whether this call did
	// the flip. A second call returns false without touching the row.
	MarkClosed(ctx context.Context, ref string) (bool, error)
}

// ChallanRaiser is the slice of the challan service the orchestrator needs.
type ChallanRaiser interface {
	Raise(ctx context.Context, input challan.RaiseInput) (challan.DeliveryChallan, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates lead conversion. The converting employee becomes the
// challan owner; ownership is never reassigned here.
type Service struct {
	leads    LeadStore
	challans ChallanRaiser
	audit    AuditPort
}

// NewService builds a conversion Service.
func NewService(leads LeadStore, challans ChallanRaiser, audit AuditPort) *Service {
	return &Service{leads: leads, challans: challans, audit: audit}
}

// ConvertClosedLead raises the challan for the lead and closes the lead
// exactly once. Safe to retry: raise is idempotent and the closure is a
// conditional update, so replays converge on the first call's outcome.
func (s *Service) ConvertClosedLead(ctx context.Context, input ConvertInput) (ConvertResult, error) {
	if input.OrderRef == "" {
		return ConvertResult{}, shared.E(shared.ErrValidation, "order ref required")
	}
	if input.EmployeeID == 0 {
		return ConvertResult{}, shared.E(shared.ErrValidation, "employee id required")
	}
	if len(input.Lines) == 0 {
		return ConvertResult{}, shared.E(shared.ErrValidation, "at least one product line required")
	}

	total := decimal.Zero
	for i, line := range input.Lines {
		if line.ProductID == "" {
			return ConvertResult{}, shared.Ef(shared.ErrValidation, "line %d: product id required", i+1)
		}
		if line.Strength <= 0 {
			return ConvertResult{}, shared.Ef(shared.ErrValidation, "line %d: strength must be > 0", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return ConvertResult{}, shared.Ef(shared.ErrValidation, "line %d: unit price must be >= 0", i+1)
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromFloat(line.Strength)))
	}

	if _, err := s.leads.Get(ctx, input.OrderRef); err != nil {
		return ConvertResult{}, err
	}

	ch, err := s.challans.Raise(ctx, challan.RaiseInput{
		OrderRef:        input.OrderRef,
		OwnerEmployeeID: input.EmployeeID,
		Lines:           input.Lines,
		ActorID:         input.ActorID,
	})
	if err != nil {
		return ConvertResult{}, err
	}

	closed, err := s.leads.MarkClosed(ctx, input.OrderRef)
	if err != nil {
		return ConvertResult{}, err
	}
	if closed && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "lead:close",
			Entity:   "lead",
			EntityID: input.OrderRef,
			Meta:     map[string]any{"challan_id": ch.ID.String()},
		})
	}

	return ConvertResult{Challan: ch, LeadClosed: closed, OrderTotal: total.String()}, nil
}

// GetLead returns the lead projection for display.
func (s *Service) GetLead(ctx context.Context, ref string) (Lead, error) {
	if ref == "" {
		return Lead{}, shared.E(shared.ErrValidation, "lead ref required")
	}
	return s.leads.Get(ctx, ref)
}
