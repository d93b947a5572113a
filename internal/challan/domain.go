// Package challan implements the delivery challan pipeline: the approval
// state machine from raise to completion, stock reconciliation, and the
// ledger-consistent commit of deliverable quantities.
package challan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates delivery challan states.
type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusPOSubmitted       Status = "PO_SUBMITTED"
	StatusSentToManager     Status = "SENT_TO_MANAGER"
	StatusPendingAllocation Status = "PENDING_ALLOCATION"
	StatusAllocating        Status = "ALLOCATING"
	StatusCompleted         Status = "COMPLETED"
	StatusHold              Status = "HOLD"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusPOSubmitted, StatusSentToManager,
		StatusPendingAllocation, StatusAllocating, StatusCompleted, StatusHold:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// CanSubmitPO checks if a purchase order document can be attached.
func (s Status) CanSubmitPO() bool {
	return s == StatusCreated
}

// CanSubmitToManager checks if the challan can be sent for manager review.
func (s Status) CanSubmitToManager() bool {
	return s == StatusCreated || s == StatusPOSubmitted
}

// CanForward checks if a manager can forward to allocation.
func (s Status) CanForward() bool {
	return s == StatusSentToManager
}

// CanAllocate checks if the warehouse can start allocation.
func (s Status) CanAllocate() bool {
	return s == StatusPendingAllocation
}

// CanComplete checks if delivery can be committed.
func (s Status) CanComplete() bool {
	return s == StatusAllocating
}

// CanHold checks if the challan can be parked. Held and completed challans
// cannot be held again.
func (s Status) CanHold() bool {
	return !s.IsTerminal() && s != StatusHold
}

// CanResume checks if the challan can leave hold.
func (s Status) CanResume() bool {
	return s == StatusHold
}

// ProductLine is one product row on a challan. Strength doubles as the
// requested unit count for that product.
type ProductLine struct {
	ID                  uuid.UUID       `json:"id"`
	ChallanID           uuid.UUID       `json:"challan_id"`
	ProductID           string          `json:"product_id"`
	ClassOrLevel        string          `json:"class_or_level"`
	Category            string          `json:"category"`
	Quantity            float64         `json:"quantity"`
	Strength            float64         `json:"strength"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SpecTag             string          `json:"spec_tag"`
	AvailableQuantity   float64         `json:"available_quantity"`
	DeliverableQuantity float64         `json:"deliverable_quantity"`
	LineOrder           int             `json:"line_order"`
}

// Total is always derived from unit price and strength, never stored, so it
// can never go stale against either factor.
func (l ProductLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromFloat(l.Strength))
}

// ShipmentInfo carries carrier details captured at completion.
type ShipmentInfo struct {
	Carrier     string `json:"carrier"`
	TrackingRef string `json:"tracking_ref"`
}

// DeliveryChallan is one delivery order per (orderRef, owner). Terminal rows
// are retained for audit, never deleted.
type DeliveryChallan struct {
	ID                  uuid.UUID     `json:"id"`
	OrderRef            string        `json:"order_ref"`
	OwnerEmployeeID     int64         `json:"owner_employee_id"`
	Status              Status        `json:"status"`
	Version             int64         `json:"version"`
	Lines               []ProductLine `json:"lines"`
	RequestedQuantity   float64       `json:"requested_quantity"`
	AvailableQuantity   float64       `json:"available_quantity"`
	DeliverableQuantity float64       `json:"deliverable_quantity"`
	ShortfallQuantity   float64       `json:"shortfall_quantity"`
	ShortClosed         bool          `json:"short_closed"`
	PODocumentRef       string        `json:"po_document_ref,omitempty"`
	Carrier             string        `json:"carrier,omitempty"`
	TrackingRef         string        `json:"tracking_ref,omitempty"`
	Remarks             string        `json:"remarks,omitempty"`
	HoldReason          string        `json:"hold_reason,omitempty"`
	HoldReturnStatus    *Status       `json:"hold_return_status,omitempty"`
	Superseded          bool          `json:"superseded"`
	AllocatedAt         *time.Time    `json:"allocated_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

// LineInput is a product line as submitted at raise time.
type LineInput struct {
	ProductID    string          `json:"product_id" validate:"required,max=64"`
	ClassOrLevel string          `json:"class_or_level" validate:"max=64"`
	Category     string          `json:"category" validate:"max=64"`
	Quantity     float64         `json:"quantity" validate:"gte=0"`
	Strength     float64         `json:"strength" validate:"gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	SpecTag      string          `json:"spec_tag" validate:"max=64"`
}

// RaiseInput creates or fetches the challan for (orderRef, owner).
type RaiseInput struct {
	OrderRef        string
	OwnerEmployeeID int64
	Lines           []LineInput
	ActorID         int64
}

// ListFilter narrows challan listings.
type ListFilter struct {
	Status          Status
	OwnerEmployeeID int64
	OrderRef        string
	Limit           int
	Offset          int
}
