// Package conversion turns a closed sales lead into a delivery challan. It
// owns the exactly-once closure of the originating lead; everything else about
// leads lives outside this service.
package conversion

import (
	"time"

	"github.com/meridian-crm/meridian-crm/internal/challan"
)

// LeadStatus enumerates the slice of the lead lifecycle this service reads.
type LeadStatus string

const (
	LeadOpen   LeadStatus = "OPEN"
	LeadClosed LeadStatus = "CLOSED"
)

// Lead is the minimal projection of the external lead store.
type Lead struct {
	Ref       string     `json:"ref"`
	Status    LeadStatus `json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ConvertInput is a request to convert a lead into a delivery challan.
type ConvertInput struct {
	OrderRef   string
	EmployeeID int64
	Lines      []challan.LineInput
	ActorID    int64
}

// ConvertResult reports the challan and whether this call closed the lead.
// Repeat conversions return the same challan with LeadClosed false.
type ConvertResult struct {
	Challan    challan.DeliveryChallan `json:"challan"`
	LeadClosed bool                    `json:"lead_closed"`
	OrderTotal string                  `json:"order_total"`
}
