package conversion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/challan"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

type memLeads struct {
	leads      map[string]Lead
	closeCalls int
}

func newMemLeads(refs ...string) *memLeads {
	m := &memLeads{leads: make(map[string]Lead)}
	for _, ref := range refs {
		m.leads[ref] = Lead{Ref: ref, Status: LeadOpen, CreatedAt: time.Now().UTC()}
	}
	return m
}

func (m *memLeads) Get(_ context.Context, ref string) (Lead, error) {
	lead, ok := m.leads[ref]
	if !ok {
		return Lead{}, shared.Ef(shared.ErrNotFound, "lead %s not found", ref)
	}
	return lead, nil
}

func (m *memLeads) MarkClosed(_ context.Context, ref string) (bool, error) {
	lead, ok := m.leads[ref]
	if !ok || lead.Status == LeadClosed {
		return false, nil
	}
	now := time.Now().UTC()
	lead.Status = LeadClosed
	lead.ClosedAt = &now
	m.leads[ref] = lead
	m.closeCalls++
	return true, nil
}

type memRaiser struct {
	byRef map[string]challan.DeliveryChallan
}

func newMemRaiser() *memRaiser {
	return &memRaiser{byRef: make(map[string]challan.DeliveryChallan)}
}

func (m *memRaiser) Raise(_ context.Context, input challan.RaiseInput) (challan.DeliveryChallan, error) {
	if existing, ok := m.byRef[input.OrderRef]; ok {
		return existing, nil
	}
	ch := challan.DeliveryChallan{
		ID:              uuid.New(),
		OrderRef:        input.OrderRef,
		OwnerEmployeeID: input.OwnerEmployeeID,
		Status:          challan.StatusCreated,
		Version:         1,
	}
	for _, line := range input.Lines {
		ch.Lines = append(ch.Lines, challan.ProductLine{
			ProductID: line.ProductID,
			Strength:  line.Strength,
			UnitPrice: line.UnitPrice,
		})
	}
	m.byRef[input.OrderRef] = ch
	return ch, nil
}

func TestConvertClosedLead(t *testing.T) {
	leads := newMemLeads("LEAD-1")
	svc := NewService(leads, newMemRaiser(), nil)

	result, err := svc.ConvertClosedLead(context.Background(), ConvertInput{
		OrderRef:   "LEAD-1",
		EmployeeID: 7,
		Lines: []challan.LineInput{
			{ProductID: "ABC", Strength: 50, UnitPrice: decimal.NewFromInt(100)},
		},
		ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, challan.StatusCreated, result.Challan.Status)
	require.Equal(t, int64(7), result.Challan.OwnerEmployeeID)
	require.Equal(t, "5000", result.Challan.Lines[0].Total().String())
	require.Equal(t, "5000", result.OrderTotal)
	require.True(t, result.LeadClosed)
	require.Equal(t, LeadClosed, leads.leads["LEAD-1"].Status)
}

func TestConvertIsIdempotent(t *testing.T) {
	leads := newMemLeads("LEAD-2")
	svc := NewService(leads, newMemRaiser(), nil)
	input := ConvertInput{
		OrderRef:   "LEAD-2",
		EmployeeID: 7,
		Lines: []challan.LineInput{
			{ProductID: "ABC", Strength: 10, UnitPrice: decimal.NewFromInt(25)},
		},
		ActorID: 7,
	}

	first, err := svc.ConvertClosedLead(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.ConvertClosedLead(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, first.Challan.ID, second.Challan.ID)
	require.True(t, first.LeadClosed)
	require.False(t, second.LeadClosed)
	require.Equal(t, 1, leads.closeCalls)
}

func TestConvertValidation(t *testing.T) {
	svc := NewService(newMemLeads("LEAD-3"), newMemRaiser(), nil)
	ctx := context.Background()
	valid := []challan.LineInput{{ProductID: "ABC", Strength: 1, UnitPrice: decimal.NewFromInt(1)}}

	cases := []struct {
		name  string
		input ConvertInput
	}{
		{"missing order ref", ConvertInput{EmployeeID: 7, Lines: valid}},
		{"missing employee", ConvertInput{OrderRef: "LEAD-3", Lines: valid}},
		{"no lines", ConvertInput{OrderRef: "LEAD-3", EmployeeID: 7}},
		{"empty product", ConvertInput{OrderRef: "LEAD-3", EmployeeID: 7, Lines: []challan.LineInput{{Strength: 1}}}},
		{"zero strength", ConvertInput{OrderRef: "LEAD-3", EmployeeID: 7, Lines: []challan.LineInput{{ProductID: "ABC"}}}},
		{"negative price", ConvertInput{OrderRef: "LEAD-3", EmployeeID: 7, Lines: []challan.LineInput{{ProductID: "ABC", Strength: 1, UnitPrice: decimal.NewFromInt(-5)}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ConvertClosedLead(ctx, tc.input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestConvertUnknownLead(t *testing.T) {
	svc := NewService(newMemLeads(), newMemRaiser(), nil)

	_, err := svc.ConvertClosedLead(context.Background(), ConvertInput{
		OrderRef:   "LEAD-MISSING",
		EmployeeID: 7,
		Lines:      []challan.LineInput{{ProductID: "ABC", Strength: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
