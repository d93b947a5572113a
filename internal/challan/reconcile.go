package challan

import "math"

// reconcileResult aggregates per-line reconciliation into order totals.
type reconcileResult struct {
	Available   float64
	Deliverable float64
}

// reconcileLines records, for each line, the stock currently on hand as its
// available quantity and min(line strength, available) as its deliverable
// quantity, then caps the total at the order's requested quantity by consuming
// the cap across lines in line order. The deliverable total never exceeds
// either the available total or the requested quantity. Lines are mutated in
// place; stock is only read, never reserved.
func reconcileLines(lines []ProductLine, requested float64, onHand func(productID string) (float64, error)) (reconcileResult, error) {
	var result reconcileResult
	remaining := requested
	for i := range lines {
		available, err := onHand(lines[i].ProductID)
		if err != nil {
			return reconcileResult{}, err
		}
		if available < 0 {
			available = 0
		}
		deliverable := math.Min(lines[i].Strength, available)
		if requested > 0 {
			deliverable = math.Min(deliverable, remaining)
			remaining -= deliverable
		}
		lines[i].AvailableQuantity = available
		lines[i].DeliverableQuantity = deliverable
		result.Available += available
		result.Deliverable += deliverable
	}
	return result, nil
}
