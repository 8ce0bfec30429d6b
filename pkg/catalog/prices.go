package catalog

import "fmt"

// PriceTable maps billing provider price identifiers to plans.
type PriceTable struct {
	byPrice  map[string]Plan
	byPlan   map[string]string
	fallback Plan
}

// NewPriceTable builds a table from a plan id to price id mapping. Prices
// that are not in the table resolve to the fallback plan.
func NewPriceTable(planPrices map[string]string, fallbackPlanID string) (*PriceTable, error) {
	fallback, ok := PlanByID(fallbackPlanID)
	if !ok || !fallback.IsPaid() {
		return nil, fmt.Errorf("fallback plan %q must be a paid plan", fallbackPlanID)
	}

	t := &PriceTable{
		byPrice:  make(map[string]Plan, len(planPrices)),
		byPlan:   make(map[string]string, len(planPrices)),
		fallback: fallback,
	}
	for planID, priceID := range planPrices {
		if priceID == "" {
			continue
		}
		plan, ok := PlanByID(planID)
		if !ok {
			return nil, fmt.Errorf("unknown plan %q for price %q", planID, priceID)
		}
		if existing, dup := t.byPrice[priceID]; dup {
			return nil, fmt.Errorf("price %q mapped to both %q and %q", priceID, existing.ID, planID)
		}
		t.byPrice[priceID] = plan
		t.byPlan[planID] = priceID
	}
	return t, nil
}

// PlanForPrice resolves a price id. The bool is false when the fallback plan
// was used.
func (t *PriceTable) PlanForPrice(priceID string) (Plan, bool) {
	if p, ok := t.byPrice[priceID]; ok {
		return p, true
	}
	return t.fallback, false
}

// PriceForPlan returns the configured price id of a plan.
func (t *PriceTable) PriceForPlan(planID string) (string, bool) {
	id, ok := t.byPlan[planID]
	return id, ok
}

func (t *PriceTable) Fallback() Plan {
	return t.fallback
}
