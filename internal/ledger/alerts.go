package ledger

import (
	"fmt"
	"time"

	"stock-ledger/internal/models"
)

// AlertPlan is the outcome of a reconciliation
type AlertPlan struct {
	Create  []models.StockAlert
	Update  []models.StockAlert
	Resolve []models.StockAlert
}

func (p AlertPlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Resolve) == 0
}

type desiredAlert struct {
	Type      models.AlertType
	Priority  models.AlertPriority
	Threshold int64
}

// desiredAlerts lists the alert types the item state calls for, in a fixed order.
func desiredAlerts(item models.InventoryItem) []desiredAlert {
	if item.Discontinued {
		return nil
	}

	cs, rp := item.CurrentStock, item.ReorderPoint
	var out []desiredAlert

	if cs == 0 {
		out = append(out, desiredAlert{models.AlertOutOfStock, models.PriorityCritical, 0})
	}
	if cs > 0 && cs <= rp {
		priority := models.PriorityMedium
		// cs <= rp/2 without integer truncation
		if 2*cs <= rp {
			priority = models.PriorityHigh
		}
		out = append(out, desiredAlert{models.AlertLowStock, priority, rp})
	}
	if cs <= rp {
		out = append(out, desiredAlert{models.AlertReorder, models.PriorityMedium, rp})
	}
	if item.MaxStockLevel > 0 && cs > item.MaxStockLevel {
		out = append(out, desiredAlert{models.AlertOverstock, models.PriorityLow, item.MaxStockLevel})
	}
	return out
}

// AlertEngine reconciles alerts against item state. Apart from the id and
// clock sources it holds no state.
type AlertEngine struct {
	newID func() string
	now   func() time.Time
}

func NewAlertEngine(newID func() string, now func() time.Time) *AlertEngine {
	return &AlertEngine{newID: newID, now: now}
}

// Reconcile compares the desired alert set for item with its open alerts
// (active or acknowledged). Alerts in any other status are ignored.
//
// An open alert covers its type until the condition clears, at which point
// it is resolved. Resolved alerts are never reopened; if the condition holds
// again a new alert is created.
func (e *AlertEngine) Reconcile(item models.InventoryItem, open []models.StockAlert) AlertPlan {
	var plan AlertPlan
	now := e.now()

	covering := make(map[models.AlertType]models.StockAlert)
	for _, a := range open {
		if a.ItemID != item.ID || !isOpen(a.Status) {
			continue
		}
		if prev, dup := covering[a.Type]; dup {
			// keep the oldest, retire duplicates left behind by older writers
			if a.CreatedAt.Before(prev.CreatedAt) {
				a, prev = prev, a
			}
			plan.Resolve = append(plan.Resolve, resolved(a, now))
			covering[a.Type] = prev
			continue
		}
		covering[a.Type] = a
	}

	wanted := make(map[models.AlertType]bool)
	for _, d := range desiredAlerts(item) {
		wanted[d.Type] = true

		existing, ok := covering[d.Type]
		if !ok {
			plan.Create = append(plan.Create, models.StockAlert{
				ID:           e.newID(),
				ItemID:       item.ID,
				Type:         d.Type,
				CurrentStock: item.CurrentStock,
				Threshold:    d.Threshold,
				Priority:     d.Priority,
				Status:       models.AlertActive,
				CreatedAt:    now,
			})
			continue
		}

		if existing.Priority != d.Priority || existing.Threshold != d.Threshold ||
			existing.CurrentStock != item.CurrentStock {
			existing.Priority = d.Priority
			existing.Threshold = d.Threshold
			existing.CurrentStock = item.CurrentStock
			plan.Update = append(plan.Update, existing)
		}
	}

	for _, t := range []models.AlertType{
		models.AlertOutOfStock, models.AlertLowStock, models.AlertReorder, models.AlertOverstock,
	} {
		if a, ok := covering[t]; ok && !wanted[t] {
			a.CurrentStock = item.CurrentStock
			plan.Resolve = append(plan.Resolve, resolved(a, now))
		}
	}

	return plan
}

// TransitionAlert applies an explicit user transition
func TransitionAlert(a models.StockAlert, to models.AlertStatus, now time.Time) (models.StockAlert, error) {
	switch {
	case to == models.AlertAcknowledged && a.Status == models.AlertActive:
		a.Status = models.AlertAcknowledged
		a.AcknowledgedAt = &now
		return a, nil
	case to == models.AlertResolved && isOpen(a.Status):
		return resolved(a, now), nil
	default:
		return a, fmt.Errorf("%w: %s -> %s", ErrInvalidAlertTransition, a.Status, to)
	}
}

func isOpen(s models.AlertStatus) bool {
	return s == models.AlertActive || s == models.AlertAcknowledged
}

func resolved(a models.StockAlert, now time.Time) models.StockAlert {
	a.Status = models.AlertResolved
	a.ResolvedAt = &now
	return a
}
