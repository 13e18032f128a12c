// Package ledger implements the inventory stock ledger: item state, stock
// movements, alert reconciliation, reorder advice and reporting. It depends
// only on the Store port and never performs network I/O itself.
package ledger

import (
	"context"
	"fmt"

	"stock-ledger/internal/models"
)

// Direction constrains the sign of a delta.
type Direction int

const (
	AnyDirection Direction = 0
	Inbound      Direction = 1
	Outbound     Direction = -1
)

// DeltaOptions controls ApplyDelta validation
type DeltaOptions struct {
	// Direction other than AnyDirection requires a non-zero delta with that sign.
	Direction Direction
	// RespectReservations bounds the result by reserved stock instead of zero.
	RespectReservations bool
	AllowNegative       bool
}

// ApplyDelta computes the next state of item after changing its current
// stock by delta. The input is not modified.
func ApplyDelta(item models.InventoryItem, delta int64, opts DeltaOptions) (models.InventoryItem, error) {
	if opts.Direction != AnyDirection && delta*int64(opts.Direction) <= 0 {
		return item, fmt.Errorf("%w: got %d", ErrInvalidQuantity, abs(delta))
	}

	next := item
	next.CurrentStock = item.CurrentStock + delta

	if !opts.AllowNegative {
		floor := int64(0)
		if opts.RespectReservations {
			floor = item.ReservedStock
		}
		if next.CurrentStock < floor {
			return item, fmt.Errorf("%w: available=%d, requested=%d",
				ErrInsufficientStock, available(item, opts.RespectReservations), abs(delta))
		}
	}

	RecomputeStatus(&next)
	return next, nil
}

// RecomputeStatus is the only place that assigns Status and AvailableStock.
func RecomputeStatus(item *models.InventoryItem) {
	item.AvailableStock = item.CurrentStock - item.ReservedStock

	switch {
	case item.Discontinued:
		item.Status = models.StatusDiscontinued
	case item.CurrentStock <= 0:
		item.Status = models.StatusOutOfStock
	case item.CurrentStock <= item.ReorderPoint:
		item.Status = models.StatusLowStock
	default:
		item.Status = models.StatusInStock
	}
}

// Ledger exposes read access to item state
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetItem returns the item with derived fields recomputed
func (l *Ledger) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	item, err := l.store.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	RecomputeStatus(item)
	return item, nil
}

// ListItems returns all items ordered by id
func (l *Ledger) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	items, err := l.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		RecomputeStatus(&items[i])
	}
	return items, nil
}

func available(item models.InventoryItem, respectReservations bool) int64 {
	if respectReservations {
		return item.CurrentStock - item.ReservedStock
	}
	return item.CurrentStock
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// relocationRefs collects the references of transfers. Only transfer legs
// carry a reference on in and transfer movements.
func relocationRefs(movements []models.StockMovement) map[string]bool {
	refs := make(map[string]bool)
	for _, m := range movements {
		if m.Reference != "" && (m.Type == models.MovementIn || m.Type == models.MovementTransfer) {
			refs[m.Reference] = true
		}
	}
	return refs
}

// consumes reports whether m took stock out of the business rather than
// moving it between items.
func consumes(m models.StockMovement, relocations map[string]bool) bool {
	return m.Type == models.MovementOut && !relocations[m.Reference]
}
