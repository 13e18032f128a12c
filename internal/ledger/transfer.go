package ledger

import (
	"context"
	"fmt"
	"time"

	"stock-ledger/internal/models"

	"go.uber.org/zap"
)

// ReasonTransferRollback prefixes the reason of compensating movements
const ReasonTransferRollback = "transfer rollback"

// TransferOutcome is the transfer result plus every leg that committed,
// including a compensating leg after a rollback.
type TransferOutcome struct {
	models.TransferResult
	Legs []*Result
}

// TransferStock moves qty units from one item to another as an out movement
// on the source and an in movement on the destination, both carrying the same
// reference. Each leg commits on its own; if the second leg fails the first is
// compensated and a *TransferError is returned together with the outcome.
func (p *Processor) TransferStock(ctx context.Context, fromID, toID string, qty int64, reason string) (*TransferOutcome, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: source and destination are both %s", ErrInvalidTransfer, fromID)
	}

	unlock, err := p.locker.Lock(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dest, err := p.store.LoadItem(ctx, toID)
	if err != nil {
		return nil, err
	}
	if dest.Discontinued {
		return nil, fmt.Errorf("%w: %s", ErrItemDiscontinued, toID)
	}

	ref := p.newID()
	out := &TransferOutcome{TransferResult: models.TransferResult{Reference: ref, State: models.TransferPending}}

	first, err := p.commitLocked(ctx, fromID, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := p.remove(item, qty, reason, now)
		if err != nil {
			return nil, err
		}
		m := p.movement(ctx, *item, next, models.MovementOut, reason, ref, item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
	if err != nil {
		return nil, err
	}
	out.Legs = append(out.Legs, first)
	out.Out = &first.Movements[0]
	unitCost := first.Item.Cost

	second, err := p.commitLocked(ctx, toID, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		if item.Discontinued {
			return nil, fmt.Errorf("%w: %s", ErrItemDiscontinued, item.ID)
		}
		next, err := ApplyDelta(*item, qty, DeltaOptions{Direction: Inbound, RespectReservations: true})
		if err != nil {
			return nil, err
		}
		next.LastRestocked = &now
		m := p.movement(ctx, *item, next, models.MovementIn, reason, ref, unitCost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
	if err == nil {
		out.Legs = append(out.Legs, second)
		out.In = &second.Movements[0]
		out.State = models.TransferCommitted
		return out, nil
	}

	return p.rollbackTransfer(ctx, out, fromID, toID, qty, err)
}

func (p *Processor) rollbackTransfer(ctx context.Context, out *TransferOutcome, fromID, toID string, qty int64, cause error) (*TransferOutcome, error) {
	terr := &TransferError{Reference: out.Reference, FromItemID: fromID, ToItemID: toID, Cause: cause}

	p.logger.Warn("Transfer second leg failed, compensating first leg",
		zap.String("reference", out.Reference),
		zap.String("from_item_id", fromID),
		zap.String("to_item_id", toID),
		zap.Int64("quantity", qty),
		zap.Error(cause))

	comp, err := p.commitLocked(ctx, fromID, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := ApplyDelta(*item, qty, DeltaOptions{Direction: Inbound})
		if err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("%s: %v", ReasonTransferRollback, cause)
		m := p.movement(ctx, *item, next, models.MovementTransfer, reason, out.Reference, item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
	if err != nil {
		terr.RollbackErr = err
		out.State = models.TransferIntegrityFailure
		p.logger.Error("LEDGER INTEGRITY FAILURE: transfer compensation could not be recorded",
			zap.String("reference", out.Reference),
			zap.String("from_item_id", fromID),
			zap.String("to_item_id", toID),
			zap.Int64("quantity", qty),
			zap.String("out_movement_id", out.Out.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return out, terr
	}

	out.Legs = append(out.Legs, comp)
	out.Compensation = &comp.Movements[0]
	out.State = models.TransferRolledBack
	return out, terr
}
