package service

import (
	"context"
	"errors"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorReason maps an error to a short label for metrics and logs
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ledger.ErrIntegrityFailure):
		return "integrity_failure"
	case errors.Is(err, ledger.ErrTransferFailure):
		return "transfer_failed"
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrAlertNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ledger.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ledger.ErrItemDiscontinued):
		return "discontinued"
	case errors.Is(err, ledger.ErrDuplicateItem):
		return "duplicate"
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidAdjustment),
		errors.Is(err, ledger.ErrInvalidTransfer),
		errors.Is(err, ledger.ErrInvalidThresholds),
		errors.Is(err, ledger.ErrInvalidItem),
		errors.Is(err, ledger.ErrInvalidRange),
		errors.Is(err, ledger.ErrInvalidAlertTransition):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// publish records metrics and emits events for a committed result. The
// ledger change is already durable, so publish failures are only logged.
func (s *InventoryService) publish(ctx context.Context, res *ledger.Result) {
	for _, m := range res.Movements {
		util.StockMovementsTotal.WithLabelValues(string(m.Type)).Inc()
		units := m.Quantity
		if units < 0 {
			units = -units
		}
		util.StockMovementUnits.WithLabelValues(string(m.Type)).Add(float64(units))

		if s.publisher == nil {
			continue
		}
		event := &models.StockMovedEvent{
			BaseEvent:      s.baseEvent(models.EventTypeStockMoved),
			Movement:       m,
			CurrentStock:   res.Item.CurrentStock,
			AvailableStock: res.Item.AvailableStock,
			Status:         res.Item.Status,
		}
		if err := s.publisher.PublishStockMoved(ctx, event); err != nil {
			util.EventsPublishFailed.WithLabelValues(models.EventTypeStockMoved).Inc()
			s.logger.Error("Failed to publish stock moved event",
				zap.String("movement_id", m.ID), zap.String("item_id", m.ItemID), zap.Error(err))
		}
	}

	for _, a := range res.Alerts.Create {
		util.StockAlertsRaisedTotal.WithLabelValues(string(a.Type), string(a.Priority)).Inc()
		s.logger.Info("Stock alert raised",
			zap.String("alert_id", a.ID),
			zap.String("item_id", a.ItemID),
			zap.String("type", string(a.Type)),
			zap.String("priority", string(a.Priority)))
		s.publishAlert(ctx, models.EventTypeAlertRaised, a)
	}
	for _, a := range res.Alerts.Resolve {
		util.StockAlertsResolvedTotal.WithLabelValues(string(a.Type)).Inc()
		s.publishAlert(ctx, models.EventTypeAlertResolved, a)
	}
}

func (s *InventoryService) publishAlert(ctx context.Context, eventType string, a models.StockAlert) {
	if s.publisher == nil {
		return
	}
	event := &models.AlertEvent{BaseEvent: s.baseEvent(eventType), Alert: a}

	var err error
	if eventType == models.EventTypeAlertRaised {
		err = s.publisher.PublishAlertRaised(ctx, event)
	} else {
		err = s.publisher.PublishAlertResolved(ctx, event)
	}
	if err != nil {
		util.EventsPublishFailed.WithLabelValues(eventType).Inc()
		s.logger.Error("Failed to publish alert event",
			zap.String("event_type", eventType), zap.String("alert_id", a.ID), zap.Error(err))
	}
}

func (s *InventoryService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{EventID: uuid.New().String(), EventType: eventType, Timestamp: s.now()}
}
