package service

import (
	"context"
	"errors"
	"fmt"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errOrderRejected = errors.New("order rejected")

// ProcessedEvents records handled event ids for idempotency
type ProcessedEvents interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// OrderEventHandler applies order lifecycle events to the ledger
type OrderEventHandler struct {
	inventory *InventoryService
	processed ProcessedEvents
	logger    *zap.Logger
}

// NewOrderEventHandler creates a new order event handler
func NewOrderEventHandler(inventory *InventoryService, processed ProcessedEvents) *OrderEventHandler {
	return &OrderEventHandler{
		inventory: inventory,
		processed: processed,
		logger:    util.GetLogger(),
	}
}

// HandleOrderReserved reserves every line of the order. If any line cannot
// be reserved the lines already reserved are released again. Each line is
// recorded once applied, so a redelivery after a transient failure resumes
// at the failing line.
func (h *OrderEventHandler) HandleOrderReserved(ctx context.Context, event *models.OrderStockEvent) error {
	return h.handle(ctx, "OrderEventHandler.HandleOrderReserved", event, func(ctx context.Context) error {
		ctx = ledger.WithActor(ctx, "order:"+event.OrderID)
		rejectedKey := event.EventID + "/rejected"
		rejected, err := h.isDone(ctx, rejectedKey)
		if err != nil {
			return err
		}

		cause := errOrderRejected
		if !rejected {
			for i, line := range event.Items {
				err := h.once(ctx, event, lineKey(event.EventID, "reserve", i), func() error {
					_, err := h.inventory.ReserveStock(ctx, line.ItemID, line.Quantity)
					return err
				})
				if err == nil {
					continue
				}
				if !isRejection(err) {
					return fmt.Errorf("failed to reserve item %s: %w", line.ItemID, err)
				}
				h.logger.Warn("Reservation failed, releasing order lines",
					zap.String("order_id", event.OrderID),
					zap.String("item_id", line.ItemID),
					zap.Error(err))
				if err := h.processed.MarkEventProcessed(ctx, rejectedKey, event.EventType); err != nil {
					return fmt.Errorf("failed to record rejection: %w", err)
				}
				cause = fmt.Errorf("%w: item %s: %v", errOrderRejected, line.ItemID, err)
				rejected = true
				break
			}
		}
		if !rejected {
			return nil
		}
		if err := h.compensate(ctx, event); err != nil {
			return err
		}
		return cause
	})
}

// compensate releases every reserved line of a rejected order, newest first.
func (h *OrderEventHandler) compensate(ctx context.Context, event *models.OrderStockEvent) error {
	for i := len(event.Items) - 1; i >= 0; i-- {
		reserved, err := h.isDone(ctx, lineKey(event.EventID, "reserve", i))
		if err != nil {
			return err
		}
		if !reserved {
			continue
		}
		line := event.Items[i]
		key := lineKey(event.EventID, "unreserve", i)
		err = h.once(ctx, event, key, func() error {
			_, err := h.inventory.ReleaseReservation(ctx, line.ItemID, line.Quantity)
			return err
		})
		if err == nil {
			continue
		}
		if !isRejection(err) {
			return fmt.Errorf("failed to release item %s: %w", line.ItemID, err)
		}
		h.logger.Error("Failed to release reservation during compensation",
			zap.String("order_id", event.OrderID),
			zap.String("item_id", line.ItemID),
			zap.Error(err))
		h.mark(ctx, event, key)
	}
	return nil
}

// HandleOrderConfirmed ships the reserved lines of the order
func (h *OrderEventHandler) HandleOrderConfirmed(ctx context.Context, event *models.OrderStockEvent) error {
	return h.handle(ctx, "OrderEventHandler.HandleOrderConfirmed", event, func(ctx context.Context) error {
		ctx = ledger.WithActor(ctx, "order:"+event.OrderID)
		return h.eachLine(ctx, event, "commit", func(ctx context.Context, line models.OrderItemData) error {
			_, err := h.inventory.CommitReservation(ctx, line.ItemID, line.Quantity, event.OrderID)
			return err
		})
	})
}

// HandleOrderCancelled releases the reserved lines of the order
func (h *OrderEventHandler) HandleOrderCancelled(ctx context.Context, event *models.OrderStockEvent) error {
	return h.handle(ctx, "OrderEventHandler.HandleOrderCancelled", event, func(ctx context.Context) error {
		ctx = ledger.WithActor(ctx, "order:"+event.OrderID)
		return h.eachLine(ctx, event, "release", func(ctx context.Context, line models.OrderItemData) error {
			_, err := h.inventory.ReleaseReservation(ctx, line.ItemID, line.Quantity)
			return err
		})
	})
}

// HandleOrderReturned restocks the returned lines of the order
func (h *OrderEventHandler) HandleOrderReturned(ctx context.Context, event *models.OrderStockEvent) error {
	return h.handle(ctx, "OrderEventHandler.HandleOrderReturned", event, func(ctx context.Context) error {
		ctx = ledger.WithActor(ctx, "order:"+event.OrderID)
		reason := reasonOr(event.Reason, "order returned")
		return h.eachLine(ctx, event, "return", func(ctx context.Context, line models.OrderItemData) error {
			_, err := h.inventory.ReturnStock(ctx, line.ItemID, &StockChangeRequest{
				Quantity:  line.Quantity,
				Reason:    reason,
				Reference: event.OrderID,
			})
			return err
		})
	})
}

// eachLine applies fn to every line not yet recorded for this event.
// Business rejections of a single line are logged and skipped; the first
// transient error aborts so the event is redelivered.
func (h *OrderEventHandler) eachLine(ctx context.Context, event *models.OrderStockEvent, action string,
	fn func(ctx context.Context, line models.OrderItemData) error) error {
	for i, line := range event.Items {
		key := lineKey(event.EventID, action, i)
		err := h.once(ctx, event, key, func() error { return fn(ctx, line) })
		if err == nil {
			continue
		}
		if !isRejection(err) {
			return fmt.Errorf("failed to %s item %s: %w", action, line.ItemID, err)
		}
		h.logger.Error("Order line rejected",
			zap.String("action", action),
			zap.String("order_id", event.OrderID),
			zap.String("item_id", line.ItemID),
			zap.Int64("quantity", line.Quantity),
			zap.Error(err))
		h.mark(ctx, event, key)
	}
	return nil
}

func lineKey(eventID, action string, i int) string {
	return fmt.Sprintf("%s/%s/%d", eventID, action, i)
}

// once runs fn unless key is already recorded and records key when fn
// succeeds. Errors from fn are returned unrecorded.
func (h *OrderEventHandler) once(ctx context.Context, event *models.OrderStockEvent, key string, fn func() error) error {
	done, err := h.isDone(ctx, key)
	if err != nil {
		return err
	}
	if done {
		h.logger.Debug("Order step already applied", zap.String("step", key))
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	h.mark(ctx, event, key)
	return nil
}

func (h *OrderEventHandler) isDone(ctx context.Context, key string) (bool, error) {
	done, err := h.processed.IsEventProcessed(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check step %s: %w", key, err)
	}
	return done, nil
}

func (h *OrderEventHandler) mark(ctx context.Context, event *models.OrderStockEvent, key string) {
	if err := h.processed.MarkEventProcessed(ctx, key, event.EventType); err != nil {
		h.logger.Error("Failed to record order step", zap.String("step", key), zap.Error(err))
	}
}

// handle wraps fn with tracing and processed-event idempotency. Rejected
// events are marked processed; transient failures are returned for retry.
func (h *OrderEventHandler) handle(ctx context.Context, spanName string, event *models.OrderStockEvent,
	fn func(ctx context.Context) error) error {
	ctx, span := util.StartSpan(ctx, spanName,
		attribute.String("event_id", event.EventID),
		attribute.String("order_id", event.OrderID))
	defer span.End()

	processed, err := h.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.OrderEventsProcessed.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	h.logger.Info("Handling order event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
		zap.Int("lines", len(event.Items)))

	outcome := "applied"
	if err := fn(ctx); err != nil {
		util.SpanError(span, err)
		if !isRejection(err) {
			util.OrderEventsProcessed.WithLabelValues(event.EventType, "failed").Inc()
			return err
		}
		outcome = "rejected"
		h.logger.Warn("Order event rejected", zap.String("order_id", event.OrderID), zap.Error(err))
	}

	if err := h.processed.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		h.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	util.OrderEventsProcessed.WithLabelValues(event.EventType, outcome).Inc()
	return nil
}

// isRejection reports whether retrying err cannot succeed
func isRejection(err error) bool {
	if errors.Is(err, errOrderRejected) {
		return true
	}
	switch ErrorReason(err) {
	case "internal", "cancelled", "concurrent_modification":
		return false
	}
	return true
}
