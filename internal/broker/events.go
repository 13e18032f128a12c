package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the transport used by EventPublisher
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing stock events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func itemKey(itemID string) string {
	return fmt.Sprintf("item-%s", itemID)
}

// PublishStockMoved publishes StockMoved event
func (ep *EventPublisher) PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	return ep.producer.PublishEvent(ctx, itemKey(event.Movement.ItemID), event)
}

// PublishAlertRaised publishes AlertRaised event
func (ep *EventPublisher) PublishAlertRaised(ctx context.Context, event *models.AlertEvent) error {
	return ep.producer.PublishEvent(ctx, itemKey(event.Alert.ItemID), event)
}

// PublishAlertResolved publishes AlertResolved event
func (ep *EventPublisher) PublishAlertResolved(ctx context.Context, event *models.AlertEvent) error {
	return ep.producer.PublishEvent(ctx, itemKey(event.Alert.ItemID), event)
}

// OrderEventFunc handles one decoded order event
type OrderEventFunc func(context.Context, *models.OrderStockEvent) error

// EventHandler routes incoming order events by type
type EventHandler struct {
	handlers map[string]OrderEventFunc
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{handlers: make(map[string]OrderEventFunc), logger: util.GetLogger()}
}

// OnOrderReserved registers a handler for OrderReserved events
func (eh *EventHandler) OnOrderReserved(handler OrderEventFunc) {
	eh.handlers[models.EventTypeOrderReserved] = handler
}

// OnOrderConfirmed registers a handler for OrderConfirmed events
func (eh *EventHandler) OnOrderConfirmed(handler OrderEventFunc) {
	eh.handlers[models.EventTypeOrderConfirmed] = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler OrderEventFunc) {
	eh.handlers[models.EventTypeOrderCancelled] = handler
}

// OnOrderReturned registers a handler for OrderReturned events
func (eh *EventHandler) OnOrderReturned(handler OrderEventFunc) {
	eh.handlers[models.EventTypeOrderReturned] = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	handler, ok := eh.handlers[baseEvent.EventType]
	if !ok {
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	eh.logger.Info("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var event models.OrderStockEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
