package worker

import (
	"context"

	"stock-ledger/internal/broker"
	"stock-ledger/internal/service"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource delivers messages to a handler until ctx is done
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// OrderWorker applies order events from Kafka to the ledger
type OrderWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer MessageSource, orderHandler *service.OrderEventHandler) *OrderWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderReserved(orderHandler.HandleOrderReserved)
	eventHandler.OnOrderConfirmed(orderHandler.HandleOrderConfirmed)
	eventHandler.OnOrderCancelled(orderHandler.HandleOrderCancelled)
	eventHandler.OnOrderReturned(orderHandler.HandleOrderReturned)

	return &OrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *OrderWorker) handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}
