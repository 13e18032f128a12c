package models

import "time"

// Event types
const (
	EventTypeStockMoved    = "STOCK_MOVED"
	EventTypeAlertRaised   = "ALERT_RAISED"
	EventTypeAlertResolved = "ALERT_RESOLVED"

	EventTypeOrderReserved  = "ORDER_RESERVED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeOrderReturned  = "ORDER_RETURNED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockMovedEvent published for every committed movement
type StockMovedEvent struct {
	BaseEvent
	Movement       StockMovement `json:"movement"`
	CurrentStock   int64         `json:"current_stock"`
	AvailableStock int64         `json:"available_stock"`
	Status         ItemStatus    `json:"status"`
}

// AlertEvent published when an alert is raised or resolved
type AlertEvent struct {
	BaseEvent
	Alert StockAlert `json:"alert"`
}

// OrderStockEvent is consumed from the order service. Items reference
// inventory item ids directly.
type OrderStockEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Items   []OrderItemData `json:"items"`
	Reason  string          `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}
