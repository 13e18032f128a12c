package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus is derived from stock levels; see ledger.RecomputeStatus
type ItemStatus string

const (
	StatusInStock      ItemStatus = "in_stock"
	StatusLowStock     ItemStatus = "low_stock"
	StatusOutOfStock   ItemStatus = "out_of_stock"
	StatusDiscontinued ItemStatus = "discontinued"
)

// InventoryItem represents the stock record of one sellable variant
type InventoryItem struct {
	ID              string          `db:"id" json:"id"`
	ProductID       string          `db:"product_id" json:"product_id"`
	SKU             string          `db:"sku" json:"sku"`
	Name            string          `db:"name" json:"name"`
	CurrentStock    int64           `db:"current_stock" json:"current_stock"`
	ReservedStock   int64           `db:"reserved_stock" json:"reserved_stock"`
	AvailableStock  int64           `db:"available_stock" json:"available_stock"`
	MinStockLevel   int64           `db:"min_stock_level" json:"min_stock_level"`
	MaxStockLevel   int64           `db:"max_stock_level" json:"max_stock_level"`
	ReorderPoint    int64           `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity int64           `db:"reorder_quantity" json:"reorder_quantity"`
	LeadTimeDays    int             `db:"lead_time_days" json:"lead_time_days"`
	Cost            decimal.Decimal `db:"cost" json:"cost"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Status          ItemStatus      `db:"status" json:"status"`
	Discontinued    bool            `db:"discontinued" json:"discontinued"`
	Location        string          `db:"location" json:"location"`
	Supplier        string          `db:"supplier" json:"supplier"`
	LastRestocked   *time.Time      `db:"last_restocked" json:"last_restocked,omitempty"`
	LastSold        *time.Time      `db:"last_sold" json:"last_sold,omitempty"`
	LastCounted     *time.Time      `db:"last_counted" json:"last_counted,omitempty"`
	Version         int64           `db:"version" json:"version"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// MovementType classifies a ledger entry
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"
	MovementReturn     MovementType = "return"
)

// StockMovement is an immutable ledger entry
type StockMovement struct {
	ID             string          `db:"id" json:"id"`
	ItemID         string          `db:"item_id" json:"item_id"`
	Type           MovementType    `db:"type" json:"type"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	QuantityBefore int64           `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int64           `db:"quantity_after" json:"quantity_after"`
	Reason         string          `db:"reason" json:"reason"`
	Reference      string          `db:"reference" json:"reference,omitempty"`
	Location       string          `db:"location" json:"location"`
	Cost           decimal.Decimal `db:"cost" json:"cost"`
	PerformedBy    string          `db:"performed_by" json:"performed_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// AlertType identifies the condition an alert reports
type AlertType string

const (
	AlertLowStock   AlertType = "low_stock"
	AlertOutOfStock AlertType = "out_of_stock"
	AlertOverstock  AlertType = "overstock"
	AlertReorder    AlertType = "reorder"
)

// AlertPriority orders alerts by urgency
type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// AlertStatus is the alert lifecycle state.
// active -> acknowledged -> resolved, or active -> resolved.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// StockAlert is raised and resolved by the alert engine
type StockAlert struct {
	ID             string        `db:"id" json:"id"`
	ItemID         string        `db:"item_id" json:"item_id"`
	Type           AlertType     `db:"type" json:"type"`
	CurrentStock   int64         `db:"current_stock" json:"current_stock"`
	Threshold      int64         `db:"threshold" json:"threshold"`
	Priority       AlertPriority `db:"priority" json:"priority"`
	Status         AlertStatus   `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	AcknowledgedAt *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// TransferState tracks the two legs of a transfer
type TransferState string

const (
	TransferPending          TransferState = "pending"
	TransferCommitted        TransferState = "committed"
	TransferRolledBack       TransferState = "rolled_back"
	TransferIntegrityFailure TransferState = "integrity_failure"
)

// TransferResult is returned by a transfer; it is not persisted
type TransferResult struct {
	Reference    string         `json:"reference"`
	State        TransferState  `json:"state"`
	Out          *StockMovement `json:"out,omitempty"`
	In           *StockMovement `json:"in,omitempty"`
	Compensation *StockMovement `json:"compensation,omitempty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
