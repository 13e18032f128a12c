package service

import (
	"context"
	"errors"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventPublisher publishes committed ledger changes
type EventPublisher interface {
	PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error
	PublishAlertRaised(ctx context.Context, event *models.AlertEvent) error
	PublishAlertResolved(ctx context.Context, event *models.AlertEvent) error
}

// InventoryService handles inventory business logic on top of the ledger
type InventoryService struct {
	processor *ledger.Processor
	advisor   *ledger.ReorderAdvisor
	reports   *ledger.ReportAggregator
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewInventoryService creates a new inventory service. publisher may be nil,
// in which case no events are emitted.
func NewInventoryService(
	processor *ledger.Processor,
	advisor *ledger.ReorderAdvisor,
	reports *ledger.ReportAggregator,
	publisher EventPublisher,
) *InventoryService {
	return &InventoryService{
		processor: processor,
		advisor:   advisor,
		reports:   reports,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateItemRequest represents a request to create an inventory item
type CreateItemRequest struct {
	ID              string          `json:"id,omitempty"`
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	InitialStock    int64           `json:"initial_stock" binding:"min=0"`
	MinStockLevel   int64           `json:"min_stock_level" binding:"min=0"`
	MaxStockLevel   int64           `json:"max_stock_level" binding:"min=0"`
	ReorderPoint    int64           `json:"reorder_point" binding:"min=0"`
	ReorderQuantity int64           `json:"reorder_quantity" binding:"min=0"`
	LeadTimeDays    int             `json:"lead_time_days" binding:"min=0"`
	Cost            decimal.Decimal `json:"cost"`
	Price           decimal.Decimal `json:"price"`
	Location        string          `json:"location"`
	Supplier        string          `json:"supplier"`
}

// StockChangeRequest carries the quantity of a stock operation
type StockChangeRequest struct {
	Quantity  int64            `json:"quantity" binding:"required"`
	Reason    string           `json:"reason"`
	Reference string           `json:"reference,omitempty"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
}

// StockCountRequest records a physical count
type StockCountRequest struct {
	CountedQuantity int64  `json:"counted_quantity" binding:"min=0"`
	Notes           string `json:"notes"`
}

// TransferRequest moves stock between two items
type TransferRequest struct {
	FromItemID string `json:"from_item_id" binding:"required"`
	ToItemID   string `json:"to_item_id" binding:"required"`
	Quantity   int64  `json:"quantity" binding:"required"`
	Reason     string `json:"reason"`
}

// ThresholdsRequest replaces the stock levels of an item
type ThresholdsRequest struct {
	MinStockLevel   int64 `json:"min_stock_level"`
	MaxStockLevel   int64 `json:"max_stock_level"`
	ReorderPoint    int64 `json:"reorder_point"`
	ReorderQuantity int64 `json:"reorder_quantity"`
	LeadTimeDays    int   `json:"lead_time_days"`
}

// StockResponse is returned by every stock-changing operation
type StockResponse struct {
	Item      models.InventoryItem   `json:"item"`
	Movements []models.StockMovement `json:"movements"`
	Raised    []models.StockAlert    `json:"alerts_raised,omitempty"`
	Resolved  []models.StockAlert    `json:"alerts_resolved,omitempty"`
}

// TransferResponse is returned by TransferStock
type TransferResponse struct {
	models.TransferResult
	From *models.InventoryItem `json:"from,omitempty"`
	To   *models.InventoryItem `json:"to,omitempty"`
}

func toResponse(res *ledger.Result) *StockResponse {
	movements := res.Movements
	if movements == nil {
		movements = []models.StockMovement{}
	}
	return &StockResponse{
		Item:      res.Item,
		Movements: movements,
		Raised:    res.Alerts.Create,
		Resolved:  res.Alerts.Resolve,
	}
}

// CreateItem adds an item to the ledger
func (s *InventoryService) CreateItem(ctx context.Context, req *CreateItemRequest) (*StockResponse, error) {
	return s.run(ctx, "create_item", req.ID, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.CreateItem(ctx, ledger.NewItem{
			ID:              req.ID,
			ProductID:       req.ProductID,
			SKU:             req.SKU,
			Name:            req.Name,
			InitialStock:    req.InitialStock,
			MinStockLevel:   req.MinStockLevel,
			MaxStockLevel:   req.MaxStockLevel,
			ReorderPoint:    req.ReorderPoint,
			ReorderQuantity: req.ReorderQuantity,
			LeadTimeDays:    req.LeadTimeDays,
			Cost:            req.Cost,
			Price:           req.Price,
			Location:        req.Location,
			Supplier:        req.Supplier,
		})
	})
}

// AddStock receives stock
func (s *InventoryService) AddStock(ctx context.Context, id string, req *StockChangeRequest) (*StockResponse, error) {
	return s.run(ctx, "add_stock", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.AddStock(ctx, id, req.Quantity, reasonOr(req.Reason, "restock"), req.Cost)
	})
}

// RemoveStock ships or writes off stock
func (s *InventoryService) RemoveStock(ctx context.Context, id string, req *StockChangeRequest) (*StockResponse, error) {
	return s.run(ctx, "remove_stock", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.RemoveStock(ctx, id, req.Quantity, reasonOr(req.Reason, ledger.ReasonSale))
	})
}

// AdjustStock applies a signed correction
func (s *InventoryService) AdjustStock(ctx context.Context, id string, req *StockChangeRequest) (*StockResponse, error) {
	return s.run(ctx, "adjust_stock", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.AdjustStock(ctx, id, req.Quantity, reasonOr(req.Reason, "adjustment"))
	})
}

// PerformStockCount reconciles the ledger with a physical count
func (s *InventoryService) PerformStockCount(ctx context.Context, id string, req *StockCountRequest) (*StockResponse, error) {
	return s.run(ctx, "stock_count", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.PerformStockCount(ctx, id, req.CountedQuantity, req.Notes)
	})
}

// ReturnStock restocks returned goods
func (s *InventoryService) ReturnStock(ctx context.Context, id string, req *StockChangeRequest) (*StockResponse, error) {
	return s.run(ctx, "return_stock", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.ReturnStock(ctx, id, req.Quantity, reasonOr(req.Reason, "customer return"), req.Reference)
	})
}

// ReserveStock holds stock for an order
func (s *InventoryService) ReserveStock(ctx context.Context, id string, qty int64) (*StockResponse, error) {
	return s.run(ctx, "reserve_stock", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.ReserveStock(ctx, id, qty)
	})
}

// ReleaseReservation gives reserved stock back
func (s *InventoryService) ReleaseReservation(ctx context.Context, id string, qty int64) (*StockResponse, error) {
	return s.run(ctx, "release_reservation", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.ReleaseReservation(ctx, id, qty)
	})
}

// CommitReservation ships reserved stock
func (s *InventoryService) CommitReservation(ctx context.Context, id string, qty int64, reference string) (*StockResponse, error) {
	return s.run(ctx, "commit_reservation", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.CommitReservation(ctx, id, qty, reference)
	})
}

// UpdateThresholds replaces the stock levels of an item
func (s *InventoryService) UpdateThresholds(ctx context.Context, id string, req *ThresholdsRequest) (*StockResponse, error) {
	return s.run(ctx, "update_thresholds", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.UpdateThresholds(ctx, id, ledger.Thresholds{
			MinStockLevel:   req.MinStockLevel,
			MaxStockLevel:   req.MaxStockLevel,
			ReorderPoint:    req.ReorderPoint,
			ReorderQuantity: req.ReorderQuantity,
			LeadTimeDays:    req.LeadTimeDays,
		})
	})
}

// Discontinue retires an item
func (s *InventoryService) Discontinue(ctx context.Context, id string) (*StockResponse, error) {
	return s.run(ctx, "discontinue", id, func(ctx context.Context) (*ledger.Result, error) {
		return s.processor.Discontinue(ctx, id)
	})
}

// TransferStock moves stock between two items. Legs that committed are
// published even when the transfer fails.
func (s *InventoryService) TransferStock(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.TransferStock",
		attribute.String("from_item_id", req.FromItemID),
		attribute.String("to_item_id", req.ToItemID),
		attribute.Int64("quantity", req.Quantity))
	defer span.End()

	start := time.Now()
	outcome, err := s.processor.TransferStock(ctx, req.FromItemID, req.ToItemID, req.Quantity, reasonOr(req.Reason, "transfer"))
	util.StockOperationLatency.WithLabelValues("transfer").Observe(time.Since(start).Seconds())

	if outcome == nil {
		s.fail(span, "transfer", req.FromItemID, err)
		return nil, err
	}

	for _, leg := range outcome.Legs {
		s.publish(ctx, leg)
	}
	util.TransfersTotal.WithLabelValues(string(outcome.State)).Inc()
	if outcome.State == models.TransferIntegrityFailure {
		util.LedgerIntegrityFailures.Inc()
	}

	resp := &TransferResponse{TransferResult: outcome.TransferResult}
	for _, leg := range outcome.Legs {
		item := leg.Item
		switch item.ID {
		case req.FromItemID:
			resp.From = &item
		case req.ToItemID:
			resp.To = &item
		}
	}

	if err != nil {
		s.fail(span, "transfer", req.FromItemID, err)
		return resp, err
	}

	s.logger.Info("Stock transferred",
		zap.String("reference", outcome.Reference),
		zap.String("from_item_id", req.FromItemID),
		zap.String("to_item_id", req.ToItemID),
		zap.Int64("quantity", req.Quantity))
	return resp, nil
}

// GetItem returns an item by id
func (s *InventoryService) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetItem", attribute.String("item_id", id))
	defer span.End()

	item, err := s.processor.GetItem(ctx, id)
	util.SpanError(span, err)
	return item, err
}

// ListItems returns every item
func (s *InventoryService) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListItems")
	defer span.End()

	items, err := s.processor.ListItems(ctx)
	util.SpanError(span, err)
	return items, err
}

// ListMovements returns ledger history matching f
func (s *InventoryService) ListMovements(ctx context.Context, f ledger.MovementFilter) ([]models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListMovements")
	defer span.End()

	movements, err := s.processor.ListMovements(ctx, f)
	util.SpanError(span, err)
	return movements, err
}

// ListAlerts returns alerts matching f
func (s *InventoryService) ListAlerts(ctx context.Context, f ledger.AlertFilter) ([]models.StockAlert, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListAlerts")
	defer span.End()

	alerts, err := s.processor.ListAlerts(ctx, f)
	util.SpanError(span, err)
	return alerts, err
}

// AcknowledgeAlert marks an alert as seen
func (s *InventoryService) AcknowledgeAlert(ctx context.Context, alertID string) (*models.StockAlert, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AcknowledgeAlert", attribute.String("alert_id", alertID))
	defer span.End()

	alert, err := s.processor.AcknowledgeAlert(ctx, alertID)
	if err != nil {
		s.fail(span, "acknowledge_alert", alertID, err)
		return nil, err
	}
	s.logger.Info("Alert acknowledged", zap.String("alert_id", alertID), zap.String("item_id", alert.ItemID))
	return alert, nil
}

// ResolveAlert closes an alert by hand
func (s *InventoryService) ResolveAlert(ctx context.Context, alertID string) (*models.StockAlert, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ResolveAlert", attribute.String("alert_id", alertID))
	defer span.End()

	alert, err := s.processor.ResolveAlert(ctx, alertID)
	if err != nil {
		s.fail(span, "resolve_alert", alertID, err)
		return nil, err
	}
	util.StockAlertsResolvedTotal.WithLabelValues(string(alert.Type)).Inc()
	s.publishAlert(ctx, models.EventTypeAlertResolved, *alert)
	s.logger.Info("Alert resolved", zap.String("alert_id", alertID), zap.String("item_id", alert.ItemID))
	return alert, nil
}

// GenerateReorderSuggestions lists the items that should be reordered now
func (s *InventoryService) GenerateReorderSuggestions(ctx context.Context) ([]ledger.ReorderSuggestion, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GenerateReorderSuggestions")
	defer span.End()

	start := time.Now()
	suggestions, err := s.advisor.GenerateReorderSuggestions(ctx, s.now())
	util.ReportGenerationLatency.WithLabelValues("reorder").Observe(time.Since(start).Seconds())
	if err != nil {
		util.SpanError(span, err)
		s.logger.Error("Failed to generate reorder suggestions", zap.Error(err))
		return nil, err
	}
	return suggestions, nil
}

// GetInventoryReport summarizes the ledger over [from, to]
func (s *InventoryService) GetInventoryReport(ctx context.Context, from, to time.Time) (*ledger.InventoryReport, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetInventoryReport")
	defer span.End()

	start := time.Now()
	report, err := s.reports.GetInventoryReport(ctx, from, to)
	util.ReportGenerationLatency.WithLabelValues("inventory").Observe(time.Since(start).Seconds())
	if err != nil {
		util.SpanError(span, err)
		if !errors.Is(err, ledger.ErrInvalidRange) {
			s.logger.Error("Failed to generate inventory report", zap.Error(err))
		}
		return nil, err
	}
	return report, nil
}

// run traces, times and publishes a single-item operation
func (s *InventoryService) run(ctx context.Context, op, itemID string,
	fn func(ctx context.Context) (*ledger.Result, error)) (*StockResponse, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService."+op, attribute.String("item_id", itemID))
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)
	util.StockOperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(span, op, itemID, err)
		return nil, err
	}

	s.publish(ctx, res)
	return toResponse(res), nil
}

func (s *InventoryService) fail(span trace.Span, op, id string, err error) {
	util.SpanError(span, err)
	reason := ErrorReason(err)
	util.StockOperationsFailed.WithLabelValues(op, reason).Inc()

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("id", id),
		zap.String("reason", reason),
		zap.Error(err),
	}
	switch reason {
	case "internal", "integrity_failure":
		s.logger.Error("Stock operation failed", fields...)
	default:
		s.logger.Warn("Stock operation rejected", fields...)
	}
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
