package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-ledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReasonSale marks removals that count as sales
const ReasonSale = "sale"

// Options configures a Processor. Zero values get in-process defaults.
type Options struct {
	Locker Locker
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Result is what a committed operation produced
type Result struct {
	Item      models.InventoryItem
	Movements []models.StockMovement
	Alerts    AlertPlan
}

// Processor applies stock-changing operations. Every operation validates,
// locks the item, applies the change and writes item, movements and alert
// changes in one transaction.
type Processor struct {
	*Ledger
	store  Store
	locker Locker
	alerts *AlertEngine
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewProcessor(store Store, opts Options) *Processor {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}

	return &Processor{
		Ledger: NewLedger(store),
		store:  store,
		locker: opts.Locker,
		alerts: NewAlertEngine(opts.NewID, opts.Now),
		logger: opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
	}
}

// NewItem describes a catalog entry entering the ledger
type NewItem struct {
	ID              string
	ProductID       string
	SKU             string
	Name            string
	InitialStock    int64
	MinStockLevel   int64
	MaxStockLevel   int64
	ReorderPoint    int64
	ReorderQuantity int64
	LeadTimeDays    int
	Cost            decimal.Decimal
	Price           decimal.Decimal
	Location        string
	Supplier        string
}

// Thresholds are the tunable stock levels of an item
type Thresholds struct {
	MinStockLevel   int64
	MaxStockLevel   int64
	ReorderPoint    int64
	ReorderQuantity int64
	LeadTimeDays    int
}

func (t Thresholds) validate() error {
	if t.MinStockLevel < 0 || t.MaxStockLevel < 0 || t.ReorderPoint < 0 ||
		t.ReorderQuantity < 0 || t.LeadTimeDays < 0 {
		return fmt.Errorf("%w: levels must be >= 0", ErrInvalidThresholds)
	}
	if t.MaxStockLevel > 0 && t.MinStockLevel > t.MaxStockLevel {
		return fmt.Errorf("%w: min %d exceeds max %d", ErrInvalidThresholds, t.MinStockLevel, t.MaxStockLevel)
	}
	return nil
}

// CreateItem adds an item to the ledger. A positive initial stock is
// recorded as an inbound movement.
func (p *Processor) CreateItem(ctx context.Context, in NewItem) (*Result, error) {
	if strings.TrimSpace(in.SKU) == "" {
		return nil, fmt.Errorf("%w: sku is required", ErrInvalidItem)
	}
	if in.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock %d", ErrInvalidQuantity, in.InitialStock)
	}
	th := Thresholds{in.MinStockLevel, in.MaxStockLevel, in.ReorderPoint, in.ReorderQuantity, in.LeadTimeDays}
	if err := th.validate(); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = p.newID()
	}

	unlock, err := p.locker.Lock(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := p.now()
	item := models.InventoryItem{
		ID:              in.ID,
		ProductID:       in.ProductID,
		SKU:             strings.TrimSpace(in.SKU),
		Name:            strings.TrimSpace(in.Name),
		MinStockLevel:   in.MinStockLevel,
		MaxStockLevel:   in.MaxStockLevel,
		ReorderPoint:    in.ReorderPoint,
		ReorderQuantity: in.ReorderQuantity,
		LeadTimeDays:    in.LeadTimeDays,
		Cost:            in.Cost,
		Price:           in.Price,
		Location:        in.Location,
		Supplier:        in.Supplier,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	RecomputeStatus(&item)

	var res *Result
	err = p.store.WithTx(ctx, func(tx Store) error {
		var movements []models.StockMovement
		created := item
		if in.InitialStock > 0 {
			var err error
			if created, err = ApplyDelta(item, in.InitialStock, DeltaOptions{Direction: Inbound}); err != nil {
				return err
			}
			created.LastRestocked = &now
			movements = append(movements, p.movement(ctx, item, created, models.MovementIn, "initial stock", "", created.Cost, now))
		}
		if err := tx.CreateItem(ctx, &created); err != nil {
			return err
		}
		for i := range movements {
			if err := tx.AppendMovement(ctx, &movements[i]); err != nil {
				return err
			}
		}
		plan, err := p.reconcile(ctx, tx, created)
		if err != nil {
			return err
		}
		res = &Result{Item: created, Movements: movements, Alerts: plan}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Item created", zap.String("item_id", item.ID), zap.String("sku", item.SKU))
	return res, nil
}

// AddStock receives qty units. A non-nil cost replaces the item's unit cost.
func (p *Processor) AddStock(ctx context.Context, id string, qty int64, reason string, cost *decimal.Decimal) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		if item.Discontinued {
			return nil, fmt.Errorf("%w: %s", ErrItemDiscontinued, item.ID)
		}
		next, err := ApplyDelta(*item, qty, DeltaOptions{Direction: Inbound, RespectReservations: true})
		if err != nil {
			return nil, err
		}
		next.LastRestocked = &now
		if cost != nil {
			next.Cost = *cost
		}
		m := p.movement(ctx, *item, next, models.MovementIn, reason, "", next.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

// RemoveStock takes qty units out of available stock
func (p *Processor) RemoveStock(ctx context.Context, id string, qty int64, reason string) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := p.remove(item, qty, reason, now)
		if err != nil {
			return nil, err
		}
		m := p.movement(ctx, *item, next, models.MovementOut, reason, "", item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

func (p *Processor) remove(item *models.InventoryItem, qty int64, reason string, now time.Time) (models.InventoryItem, error) {
	next, err := ApplyDelta(*item, -qty, DeltaOptions{Direction: Outbound, RespectReservations: true})
	if err != nil {
		return next, err
	}
	if reason == ReasonSale {
		next.LastSold = &now
	}
	return next, nil
}

// AdjustStock corrects current stock by a signed quantity
func (p *Processor) AdjustStock(ctx context.Context, id string, signedQty int64, reason string) (*Result, error) {
	if signedQty == 0 {
		return nil, fmt.Errorf("%w: adjustment of zero", ErrInvalidAdjustment)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := adjust(*item, signedQty)
		if err != nil {
			return nil, err
		}
		m := p.movement(ctx, *item, next, models.MovementAdjustment, reason, "", item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

// PerformStockCount reconciles current stock with a physical count. The
// difference is recorded as an adjustment, including a zero difference.
func (p *Processor) PerformStockCount(ctx context.Context, id string, counted int64, notes string) (*Result, error) {
	if counted < 0 {
		return nil, fmt.Errorf("%w: counted quantity %d", ErrInvalidAdjustment, counted)
	}
	if notes == "" {
		notes = "stock count"
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := adjust(*item, counted-item.CurrentStock)
		if err != nil {
			return nil, err
		}
		next.LastCounted = &now
		m := p.movement(ctx, *item, next, models.MovementAdjustment, notes, "", item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

func adjust(item models.InventoryItem, delta int64) (models.InventoryItem, error) {
	next, err := ApplyDelta(item, delta, DeltaOptions{RespectReservations: true})
	if errors.Is(err, ErrInsufficientStock) {
		return item, fmt.Errorf("%w: stock %d%+d below reserved %d",
			ErrInvalidAdjustment, item.CurrentStock, delta, item.ReservedStock)
	}
	return next, err
}

// ReturnStock puts qty units back into stock from a customer return
func (p *Processor) ReturnStock(ctx context.Context, id string, qty int64, reason, reference string) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		next, err := ApplyDelta(*item, qty, DeltaOptions{Direction: Inbound, RespectReservations: true})
		if err != nil {
			return nil, err
		}
		m := p.movement(ctx, *item, next, models.MovementReturn, reason, reference, item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

// ReserveStock moves qty units from available to reserved
func (p *Processor) ReserveStock(ctx context.Context, id string, qty int64) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, _ time.Time) ([]models.StockMovement, error) {
		if item.Discontinued {
			return nil, fmt.Errorf("%w: %s", ErrItemDiscontinued, item.ID)
		}
		if avail := item.CurrentStock - item.ReservedStock; qty > avail {
			return nil, fmt.Errorf("%w: available=%d, requested=%d", ErrInsufficientStock, avail, qty)
		}
		item.ReservedStock += qty
		return nil, nil
	})
}

// ReleaseReservation returns qty reserved units to available stock
func (p *Processor) ReleaseReservation(ctx context.Context, id string, qty int64) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, _ time.Time) ([]models.StockMovement, error) {
		if qty > item.ReservedStock {
			return nil, fmt.Errorf("%w: reserved=%d, requested=%d", ErrInvalidQuantity, item.ReservedStock, qty)
		}
		item.ReservedStock -= qty
		return nil, nil
	})
}

// CommitReservation ships qty reserved units as a sale
func (p *Processor) CommitReservation(ctx context.Context, id string, qty int64, reference string) (*Result, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error) {
		if qty > item.ReservedStock {
			return nil, fmt.Errorf("%w: reserved=%d, requested=%d", ErrInvalidQuantity, item.ReservedStock, qty)
		}
		before := *item
		released := *item
		released.ReservedStock -= qty
		next, err := p.remove(&released, qty, ReasonSale, now)
		if err != nil {
			return nil, err
		}
		m := p.movement(ctx, before, next, models.MovementOut, ReasonSale, reference, item.Cost, now)
		*item = next
		return []models.StockMovement{m}, nil
	})
}

// UpdateThresholds replaces the stock levels of an item
func (p *Processor) UpdateThresholds(ctx context.Context, id string, th Thresholds) (*Result, error) {
	if err := th.validate(); err != nil {
		return nil, err
	}
	return p.mutate(ctx, id, func(item *models.InventoryItem, _ time.Time) ([]models.StockMovement, error) {
		item.MinStockLevel = th.MinStockLevel
		item.MaxStockLevel = th.MaxStockLevel
		item.ReorderPoint = th.ReorderPoint
		item.ReorderQuantity = th.ReorderQuantity
		item.LeadTimeDays = th.LeadTimeDays
		return nil, nil
	})
}

// Discontinue retires an item. Its history is kept and its alerts resolve.
func (p *Processor) Discontinue(ctx context.Context, id string) (*Result, error) {
	return p.mutate(ctx, id, func(item *models.InventoryItem, _ time.Time) ([]models.StockMovement, error) {
		item.Discontinued = true
		return nil, nil
	})
}

// AcknowledgeAlert marks an active alert as seen
func (p *Processor) AcknowledgeAlert(ctx context.Context, alertID string) (*models.StockAlert, error) {
	return p.transitionAlert(ctx, alertID, models.AlertAcknowledged)
}

// ResolveAlert closes an open alert by hand
func (p *Processor) ResolveAlert(ctx context.Context, alertID string) (*models.StockAlert, error) {
	return p.transitionAlert(ctx, alertID, models.AlertResolved)
}

func (p *Processor) transitionAlert(ctx context.Context, alertID string, to models.AlertStatus) (*models.StockAlert, error) {
	a, err := p.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock, err := p.locker.Lock(ctx, a.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out models.StockAlert
	err = p.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		out, err = TransitionAlert(*current, to, p.now())
		if err != nil {
			return err
		}
		return tx.SaveAlert(ctx, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMovements returns ledger history
func (l *Ledger) ListMovements(ctx context.Context, f MovementFilter) ([]models.StockMovement, error) {
	return l.store.QueryMovements(ctx, f)
}

// ListAlerts returns alerts matching f
func (l *Ledger) ListAlerts(ctx context.Context, f AlertFilter) ([]models.StockAlert, error) {
	return l.store.QueryAlerts(ctx, f)
}

type mutation func(item *models.InventoryItem, now time.Time) ([]models.StockMovement, error)

func (p *Processor) mutate(ctx context.Context, id string, fn mutation) (*Result, error) {
	unlock, err := p.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return p.commitLocked(ctx, id, fn)
}

// commitLocked runs fn in its own transaction. The caller holds the item lock.
func (p *Processor) commitLocked(ctx context.Context, id string, fn mutation) (*Result, error) {
	var res *Result
	err := p.store.WithTx(ctx, func(tx Store) error {
		var err error
		res, err = p.apply(ctx, tx, id, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// apply loads the item, runs fn and writes the outcome through tx.
func (p *Processor) apply(ctx context.Context, tx Store, id string, fn mutation) (*Result, error) {
	item, err := tx.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	now := p.now()
	expected := item.Version

	next := *item
	movements, err := fn(&next, now)
	if err != nil {
		return nil, err
	}
	RecomputeStatus(&next)
	next.UpdatedAt = now

	if err := tx.SaveItem(ctx, &next, expected); err != nil {
		return nil, err
	}
	for i := range movements {
		if err := tx.AppendMovement(ctx, &movements[i]); err != nil {
			return nil, fmt.Errorf("failed to append movement: %w", err)
		}
	}

	plan, err := p.reconcile(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Stock mutation committed",
		zap.String("item_id", id),
		zap.Int64("current_stock", next.CurrentStock),
		zap.Int64("reserved_stock", next.ReservedStock),
		zap.Int("movements", len(movements)))

	return &Result{Item: next, Movements: movements, Alerts: plan}, nil
}

func (p *Processor) reconcile(ctx context.Context, tx Store, item models.InventoryItem) (AlertPlan, error) {
	existing, err := tx.QueryAlerts(ctx, AlertFilter{ItemID: item.ID})
	if err != nil {
		return AlertPlan{}, fmt.Errorf("failed to load alerts: %w", err)
	}

	plan := p.alerts.Reconcile(item, existing)
	for _, group := range [][]models.StockAlert{plan.Create, plan.Update, plan.Resolve} {
		for i := range group {
			if err := tx.SaveAlert(ctx, &group[i]); err != nil {
				return AlertPlan{}, fmt.Errorf("failed to save alert: %w", err)
			}
		}
	}
	return plan, nil
}

func (p *Processor) movement(ctx context.Context, before, after models.InventoryItem, typ models.MovementType,
	reason, reference string, cost decimal.Decimal, now time.Time) models.StockMovement {
	return models.StockMovement{
		ID:             p.newID(),
		ItemID:         before.ID,
		Type:           typ,
		Quantity:       after.CurrentStock - before.CurrentStock,
		QuantityBefore: before.CurrentStock,
		QuantityAfter:  after.CurrentStock,
		Reason:         reason,
		Reference:      reference,
		Location:       after.Location,
		Cost:           cost,
		PerformedBy:    ActorFromContext(ctx),
		CreatedAt:      now,
	}
}
