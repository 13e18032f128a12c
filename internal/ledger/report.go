package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stock-ledger/internal/models"

	"github.com/shopspring/decimal"
)

type ReportConfig struct {
	// TopN caps the top selling and slow moving lists
	TopN int
}

type InventoryReport struct {
	From               time.Time                 `json:"from"`
	To                 time.Time                 `json:"to"`
	TotalItems         int                       `json:"total_items"`
	TotalValue         decimal.Decimal           `json:"total_value"`
	StatusCounts       map[models.ItemStatus]int `json:"status_counts"`
	AverageStockValue  decimal.Decimal           `json:"average_stock_value"`
	CostOfGoodsSold    decimal.Decimal           `json:"cost_of_goods_sold"`
	StockTurnover      decimal.Decimal           `json:"stock_turnover"`
	TopSellingProducts []ProductSales            `json:"top_selling_products"`
	SlowMovingProducts []SlowMovingProduct       `json:"slow_moving_products"`
}

type ProductSales struct {
	ItemID       string          `json:"item_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	QuantitySold int64           `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type SlowMovingProduct struct {
	ItemID       string     `json:"item_id"`
	SKU          string     `json:"sku"`
	Name         string     `json:"name"`
	CurrentStock int64      `json:"current_stock"`
	LastSold     *time.Time `json:"last_sold,omitempty"`
	// DaysSinceLastSold is -1 when the item was never sold
	DaysSinceLastSold int `json:"days_since_last_sold"`
}

// ReportAggregator computes read-only summaries over a consistent snapshot
type ReportAggregator struct {
	store Store
	cfg   ReportConfig
}

func NewReportAggregator(store Store, cfg ReportConfig) *ReportAggregator {
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	return &ReportAggregator{store: store, cfg: cfg}
}

// GetInventoryReport summarizes stock and movements over [from, to].
// Stock levels at the range boundaries are reconstructed by walking the
// movement history back from current stock.
func (r *ReportAggregator) GetInventoryReport(ctx context.Context, from, to time.Time) (*InventoryReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidRange)
	}

	var report *InventoryReport
	err := r.store.ReadSnapshot(ctx, func(snap Store) error {
		items, err := snap.ListItems(ctx)
		if err != nil {
			return err
		}
		movements, err := snap.QueryMovements(ctx, MovementFilter{From: &from})
		if err != nil {
			return err
		}
		report, err = r.aggregate(ctx, from, to, items, movements)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

type itemActivity struct {
	inRange    int64
	afterRange int64
	sold       int64
	cogs       decimal.Decimal
}

func (r *ReportAggregator) aggregate(ctx context.Context, from, to time.Time,
	items []models.InventoryItem, movements []models.StockMovement) (*InventoryReport, error) {
	activity := make(map[string]*itemActivity, len(items))
	relocations := relocationRefs(movements)
	for _, m := range movements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		act, ok := activity[m.ItemID]
		if !ok {
			act = &itemActivity{}
			activity[m.ItemID] = act
		}
		if m.CreatedAt.After(to) {
			act.afterRange += m.Quantity
			continue
		}
		act.inRange += m.Quantity
		if consumes(m, relocations) {
			sold := abs(m.Quantity)
			act.sold += sold
			act.cogs = act.cogs.Add(m.Cost.Mul(decimal.NewFromInt(sold)))
		}
	}

	report := &InventoryReport{
		From:               from,
		To:                 to,
		TotalItems:         len(items),
		TotalValue:         decimal.Zero,
		StatusCounts:       make(map[models.ItemStatus]int),
		AverageStockValue:  decimal.Zero,
		CostOfGoodsSold:    decimal.Zero,
		StockTurnover:      decimal.Zero,
		TopSellingProducts: []ProductSales{},
		SlowMovingProducts: []SlowMovingProduct{},
	}
	two := decimal.NewFromInt(2)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		RecomputeStatus(&item)
		report.StatusCounts[item.Status]++
		report.TotalValue = report.TotalValue.Add(item.Cost.Mul(decimal.NewFromInt(item.CurrentStock)))

		act := activity[item.ID]
		if act == nil {
			act = &itemActivity{}
		}
		end := item.CurrentStock - act.afterRange
		start := end - act.inRange
		avg := decimal.NewFromInt(start + end).Div(two)
		report.AverageStockValue = report.AverageStockValue.Add(avg.Mul(item.Cost))
		report.CostOfGoodsSold = report.CostOfGoodsSold.Add(act.cogs)

		if act.sold > 0 {
			report.TopSellingProducts = append(report.TopSellingProducts, ProductSales{
				ItemID:       item.ID,
				SKU:          item.SKU,
				Name:         item.Name,
				QuantitySold: act.sold,
				Revenue:      item.Price.Mul(decimal.NewFromInt(act.sold)),
			})
		} else if !item.Discontinued {
			report.SlowMovingProducts = append(report.SlowMovingProducts, slowMover(item, to))
		}
	}

	if !report.AverageStockValue.IsZero() {
		report.StockTurnover = report.CostOfGoodsSold.Div(report.AverageStockValue).Round(4)
	}

	sort.Slice(report.TopSellingProducts, func(i, j int) bool {
		a, b := report.TopSellingProducts[i], report.TopSellingProducts[j]
		if a.QuantitySold != b.QuantitySold {
			return a.QuantitySold > b.QuantitySold
		}
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.ItemID < b.ItemID
	})
	sort.Slice(report.SlowMovingProducts, func(i, j int) bool {
		a, b := report.SlowMovingProducts[i], report.SlowMovingProducts[j]
		aNever, bNever := a.LastSold == nil, b.LastSold == nil
		if aNever != bNever {
			return aNever
		}
		if a.DaysSinceLastSold != b.DaysSinceLastSold {
			return a.DaysSinceLastSold > b.DaysSinceLastSold
		}
		return a.ItemID < b.ItemID
	})

	if len(report.TopSellingProducts) > r.cfg.TopN {
		report.TopSellingProducts = report.TopSellingProducts[:r.cfg.TopN]
	}
	if len(report.SlowMovingProducts) > r.cfg.TopN {
		report.SlowMovingProducts = report.SlowMovingProducts[:r.cfg.TopN]
	}
	return report, nil
}

func slowMover(item models.InventoryItem, to time.Time) SlowMovingProduct {
	s := SlowMovingProduct{
		ItemID:            item.ID,
		SKU:               item.SKU,
		Name:              item.Name,
		CurrentStock:      item.CurrentStock,
		LastSold:          item.LastSold,
		DaysSinceLastSold: -1,
	}
	if item.LastSold != nil {
		days := int(to.Sub(*item.LastSold).Hours() / 24)
		if days < 0 {
			days = 0
		}
		s.DaysSinceLastSold = days
	}
	return s
}
