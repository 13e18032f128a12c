package ledger

import (
	"context"
	"sort"
	"time"

	"stock-ledger/internal/models"

	"github.com/shopspring/decimal"
)

type ReorderConfig struct {
	LookbackDays int
	// LeadTimeDays applies to items that carry no lead time of their own.
	LeadTimeDays int
}

func DefaultReorderConfig() ReorderConfig {
	return ReorderConfig{LookbackDays: 30, LeadTimeDays: 7}
}

type ReorderSuggestion struct {
	ItemID                  string          `json:"item_id"`
	ProductID               string          `json:"product_id"`
	SKU                     string          `json:"sku"`
	Name                    string          `json:"name"`
	Supplier                string          `json:"supplier"`
	CurrentStock            int64           `json:"current_stock"`
	AvailableStock          int64           `json:"available_stock"`
	ReorderPoint            int64           `json:"reorder_point"`
	ReorderQuantity         int64           `json:"reorder_quantity"`
	LeadTimeDays            int             `json:"lead_time_days"`
	AverageDailyConsumption float64         `json:"average_daily_consumption"`
	SuggestedQuantity       int64           `json:"suggested_quantity"`
	EstimatedCost           decimal.Decimal `json:"estimated_cost"`
}

// ReorderAdvisor turns recent consumption into purchase suggestions
type ReorderAdvisor struct {
	store Store
	cfg   ReorderConfig
}

func NewReorderAdvisor(store Store, cfg ReorderConfig) *ReorderAdvisor {
	def := DefaultReorderConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.LeadTimeDays <= 0 {
		cfg.LeadTimeDays = def.LeadTimeDays
	}
	return &ReorderAdvisor{store: store, cfg: cfg}
}

// GenerateReorderSuggestions lists every active item whose available stock
// is at or below its reorder point, with consumption measured over the
// lookback window ending at asOf. Suggestions are ordered by available stock
// then item id.
func (a *ReorderAdvisor) GenerateReorderSuggestions(ctx context.Context, asOf time.Time) ([]ReorderSuggestion, error) {
	from := asOf.AddDate(0, 0, -a.cfg.LookbackDays)

	var out []ReorderSuggestion
	err := a.store.ReadSnapshot(ctx, func(snap Store) error {
		items, err := snap.ListItems(ctx)
		if err != nil {
			return err
		}
		movements, err := snap.QueryMovements(ctx, MovementFilter{From: &from, To: &asOf})
		if err != nil {
			return err
		}

		relocations := relocationRefs(movements)
		consumed := make(map[string]int64)
		for _, m := range movements {
			if consumes(m, relocations) {
				consumed[m.ItemID] += abs(m.Quantity)
			}
		}

		out = out[:0]
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			RecomputeStatus(&item)
			if s, ok := a.suggest(item, consumed[item.ID]); ok {
				out = append(out, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvailableStock != out[j].AvailableStock {
			return out[i].AvailableStock < out[j].AvailableStock
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

func (a *ReorderAdvisor) suggest(item models.InventoryItem, consumed int64) (ReorderSuggestion, bool) {
	if item.Discontinued || item.AvailableStock > item.ReorderPoint {
		return ReorderSuggestion{}, false
	}

	lead := item.LeadTimeDays
	if lead <= 0 {
		lead = a.cfg.LeadTimeDays
	}
	lookback := int64(a.cfg.LookbackDays)

	// ceil(consumed / lookback * lead) in integers
	demand := (consumed*int64(lead) + lookback - 1) / lookback
	qty := demand - item.AvailableStock
	if item.ReorderQuantity > qty {
		qty = item.ReorderQuantity
	}
	if qty < 0 {
		qty = 0
	}

	return ReorderSuggestion{
		ItemID:                  item.ID,
		ProductID:               item.ProductID,
		SKU:                     item.SKU,
		Name:                    item.Name,
		Supplier:                item.Supplier,
		CurrentStock:            item.CurrentStock,
		AvailableStock:          item.AvailableStock,
		ReorderPoint:            item.ReorderPoint,
		ReorderQuantity:         item.ReorderQuantity,
		LeadTimeDays:            lead,
		AverageDailyConsumption: float64(consumed) / float64(lookback),
		SuggestedQuantity:       qty,
		EstimatedCost:           item.Cost.Mul(decimal.NewFromInt(qty)),
	}, true
}
