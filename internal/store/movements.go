package store

import (
	"context"
	"fmt"
	"strings"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// AppendMovement inserts a ledger entry
func (r *repo) AppendMovement(ctx context.Context, m *models.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, item_id, type, quantity, quantity_before, quantity_after,
			reason, reference, location, cost, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.ItemID, m.Type, m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.Reason, m.Reference, m.Location, m.Cost, m.PerformedBy, m.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, m.ItemID)
	}
	return err
}

// QueryMovements retrieves movements oldest first
func (r *repo) QueryMovements(ctx context.Context, f ledger.MovementFilter) ([]models.StockMovement, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Reference != "" {
		conds = append(conds, "reference = ?")
		args = append(args, f.Reference)
	}
	if f.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.To)
	}

	query := "SELECT * FROM stock_movements"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var movements []models.StockMovement
	err := sqlx.SelectContext(ctx, r.q, &movements, r.q.Rebind(query), args...)
	return movements, err
}
