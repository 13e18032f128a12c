package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

// SaveAlert inserts or updates an alert
func (r *repo) SaveAlert(ctx context.Context, a *models.StockAlert) error {
	query := `
		INSERT INTO stock_alerts (id, item_id, type, current_stock, threshold, priority, status,
			created_at, acknowledged_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			current_stock = EXCLUDED.current_stock,
			threshold = EXCLUDED.threshold,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_at = EXCLUDED.resolved_at`

	_, err := r.q.ExecContext(ctx, query,
		a.ID, a.ItemID, a.Type, a.CurrentStock, a.Threshold, a.Priority, a.Status,
		a.CreatedAt, a.AcknowledgedAt, a.ResolvedAt)
	return err
}

// GetAlert retrieves an alert by ID
func (r *repo) GetAlert(ctx context.Context, id string) (*models.StockAlert, error) {
	var a models.StockAlert
	err := sqlx.GetContext(ctx, r.q, &a, "SELECT * FROM stock_alerts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// QueryAlerts retrieves alerts oldest first
func (r *repo) QueryAlerts(ctx context.Context, f ledger.AlertFilter) ([]models.StockAlert, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}

	query := "SELECT * FROM stock_alerts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	var alerts []models.StockAlert
	err := sqlx.SelectContext(ctx, r.q, &alerts, r.q.Rebind(query), args...)
	return alerts, err
}
