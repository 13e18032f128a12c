package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const itemColumns = `id, product_id, sku, name, current_stock, reserved_stock, available_stock,
	min_stock_level, max_stock_level, reorder_point, reorder_quantity, lead_time_days,
	cost, price, status, discontinued, location, supplier,
	last_restocked, last_sold, last_counted, version, created_at, updated_at`

// LoadItem retrieves an item by ID
func (r *repo) LoadItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	query := "SELECT " + itemColumns + " FROM inventory_items WHERE id = $1"
	if r.lockRows {
		query += " FOR UPDATE"
	}

	var item models.InventoryItem
	err := sqlx.GetContext(ctx, r.q, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems retrieves all items
func (r *repo) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := sqlx.SelectContext(ctx, r.q, &items, "SELECT "+itemColumns+" FROM inventory_items ORDER BY id")
	return items, err
}

// CreateItem inserts a new item
func (r *repo) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if item.Version == 0 {
		item.Version = 1
	}
	query := `
		INSERT INTO inventory_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err := r.q.ExecContext(ctx, query,
		item.ID, item.ProductID, item.SKU, item.Name,
		item.CurrentStock, item.ReservedStock, item.AvailableStock,
		item.MinStockLevel, item.MaxStockLevel, item.ReorderPoint, item.ReorderQuantity, item.LeadTimeDays,
		item.Cost, item.Price, item.Status, item.Discontinued, item.Location, item.Supplier,
		item.LastRestocked, item.LastSold, item.LastCounted, item.Version, item.CreatedAt, item.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: id %s or sku %s", ledger.ErrDuplicateItem, item.ID, item.SKU)
	}
	return err
}

// SaveItem writes item if its stored version still equals expectedVersion
func (r *repo) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	query := `
		UPDATE inventory_items SET
			product_id = $1, sku = $2, name = $3,
			current_stock = $4, reserved_stock = $5, available_stock = $6,
			min_stock_level = $7, max_stock_level = $8, reorder_point = $9, reorder_quantity = $10,
			lead_time_days = $11, cost = $12, price = $13, status = $14, discontinued = $15,
			location = $16, supplier = $17, last_restocked = $18, last_sold = $19, last_counted = $20,
			updated_at = $21, version = version + 1
		WHERE id = $22 AND version = $23`

	res, err := r.q.ExecContext(ctx, query,
		item.ProductID, item.SKU, item.Name,
		item.CurrentStock, item.ReservedStock, item.AvailableStock,
		item.MinStockLevel, item.MaxStockLevel, item.ReorderPoint, item.ReorderQuantity,
		item.LeadTimeDays, item.Cost, item.Price, item.Status, item.Discontinued,
		item.Location, item.Supplier, item.LastRestocked, item.LastSold, item.LastCounted,
		item.UpdatedAt, item.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := sqlx.GetContext(ctx, r.q, &exists,
			"SELECT EXISTS(SELECT 1 FROM inventory_items WHERE id = $1)", item.ID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, item.ID)
		}
		return fmt.Errorf("%w: item %s, expected version %d", ledger.ErrConcurrentModification, item.ID, expectedVersion)
	}

	item.Version = expectedVersion + 1
	return nil
}
