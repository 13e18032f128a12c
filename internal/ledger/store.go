package ledger

import (
	"context"
	"time"

	"stock-ledger/internal/models"
)

// MovementFilter selects movements; zero values match everything.
type MovementFilter struct {
	ItemID    string
	Type      models.MovementType
	Reference string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// AlertFilter selects alerts; zero values match everything.
type AlertFilter struct {
	ItemID string
	Status models.AlertStatus
}

// Store is the persistence port of the ledger. Implementations return
// ErrNotFound for missing items and ErrConcurrentModification when SaveItem
// observes a version other than expectedVersion.
type Store interface {
	LoadItem(ctx context.Context, id string) (*models.InventoryItem, error)
	ListItems(ctx context.Context) ([]models.InventoryItem, error)
	CreateItem(ctx context.Context, item *models.InventoryItem) error
	// SaveItem persists item and sets item.Version to expectedVersion+1.
	SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error

	AppendMovement(ctx context.Context, m *models.StockMovement) error
	QueryMovements(ctx context.Context, f MovementFilter) ([]models.StockMovement, error)

	SaveAlert(ctx context.Context, a *models.StockAlert) error
	GetAlert(ctx context.Context, id string) (*models.StockAlert, error)
	QueryAlerts(ctx context.Context, f AlertFilter) ([]models.StockAlert, error)

	// WithTx runs fn against a transactional view; all writes made through
	// tx commit together or not at all.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, fn func(snap Store) error) error
}
