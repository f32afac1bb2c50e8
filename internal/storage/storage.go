// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

// ErrNotFound is returned when no attempt matches.
var ErrNotFound = errors.New("attempt not found")

// Journal определяет интерфейс для журнала торговых попыток
type Journal interface {
	// SaveAttempt inserts or replaces the attempt by ID.
	SaveAttempt(ctx context.Context, a *models.Attempt) error
	GetAttempt(ctx context.Context, id string) (*models.Attempt, error)
	FindByHash(ctx context.Context, txHash string) (*models.Attempt, error)
	ListAttempts(ctx context.Context, owner string, limit, offset int) ([]*models.Attempt, error)
	// ListUnsettled returns attempts that have a trade hash but no terminal state.
	ListUnsettled(ctx context.Context) ([]*models.Attempt, error)

	RunMigrations(ctx context.Context) error
	Close() error
}
