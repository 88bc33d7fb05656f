package repository

import (
	"context"

	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

// UserRepository defines the interface for identity-provider user records.
type UserRepository interface {
	Create(ctx context.Context, email, passwordHash, displayName string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, email string) (bool, error)

	// Federated account linking (provider-agnostic)
	LinkExternalAccount(ctx context.Context, email, provider, externalID string) error
	FindByExternalID(ctx context.Context, provider, externalID string) (*models.User, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users UserRepository
}
