package service

import (
	"context"

	"github.com/farmlink/farmlink/internal/models"
)

// UserStore lookups return (nil, nil) when the user does not exist.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhoneNumber(ctx context.Context, phone string) (*models.User, error)
}

// ProductStore.Get returns (nil, nil) when the product does not exist.
type ProductStore interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Get(ctx context.Context, id string) (*models.Product, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
}

// OTPStore holds phone login codes; Get and IncrementAttempts report
// repository.ErrNotFound. IncrementAttempts returns the new count atomically.
type OTPStore interface {
	Save(ctx context.Context, data models.OTPData) error
	Get(ctx context.Context, phone string) (*models.OTPData, error)
	IncrementAttempts(ctx context.Context, phone string) (int, error)
	Delete(ctx context.Context, phone string) error
}

// RefreshTokenStore holds issued refresh tokens; Get, Revoke and RevokeOnce
// report repository.ErrNotFound. RevokeOnce must be atomic: of concurrent
// callers for one jti, at most one sees true.
type RefreshTokenStore interface {
	Store(ctx context.Context, data models.RefreshTokenData) error
	Get(ctx context.Context, jti string) (*models.RefreshTokenData, error)
	Revoke(ctx context.Context, jti string) error
	RevokeOnce(ctx context.Context, jti string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) error
}
