package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/sirupsen/logrus"
)

var (
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	ErrRefreshTokenUnknown = errors.New("refresh token unknown")
)

type RefreshTokenService struct {
	store  RefreshTokenStore
	logger *logrus.Logger
}

func NewRefreshTokenService(store RefreshTokenStore, logger *logrus.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		store:  store,
		logger: logger,
	}
}

// Store records the refresh token described by claims.
func (s *RefreshTokenService) Store(ctx context.Context, claims *Claims) error {
	tokenData := models.RefreshTokenData{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		FamilyID:  claims.FamilyID,
		CreatedAt: time.Now(),
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if err := s.store.Store(ctx, tokenData); err != nil {
		s.logger.WithError(err).Error("Failed to store refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// Consume revokes the presented refresh token so it can be exchanged exactly
// once, even under concurrent requests. Presenting an already revoked token
// is treated as theft: the whole family is revoked and ErrRefreshTokenRevoked
// returned.
func (s *RefreshTokenService) Consume(ctx context.Context, claims *Claims) error {
	claimed, err := s.store.RevokeOnce(ctx, claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRefreshTokenUnknown
	}
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if !claimed {
		s.logger.WithFields(logrus.Fields{
			"user_id":   claims.Subject,
			"family_id": claims.FamilyID,
		}).Warn("Revoked refresh token reused, revoking family")
		if err := s.store.RevokeFamily(ctx, claims.FamilyID); err != nil {
			s.logger.WithError(err).Error("Failed to revoke token family")
		}
		return ErrRefreshTokenRevoked
	}

	return nil
}

// Revoke revokes a single token; unknown tokens are ignored.
func (s *RefreshTokenService) Revoke(ctx context.Context, jti string) error {
	if err := s.store.Revoke(ctx, jti); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
