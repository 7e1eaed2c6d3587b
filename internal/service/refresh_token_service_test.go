package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenConsumeOnce(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	svc := NewRefreshTokenService(repository.NewRedisRefreshTokenRepository(client, testLogger()), testLogger())

	_, claims, err := newTestJWT(t).GenerateTokenPair(&models.User{ID: "u1", Role: models.RoleCustomer}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Store(ctx, claims))

	require.NoError(t, svc.Consume(ctx, claims))
	assert.ErrorIs(t, svc.Consume(ctx, claims), ErrRefreshTokenRevoked)
}

func TestRefreshTokenConsumeUnknown(t *testing.T) {
	_, client := newTestRedis(t)
	svc := NewRefreshTokenService(repository.NewRedisRefreshTokenRepository(client, testLogger()), testLogger())

	_, claims, err := newTestJWT(t).GenerateTokenPair(&models.User{ID: "u1"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Consume(context.Background(), claims), ErrRefreshTokenUnknown)
}

func TestRefreshTokenConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := repository.NewRedisRefreshTokenRepository(client, testLogger())
	svc := NewRefreshTokenService(store, testLogger())
	jwtSvc := newTestJWT(t)

	for round := 0; round < 20; round++ {
		_, claims, err := jwtSvc.GenerateTokenPair(&models.User{ID: "u1"}, "")
		require.NoError(t, err)
		require.NoError(t, svc.Store(ctx, claims))

		var wg sync.WaitGroup
		var succeeded, reused atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch err := svc.Consume(ctx, claims); err {
				case nil:
					succeeded.Add(1)
				case ErrRefreshTokenRevoked:
					reused.Add(1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), succeeded.Load(), "round %d", round)
		require.Equal(t, int32(7), reused.Load(), "round %d", round)
	}
}
