package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/otp"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "+15550001234"

func newTestOTPService(t *testing.T, sender *captureSender) (*OTPService, *repository.RedisOTPRepository) {
	t.Helper()
	_, client := newTestRedis(t)
	store := repository.NewRedisOTPRepository(client, testLogger())
	cfg := &config.OTPConfig{Length: 6, Expiry: 5 * time.Minute, MaxAttempts: 3}
	return NewOTPService(store, sender, cfg, testLogger()), store
}

func TestOTPServiceGenerateAndVerify(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, store := newTestOTPService(t, sender)

	require.NoError(t, svc.GenerateOTP(ctx, testPhone))
	code := sender.lastSMSCode(t)

	stored, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.NotEqual(t, code, stored.OTPHash)

	require.NoError(t, svc.VerifyOTP(ctx, testPhone, code))

	_, err = store.Get(ctx, testPhone)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = svc.VerifyOTP(ctx, testPhone, code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestOTPServiceMissingCode(t *testing.T) {
	svc, _ := newTestOTPService(t, &captureSender{})

	err := svc.VerifyOTP(context.Background(), testPhone, "")
	assert.ErrorIs(t, err, otp.ErrMissingInput)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestOTPServiceAttemptLimit(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, store := newTestOTPService(t, sender)

	require.NoError(t, svc.GenerateOTP(ctx, testPhone))
	code := sender.lastSMSCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		err := svc.VerifyOTP(ctx, testPhone, wrong)
		assert.ErrorIs(t, err, otp.ErrMismatch)
	}

	stored, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)

	err = svc.VerifyOTP(ctx, testPhone, code)
	assert.ErrorIs(t, err, ErrOTPTooManyAttempts)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))

	_, err = store.Get(ctx, testPhone)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOTPServiceDeliveryFailureDiscardsCode(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{err: errors.New("provider down")}
	svc, store := newTestOTPService(t, sender)

	require.Error(t, svc.GenerateOTP(ctx, testPhone))

	_, err := store.Get(ctx, testPhone)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOTPServiceRegenerateReplacesCode(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, _ := newTestOTPService(t, sender)

	require.NoError(t, svc.GenerateOTP(ctx, testPhone))
	first := sender.lastSMSCode(t)
	require.NoError(t, svc.GenerateOTP(ctx, testPhone))
	second := sender.lastSMSCode(t)

	if first != second {
		assert.ErrorIs(t, svc.VerifyOTP(ctx, testPhone, first), otp.ErrMismatch)
	}
	assert.NoError(t, svc.VerifyOTP(ctx, testPhone, second))
}

func TestOTPServiceConcurrentGuessesRespectCap(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, store := newTestOTPService(t, sender)

	require.NoError(t, svc.GenerateOTP(ctx, testPhone))
	wrong := "000000"
	if sender.lastSMSCode(t) == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	var mismatches atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(svc.VerifyOTP(ctx, testPhone, wrong), otp.ErrMismatch) {
				mismatches.Add(1)
			}
		}()
	}
	wg.Wait()

	// MaxAttempts is 3: only three guesses reach the comparison.
	assert.Equal(t, int32(3), mismatches.Load())
	_, err := store.Get(ctx, testPhone)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
