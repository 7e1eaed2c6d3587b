package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/otp"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOTPNotFound        = errors.New("otp not found or expired")
	ErrOTPTooManyAttempts = errors.New("maximum otp attempts exceeded")
)

// OTPService issues phone login codes. Codes are bcrypt-hashed at rest and
// invalidated after MaxAttempts wrong guesses.
type OTPService struct {
	store  OTPStore
	sms    SMSSender
	cfg    *config.OTPConfig
	logger *logrus.Logger
}

func NewOTPService(store OTPStore, sms SMSSender, cfg *config.OTPConfig, logger *logrus.Logger) *OTPService {
	return &OTPService{
		store:  store,
		sms:    sms,
		cfg:    cfg,
		logger: logger,
	}
}

// GenerateOTP creates a code for phoneNumber, replacing any pending one, and
// sends it by SMS.
func (s *OTPService) GenerateOTP(ctx context.Context, phoneNumber string) error {
	code, err := otp.Generate(s.cfg.Length)
	if err != nil {
		return fmt.Errorf("failed to generate OTP: %w", err)
	}

	hashedOTP, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash OTP: %w", err)
	}

	now := time.Now()
	otpData := models.OTPData{
		OTPHash:   string(hashedOTP),
		Phone:     phoneNumber,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
	}

	if err := s.store.Save(ctx, otpData); err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	body := fmt.Sprintf("Your Farmlink verification code is %s. It expires in %d minutes.",
		code, int(s.cfg.Expiry.Minutes()))
	if err := s.sms.SendSMS(ctx, phoneNumber, body); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to deliver OTP")
		_ = s.store.Delete(ctx, phoneNumber)
		return fmt.Errorf("failed to deliver OTP: %w", err)
	}

	s.logger.WithField("phone", phoneNumber).Info("OTP issued")
	return nil
}

// VerifyOTP consumes the pending code for phoneNumber. Failures are
// *apperr.Error values wrapping the otp package sentinels.
func (s *OTPService) VerifyOTP(ctx context.Context, phoneNumber, code string) error {
	if code == "" {
		return apperr.Wrap(apperr.KindValidation, "OTP is required", otp.ErrMissingInput)
	}

	otpData, err := s.store.Get(ctx, phoneNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindUnauthorized, "Invalid or expired OTP", ErrOTPNotFound)
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if otp.IsExpired(otpData.ExpiresAt) {
		_ = s.store.Delete(ctx, phoneNumber)
		return apperr.Wrap(apperr.KindUnauthorized, "OTP has expired", otp.ErrExpired)
	}

	// Every check spends an attempt before the comparison so parallel
	// guesses cannot exceed the cap.
	attempts, err := s.store.IncrementAttempts(ctx, phoneNumber)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.KindUnauthorized, "Invalid or expired OTP", ErrOTPNotFound)
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if attempts > s.cfg.MaxAttempts {
		_ = s.store.Delete(ctx, phoneNumber)
		return apperr.Wrap(apperr.KindRateLimited, "Maximum OTP attempts exceeded", ErrOTPTooManyAttempts)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(otpData.OTPHash), []byte(code)); err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, "Incorrect OTP", otp.ErrMismatch)
	}

	if err := s.store.Delete(ctx, phoneNumber); err != nil {
		s.logger.WithError(err).Warn("Failed to delete consumed OTP")
	}
	return nil
}
