package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/otp"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Role        models.Role
}

type AuthResult struct {
	Tokens *models.TokenPair
	User   *models.User
}

// AuthService owns accounts and sessions: e-mail/password registration with
// e-mail verification codes, phone OTP login and refresh-token rotation.
type AuthService struct {
	users         UserStore
	otpService    *OTPService
	jwtService    *JWTService
	refreshTokens *RefreshTokenService
	mailer        EmailSender
	emailCfg      *config.EmailVerificationConfig
	logger        *logrus.Logger
}

func NewAuthService(
	users UserStore,
	otpService *OTPService,
	jwtService *JWTService,
	refreshTokens *RefreshTokenService,
	mailer EmailSender,
	emailCfg *config.EmailVerificationConfig,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		otpService:    otpService,
		jwtService:    jwtService,
		refreshTokens: refreshTokens,
		mailer:        mailer,
		emailCfg:      emailCfg,
		logger:        logger,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role " + string(role))
	}
	if !role.OneOf(models.RoleCustomer, models.RoleFarmer) {
		return nil, apperr.Validation("Role must be customer or farmer")
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if existing != nil {
		return nil, apperr.Validation("User already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to hash password: %w", err))
	}

	record, err := otp.NewRecord(s.emailCfg.Length, s.emailCfg.Expiry)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &models.User{
		ID:                uuid.New().String(),
		Email:             email,
		PhoneNumber:       in.PhoneNumber,
		Name:              strings.TrimSpace(in.Name),
		Role:              role,
		PasswordHash:      string(hash),
		IsActive:          true,
		EmailVerification: record,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperr.Validation("User already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.sendVerificationEmail(ctx, user)

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User registered")

	return s.issue(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is deactivated")
	}

	return s.issue(ctx, user)
}

// VerifyEmail checks code against the user's pending verification record.
// Verifying an already verified account is a no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	if user.IsVerified {
		return user, nil
	}

	if err := user.EmailVerification.Verify(code); err != nil {
		switch {
		case errors.Is(err, otp.ErrExpired):
			return nil, apperr.Wrap(apperr.KindValidation, "OTP has expired", err)
		case errors.Is(err, otp.ErrMismatch):
			return nil, apperr.Wrap(apperr.KindValidation, "Incorrect OTP", err)
		default:
			return nil, apperr.Wrap(apperr.KindValidation, "Invalid OTP", err)
		}
	}

	user.IsVerified = true
	user.EmailVerification = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}

	return user, nil
}

// ResendVerification replaces the pending e-mail code and sends it again.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return apperr.Internal(err)
	}
	if user == nil {
		return apperr.NotFound("User not found")
	}
	if user.IsVerified {
		return apperr.Validation("Email is already verified")
	}

	record, err := otp.NewRecord(s.emailCfg.Length, s.emailCfg.Expiry)
	if err != nil {
		return apperr.Internal(err)
	}
	user.EmailVerification = record
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}

	s.sendVerificationEmail(ctx, user)
	return nil
}

func (s *AuthService) InitiatePhoneLogin(ctx context.Context, phoneNumber string) error {
	if err := s.otpService.GenerateOTP(ctx, phoneNumber); err != nil {
		return apperr.Wrap(apperr.KindInternal, "Failed to generate OTP", err)
	}
	return nil
}

// VerifyPhoneLogin consumes the phone OTP and signs in the phone's user,
// creating a customer account on first login.
func (s *AuthService) VerifyPhoneLogin(ctx context.Context, phoneNumber, code string) (*AuthResult, error) {
	if err := s.otpService.VerifyOTP(ctx, phoneNumber, code); err != nil {
		return nil, err
	}

	user, err := s.getOrCreateByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is deactivated")
	}

	return s.issue(ctx, user)
}

func (s *AuthService) getOrCreateByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	user, err := s.users.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	newUser := &models.User{
		ID:          uuid.New().String(),
		PhoneNumber: phoneNumber,
		Role:        models.RoleCustomer,
		IsActive:    true,
		IsVerified:  true,
	}
	if err := s.users.Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			// Lost a race with a concurrent first login.
			return s.users.GetByPhoneNumber(ctx, phoneNumber)
		}
		return nil, err
	}

	return newUser, nil
}

// Refresh exchanges a refresh token for a new pair in the same family.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.jwtService.VerifyToken(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Invalid refresh token", err)
	}

	if claims.Type != TokenTypeRefresh {
		return nil, apperr.Unauthorized("Token is not a refresh token")
	}

	if err := s.refreshTokens.Consume(ctx, claims); err != nil {
		switch {
		case errors.Is(err, ErrRefreshTokenRevoked):
			return nil, apperr.Wrap(apperr.KindUnauthorized, "Refresh token has been revoked", err)
		case errors.Is(err, ErrRefreshTokenUnknown):
			return nil, apperr.Wrap(apperr.KindUnauthorized, "Invalid refresh token", err)
		default:
			return nil, apperr.Internal(err)
		}
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.Unauthorized("Account is no longer available")
	}

	pair, refreshClaims, err := s.jwtService.GenerateTokenPair(user, claims.FamilyID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.refreshTokens.Store(ctx, refreshClaims); err != nil {
		return nil, apperr.Internal(err)
	}

	return pair, nil
}

// Logout revokes refreshToken when it belongs to userID.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.jwtService.VerifyToken(refreshToken)
	if err != nil || claims.Type != TokenTypeRefresh || claims.Subject != userID {
		return nil
	}

	if err := s.refreshTokens.Revoke(ctx, claims.ID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	return user, nil
}

// EnsureAdmin promotes the user with email to admin, creating the account
// when it does not exist. It reports whether a new account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}

	if existing != nil {
		existing.Role = models.RoleAdmin
		existing.IsActive = true
		existing.IsVerified = true
		existing.EmailVerification = nil
		if err := s.users.Update(ctx, existing); err != nil {
			return false, err
		}
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
		IsActive:     true,
		IsVerified:   true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, refreshClaims, err := s.jwtService.GenerateTokenPair(user, "")
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.refreshTokens.Store(ctx, refreshClaims); err != nil {
		return nil, apperr.Internal(err)
	}

	return &AuthResult{Tokens: pair, User: user}, nil
}

func (s *AuthService) sendVerificationEmail(ctx context.Context, user *models.User) {
	if user.Email == "" || user.EmailVerification == nil {
		return
	}

	body := fmt.Sprintf("Your Farmlink verification code is %s. It expires in %d minutes.",
		user.EmailVerification.Code, int(s.emailCfg.Expiry.Minutes()))
	if err := s.mailer.SendEmail(ctx, user.Email, "Verify your Farmlink account", body); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to send verification email")
	}
}
