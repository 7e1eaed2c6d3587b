package service

import (
	"context"
	"testing"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/otp"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	svc    *AuthService
	users  *memoryUserStore
	sender *captureSender
	jwt    *JWTService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	_, client := newTestRedis(t)
	logger := testLogger()
	sender := &captureSender{}
	users := newMemoryUserStore()
	jwtSvc := newTestJWT(t)

	otpSvc := NewOTPService(
		repository.NewRedisOTPRepository(client, logger),
		sender,
		&config.OTPConfig{Length: 6, Expiry: 5 * time.Minute, MaxAttempts: 5},
		logger,
	)
	tokens := NewRefreshTokenService(repository.NewRedisRefreshTokenRepository(client, logger), logger)

	svc := NewAuthService(users, otpSvc, jwtSvc, tokens, sender,
		&config.EmailVerificationConfig{Length: 6, Expiry: 10 * time.Minute}, logger)

	return &authFixture{svc: svc, users: users, sender: sender, jwt: jwtSvc}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{
		Name:     "Asha",
		Email:    "Asha@Example.com",
		Password: "correct-horse",
		Role:     models.RoleFarmer,
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", result.User.Email)
	assert.Equal(t, models.RoleFarmer, result.User.Role)
	assert.False(t, result.User.IsVerified)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	require.Len(t, f.sender.emails, 1)

	claims, err := f.jwt.VerifyToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.Subject)
	assert.Equal(t, TokenTypeAccess, claims.Type)

	_, err = f.svc.Login(ctx, "asha@example.com", "wrong-password")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	login, err := f.svc.Login(ctx, "ASHA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, login.User.ID)
}

func TestAuthRegisterRejects(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1", Role: models.RoleAdmin})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Role must be customer or farmer", apperr.PublicMessage(err))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1", Role: "superuser"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Invalid role superuser", apperr.PublicMessage(err))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "A@example.com", Password: "password2"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "User already exists", apperr.PublicMessage(err))
}

func TestAuthLoginDeactivated(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{Email: "b@example.com", Password: "password1"})
	require.NoError(t, err)

	user := *result.User
	user.IsActive = false
	require.NoError(t, f.users.Update(ctx, &user))

	_, err = f.svc.Login(ctx, "b@example.com", "password1")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestAuthVerifyEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, RegisterInput{Email: "c@example.com", Password: "password1"})
	require.NoError(t, err)
	code := f.sender.lastEmailCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyEmail(ctx, "c@example.com", wrong)
	assert.ErrorIs(t, err, otp.ErrMismatch)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	user, err := f.svc.VerifyEmail(ctx, "c@example.com", code)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Nil(t, user.EmailVerification)

	err = f.svc.ResendVerification(ctx, "c@example.com")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAuthVerifyEmailExpired(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{Email: "d@example.com", Password: "password1"})
	require.NoError(t, err)

	user := *result.User
	user.EmailVerification = &otp.Record{Code: "123456", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, f.users.Update(ctx, &user))

	_, err = f.svc.VerifyEmail(ctx, "d@example.com", "123456")
	assert.ErrorIs(t, err, otp.ErrExpired)

	require.NoError(t, f.svc.ResendVerification(ctx, "d@example.com"))
	_, err = f.svc.VerifyEmail(ctx, "d@example.com", f.sender.lastEmailCode(t))
	assert.NoError(t, err)
}

func TestAuthPhoneLoginCreatesCustomer(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	require.NoError(t, f.svc.InitiatePhoneLogin(ctx, testPhone))
	result, err := f.svc.VerifyPhoneLogin(ctx, testPhone, f.sender.lastSMSCode(t))
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, result.User.Role)
	assert.Equal(t, testPhone, result.User.PhoneNumber)

	require.NoError(t, f.svc.InitiatePhoneLogin(ctx, testPhone))
	again, err := f.svc.VerifyPhoneLogin(ctx, testPhone, f.sender.lastSMSCode(t))
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, again.User.ID)
}

func TestAuthRefreshRotationAndReuse(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{Email: "e@example.com", Password: "password1"})
	require.NoError(t, err)
	first := result.Tokens.RefreshToken

	rotated, err := f.svc.Refresh(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, rotated.RefreshToken)

	firstClaims, err := f.jwt.VerifyToken(first)
	require.NoError(t, err)
	rotatedClaims, err := f.jwt.VerifyToken(rotated.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, firstClaims.FamilyID, rotatedClaims.FamilyID)

	// Replaying the consumed token revokes the whole family.
	_, err = f.svc.Refresh(ctx, first)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestAuthRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{Email: "f@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, result.Tokens.AccessToken)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.Refresh(ctx, "not-a-token")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestAuthLogoutRevokesRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.svc.Register(ctx, RegisterInput{Email: "g@example.com", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, result.User.ID, result.Tokens.RefreshToken))

	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestAuthEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	created, err := f.svc.EnsureAdmin(ctx, "root@example.com", "admin-password", "Root")
	require.NoError(t, err)
	assert.True(t, created)

	login, err := f.svc.Login(ctx, "root@example.com", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, login.User.Role)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "h@example.com", Password: "password1"})
	require.NoError(t, err)
	created, err = f.svc.EnsureAdmin(ctx, "h@example.com", "", "")
	require.NoError(t, err)
	assert.False(t, created)

	promoted, err := f.users.GetByEmail(ctx, "h@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
	assert.True(t, promoted.IsVerified)
}
