package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/middleware"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	authService  *service.AuthService
	maxBodyBytes int64
	logger       *logrus.Logger
}

func NewAuthHandlers(authService *service.AuthService, maxBodyBytes int64, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService:  authService,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

type RegisterRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	Role        string `json:"role" validate:"omitempty,oneof=customer farmer"`
	PhoneNumber string `json:"phone" validate:"omitempty,e164"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"omitempty,numeric,max=18"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type InitiateOTPRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	OTP         string `json:"otp" validate:"omitempty,numeric,min=4,max=8"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	Success      bool         `json:"success"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user,omitempty"`
}

type UserResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

func tokenResponse(pair *models.TokenPair, user *models.User) TokenResponse {
	return TokenResponse{
		Success:      true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User:         user,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Role:        models.Role(req.Role),
	})
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, tokenResponse(result.Tokens, result.User))
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse(result.Tokens, result.User))
}

func (h *AuthHandlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	user, err := h.authService.VerifyEmail(r.Context(), req.Email, strings.TrimSpace(req.OTP))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Verification code sent"})
}

func (h *AuthHandlers) InitiateOTP(w http.ResponseWriter, r *http.Request) {
	var req InitiateOTPRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if err := h.authService.InitiatePhoneLogin(r.Context(), phoneNumber); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "OTP sent successfully"})
}

func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	result, err := h.authService.VerifyPhoneLogin(r.Context(), phoneNumber, strings.TrimSpace(req.OTP))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse(result.Tokens, result.User))
}

func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse(pair, nil))
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, h.logger, apperr.Unauthorized("Invalid token"))
		return
	}

	// The refresh token is optional; an empty body is fine.
	var req LogoutRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, h.logger, err)
		return
	}

	if err := h.authService.Logout(r.Context(), claims.Subject, req.RefreshToken); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logged out successfully"})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, h.logger, apperr.Unauthorized("Invalid token"))
		return
	}

	user, err := h.authService.CurrentUser(r.Context(), claims.Subject)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

// normalizePhone prefixes a missing "+" and checks the result is E.164.
func normalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if err := validate.Var(phone, "e164"); err != nil {
		return "", apperr.Validation("Invalid phone number format")
	}
	return phone, nil
}
