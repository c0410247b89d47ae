package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/gofiber/fiber/v3"
)

// AuthHandlerInterface defines the contract for session token handlers.
// Initial token pairs come from the identity service that shares the signing key.
type AuthHandlerInterface interface {
	Refresh(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
}

// AuthHandler rotates and revokes API bearer tokens
type AuthHandler struct {
	baseHandler
	tokenService services.TokenService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokenService services.TokenService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		baseHandler:  newBaseHandler(timeout),
		tokenService: tokenService,
	}
}

// Refresh exchanges a refresh token for a new pair
// @Summary Refresh Tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.TokenPairResponse}
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Refresh token expired, revoked or invalid"
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	access, refresh, err := h.tokenService.RefreshToken(req.RefreshToken)
	if err != nil {
		return h.tokenError(c, err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Tokens refreshed successfully", dto.TokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

// Logout revokes the bearer access token and, when given, the matching refresh token
// @Summary Logout
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body dto.LogoutRequest false "Refresh token to revoke"
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse "Missing or invalid token"
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER", nil)
	}
	access := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	var req dto.LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.tokenService.RevokeToken(access); err != nil {
		return h.tokenError(c, err)
	}
	if req.RefreshToken != "" {
		if err := h.tokenService.RevokeToken(req.RefreshToken); err != nil && !errors.Is(err, services.ErrTokenExpired) {
			return h.tokenError(c, err)
		}
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) tokenError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Token has expired", "TOKEN_EXPIRED", nil)
	case errors.Is(err, services.ErrTokenRevoked):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Token has been revoked", "TOKEN_REVOKED", nil)
	default:
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token", "TOKEN_INVALID", nil)
	}
}
