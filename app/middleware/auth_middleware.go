// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// bearerToken extracts the token from the Authorization header or writes a 401
func bearerToken(c fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
	}
	return token, nil
}

func tokenFailure(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
	case errors.Is(err, services.ErrTokenRevoked):
		return unauthorized(c, "Access token has been revoked", "TOKEN_REVOKED")
	case errors.Is(err, services.ErrTokenInvalid):
		return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
	default:
		return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
	}
}

// Authenticate validates customer access tokens and stores the customer id in locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := bearerToken(c)
		if token == "" {
			return err
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			return tokenFailure(c, err)
		}
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "Refresh tokens cannot be used for API access", "TOKEN_INVALID")
		}

		c.Locals("customer_id", claims.CustomerID)
		c.Locals("token_id", claims.TokenID)
		c.Locals("token_claims", claims)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// AdminAuthenticate validates admin access tokens and sets admin-specific context values
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := bearerToken(c)
		if token == "" {
			return err
		}

		adminClaims, err := m.tokenService.ValidateAdminToken(token)
		if err != nil {
			return tokenFailure(c, err)
		}
		if adminClaims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "Refresh tokens cannot be used for API access", "TOKEN_INVALID")
		}

		c.Locals("admin_id", adminClaims.AdminID)
		c.Locals("token_id", adminClaims.TokenID)
		c.Locals("token_claims", adminClaims)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}
