package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/adbridge/app/handlers"
	"github.com/amirphl/adbridge/app/middleware"
	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (Router, services.TokenService) {
	t.Helper()

	tokens, err := services.NewTokenService(time.Hour, 24*time.Hour, "adbridge-test", "adbridge-api", false, "", "", "router-test-secret-key-with-enough-length")
	require.NoError(t, err)

	cfg := &config.ProductionConfig{
		Security: config.SecurityConfig{GlobalRateLimit: 100, RateLimitWindow: time.Minute},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Deployment: config.DeploymentConfig{
			Version: "test",
		},
	}

	h := Handlers{
		Auth:           handlers.NewAuthHandler(tokens, time.Second),
		Campaign:       handlers.NewCampaignHandler(nil, time.Second),
		AdPlatform:     handlers.NewAdPlatformHandler(nil, nil, nil, time.Second),
		Delivery:       handlers.NewDeliveryHandler(nil, time.Second),
		DeliveryReport: handlers.NewDeliveryReportAdminHandler(nil, time.Second),
	}

	r := NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokens), checks)
	r.SetupRoutes()
	return r, tokens
}

func get(t *testing.T, r Router, path, bearer string) (*http.Response, []byte) {
	t.Helper()
	return send(t, r, http.MethodGet, path, bearer, "")
}

func send(t *testing.T, r Router, method, path, bearer, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		resp, body := get(t, r, "/api/v1/health", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		var decoded struct {
			Success bool `json:"success"`
			Data    struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.True(t, decoded.Success)
		assert.Equal(t, "ok", decoded.Data.Status)
		assert.Equal(t, "ok", decoded.Data.Checks["database"])
	})

	t.Run("degraded", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		resp, body := get(t, r, "/api/v1/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, string(body), "connection refused")
		assert.Contains(t, string(body), `"degraded"`)
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, tokens := newTestRouter(t, nil)

	resp, body := get(t, r, "/api/v1/campaigns/abc/ad-platform/connection", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "MISSING_AUTHORIZATION_HEADER")

	resp, body = get(t, r, "/api/v1/campaigns/abc", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "TOKEN_INVALID")

	// customer tokens do not open admin routes
	access, _, err := tokens.GenerateTokens(42)
	require.NoError(t, err)
	resp, _ = get(t, r, "/api/v1/admin/ad-platform/deliveries", access)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRefreshAndLogout(t *testing.T) {
	r, tokens := newTestRouter(t, nil)

	access, refresh, err := tokens.GenerateTokens(42)
	require.NoError(t, err)

	resp, body := send(t, r, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var decoded struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			TokenType    string `json:"token_type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "Bearer", decoded.Data.TokenType)
	claims, err := tokens.ValidateToken(decoded.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.CustomerID)

	// a refresh token rotates once
	resp, body = send(t, r, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "TOKEN_REVOKED")

	resp, body = send(t, r, http.MethodPost, "/api/v1/auth/refresh", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "VALIDATION_ERROR")

	resp, body = send(t, r, http.MethodPost, "/api/v1/auth/logout", access, `{"refresh_token":"`+decoded.Data.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = get(t, r, "/api/v1/campaigns/abc", access)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "TOKEN_REVOKED")

	resp, body = send(t, r, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+decoded.Data.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "TOKEN_REVOKED")

	resp, body = send(t, r, http.MethodPost, "/api/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "MISSING_AUTHORIZATION_HEADER")
}

func TestNotFound(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	resp, body := get(t, r, "/api/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "NOT_FOUND"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	get(t, r, "/api/v1/health", "")
	resp, body := get(t, r, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "adbridge_http_requests_total")
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
