package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCampaignFlow struct {
	err        error
	lastCreate *dto.CreateCampaignRequest
	lastGet    *dto.GetCampaignRequest
}

func (s *stubCampaignFlow) CreateCampaign(_ context.Context, req *dto.CreateCampaignRequest, _ *businessflow.ClientMetadata) (*dto.CreateCampaignResponse, error) {
	s.lastCreate = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CreateCampaignResponse{Message: "created", ID: 1, UUID: "c-1", Status: "initiated"}, nil
}

func (s *stubCampaignFlow) GetCampaign(_ context.Context, req *dto.GetCampaignRequest) (*dto.GetCampaignResponse, error) {
	s.lastGet = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.GetCampaignResponse{UUID: req.UUID, Status: "initiated", CreatedAt: time.Now().UTC()}, nil
}

func (s *stubCampaignFlow) UpdateCampaign(_ context.Context, _ *dto.UpdateCampaignRequest, _ *businessflow.ClientMetadata) (*dto.UpdateCampaignResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.UpdateCampaignResponse{Message: "updated"}, nil
}

func (s *stubCampaignFlow) DeleteCampaign(_ context.Context, _ *dto.DeleteCampaignRequest, _ *businessflow.ClientMetadata) (*dto.DeleteCampaignResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.DeleteCampaignResponse{Message: "deleted"}, nil
}

// newCampaignApp mounts the campaign handler behind a stand-in for the auth middleware
func newCampaignApp(flow businessflow.CampaignFlow, customerID uint) *fiber.App {
	h := NewCampaignHandler(flow, time.Second)
	app := fiber.New()
	app.Use(func(c fiber.Ctx) error {
		if customerID != 0 {
			c.Locals("customer_id", customerID)
		}
		return c.Next()
	})
	app.Post("/campaigns", h.CreateCampaign)
	app.Get("/campaigns/:uuid", h.GetCampaign)
	app.Put("/campaigns/:uuid", h.UpdateCampaign)
	app.Delete("/campaigns/:uuid", h.DeleteCampaign)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %v", body)
	code, _ := detail["code"].(string)
	return code
}

func TestCampaignHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		flow := &stubCampaignFlow{}
		app := newCampaignApp(flow, 7)

		status, body := doRequest(t, app, http.MethodPost, "/campaigns", `{"title":"Spring","goal":"traffic","daily_budget":5000}`)

		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, true, body["success"])
		require.NotNil(t, flow.lastCreate)
		assert.Equal(t, uint(7), flow.lastCreate.CustomerID)
		assert.Equal(t, "Spring", *flow.lastCreate.Title)
	})

	t.Run("malformed body", func(t *testing.T) {
		status, body := doRequest(t, newCampaignApp(&stubCampaignFlow{}, 7), http.MethodPost, "/campaigns", `{"title":`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, body))
	})

	t.Run("validation failure", func(t *testing.T) {
		flow := &stubCampaignFlow{}
		status, body := doRequest(t, newCampaignApp(flow, 7), http.MethodPost, "/campaigns", `{"goal":"billboards","age_min":5}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
		assert.Nil(t, flow.lastCreate)
	})

	t.Run("no customer", func(t *testing.T) {
		status, body := doRequest(t, newCampaignApp(&stubCampaignFlow{}, 0), http.MethodPost, "/campaigns", `{}`)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "MISSING_CUSTOMER_ID", errorCode(t, body))
	})
}

func TestCampaignHandler_GetPassesPathAndCustomer(t *testing.T) {
	flow := &stubCampaignFlow{}
	status, body := doRequest(t, newCampaignApp(flow, 3), http.MethodGet, "/campaigns/abc-123", "")

	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, flow.lastGet)
	assert.Equal(t, "abc-123", flow.lastGet.UUID)
	assert.Equal(t, uint(3), flow.lastGet.CustomerID)
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc-123", data["uuid"])
}

func TestCampaignHandler_FlowErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", businessflow.ErrCampaignNotFound), http.StatusNotFound, "CAMPAIGN_NOT_FOUND"},
		{"access denied", businessflow.ErrCampaignAccessDenied, http.StatusForbidden, "CAMPAIGN_ACCESS_DENIED"},
		{"busy", businessflow.ErrLockUnavailable, http.StatusConflict, "CONFLICT"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, newCampaignApp(&stubCampaignFlow{err: tt.err}, 1), http.MethodDelete, "/campaigns/c-1", "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(t, body))
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestClassifyFlowError(t *testing.T) {
	remote := &services.RemoteAPIError{HTTPStatus: 400, Code: 100, Message: "Invalid parameter", FBTraceID: "trace"}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		check      func(t *testing.T, details any)
	}{
		{
			name:       "business code wins",
			err:        businessflow.NewBusinessError("CAMPAIGN_NOT_EDITABLE", "Campaign can no longer be edited", businessflow.ErrCampaignUpdateNotAllowed),
			wantStatus: fiber.StatusConflict,
			wantCode:   "CAMPAIGN_NOT_EDITABLE",
		},
		{
			name:       "publish target mismatch",
			err:        fmt.Errorf("publish: %w", businessflow.ErrPublishTargetMismatch),
			wantStatus: fiber.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "token missing",
			err:        businessflow.ErrTokenMissing,
			wantStatus: fiber.StatusPreconditionFailed,
			wantCode:   "PRECONDITION_FAILED",
		},
		{
			name:       "token expired",
			err:        businessflow.ErrTokenExpired,
			wantStatus: fiber.StatusPreconditionFailed,
			wantCode:   "PRECONDITION_FAILED",
		},
		{
			name:       "delivery incomplete",
			err:        businessflow.ErrDeliveryIncomplete,
			wantStatus: fiber.StatusPreconditionFailed,
			wantCode:   "PRECONDITION_FAILED",
		},
		{
			name:       "incompatible selection",
			err:        &businessflow.CompatibilityError{Reason: "instagram account not linked to page"},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "SELECTION_INCOMPATIBLE",
			check: func(t *testing.T, details any) {
				assert.Equal(t, fiber.Map{"reason": "instagram account not linked to page"}, details)
			},
		},
		{
			name:       "payment ineligible",
			err:        &businessflow.PaymentIneligibleError{Reason: "no funding source"},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "PAYMENT_INELIGIBLE",
		},
		{
			name:       "validation sentinel",
			err:        businessflow.ErrDeliveryBudgetRequired,
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "validation code suffix",
			err:        businessflow.NewBusinessError("SELECTION_VALIDATION_FAILED", "bad selection", errors.New("x")),
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "SELECTION_VALIDATION_FAILED",
		},
		{
			name:       "credentials missing",
			err:        businessflow.ErrCredentialsMissing,
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "AD_PLATFORM_NOT_CONFIGURED",
		},
		{
			name:       "pipeline step",
			err:        &businessflow.PipelineStepFailed{Step: "adset", Cause: remote},
			wantStatus: fiber.StatusFailedDependency,
			wantCode:   "DELIVERY_STEP_FAILED",
			check: func(t *testing.T, details any) {
				m, ok := details.(fiber.Map)
				require.True(t, ok)
				assert.Equal(t, "adset", m["step"])
				r, ok := m["remote"].(fiber.Map)
				require.True(t, ok)
				assert.Equal(t, 100, r["code"])
				assert.Equal(t, "trace", r["fbtrace_id"])
			},
		},
		{
			name:       "pipeline step with a validation cause keeps the step",
			err:        businessflow.NewBusinessError("DELIVERY_STEP_FAILED", "Failed to create remote lead_form", &businessflow.PipelineStepFailed{Step: "lead_form", Cause: businessflow.ErrPageNotAccessible}),
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "DELIVERY_STEP_FAILED",
			check: func(t *testing.T, details any) {
				assert.Equal(t, fiber.Map{"step": "lead_form"}, details)
			},
		},
		{
			name:       "pipeline step with a missing image",
			err:        &businessflow.PipelineStepFailed{Step: "image", Cause: businessflow.ErrDeliveryImageRequired},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "DELIVERY_STEP_FAILED",
			check: func(t *testing.T, details any) {
				assert.Equal(t, fiber.Map{"step": "image"}, details)
			},
		},
		{
			name:       "selection changed mid check",
			err:        businessflow.ErrSelectionChanged,
			wantStatus: fiber.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "exchange rejected",
			err:        fmt.Errorf("%w: %w", businessflow.ErrExchangeRejected, remote),
			wantStatus: fiber.StatusFailedDependency,
			wantCode:   "TOKEN_EXCHANGE_REJECTED",
		},
		{
			name:       "bare remote error",
			err:        fmt.Errorf("list pages: %w", remote),
			wantStatus: fiber.StatusBadGateway,
			wantCode:   "AD_PLATFORM_REQUEST_FAILED",
		},
		{
			name:       "timeout",
			err:        fmt.Errorf("graph get: %w", context.DeadlineExceeded),
			wantStatus: fiber.StatusGatewayTimeout,
			wantCode:   "AD_PLATFORM_TIMEOUT",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: fiber.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, details := classifyFlowError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			if tt.check != nil {
				tt.check(t, details)
			}
		})
	}
}

func TestNewBaseHandler_DefaultTimeout(t *testing.T) {
	assert.Equal(t, defaultRequestTimeout, newBaseHandler(0).timeout)
	assert.Equal(t, 5*time.Second, newBaseHandler(5*time.Second).timeout)
}
