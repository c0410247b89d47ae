// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/amirphl/adbridge/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers shared by every handler
type baseHandler struct {
	validator *validator.Validate
	timeout   time.Duration
}

func newBaseHandler(timeout time.Duration) baseHandler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return baseHandler{validator: validator.New(), timeout: timeout}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and writes a 400 on failure. The returned bool is false when a response was written.
func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	err := h.validator.Struct(req)
	if err == nil {
		return true, nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
}

// customerID returns the authenticated customer set by AuthMiddleware
func (h *baseHandler) customerID(c fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("customer_id").(uint)
	return id, ok && id != 0
}

func (h *baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		metadata.SetRequestID(requestID)
	}
	return metadata
}

// requestContext creates a bounded context carrying request-scoped values for observability
func (h *baseHandler) requestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, h.timeout)

	return ctx, cancel
}

// FlowError writes the HTTP response for an error returned by a business flow
func (h *baseHandler) FlowError(c fiber.Ctx, err error, fallbackMessage string) error {
	status, code, message, details := classifyFlowError(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Method(), c.Path(), err)
	}
	if message == "" {
		message = fallbackMessage
	}
	return h.ErrorResponse(c, status, message, code, details)
}

// classifyFlowError maps a flow error to status, code, message and details
func classifyFlowError(err error) (int, string, string, any) {
	code := ""
	message := ""
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		code = be.Code
		message = be.Message
	}
	orDefault := func(fallback string) string {
		if code == "" {
			return fallback
		}
		return code
	}

	// A failed creation step always reports which step failed, whatever the cause
	if step, ok := businessflow.AsPipelineStepFailed(err); ok {
		details := fiber.Map{"step": step.Step}
		if remote, ok := services.AsRemoteAPIError(err); ok {
			details["remote"] = remoteDetails(remote)
		}
		status := fiber.StatusFailedDependency
		if isValidationError(step.Cause, "") {
			status = fiber.StatusUnprocessableEntity
		}
		return status, orDefault("DELIVERY_STEP_FAILED"), message, details
	}

	var compat *businessflow.CompatibilityError
	var ineligible *businessflow.PaymentIneligibleError

	switch {
	case errors.Is(err, businessflow.ErrCampaignNotFound):
		return fiber.StatusNotFound, orDefault("CAMPAIGN_NOT_FOUND"), message, nil
	case errors.Is(err, businessflow.ErrCampaignAccessDenied):
		return fiber.StatusForbidden, orDefault("CAMPAIGN_ACCESS_DENIED"), message, nil

	case errors.Is(err, businessflow.ErrLockUnavailable),
		errors.Is(err, businessflow.ErrCampaignUpdateNotAllowed),
		errors.Is(err, businessflow.ErrPublishTargetMismatch),
		errors.Is(err, businessflow.ErrSelectionChanged):
		return fiber.StatusConflict, orDefault("CONFLICT"), message, nil

	case errors.Is(err, businessflow.ErrTokenMissing),
		errors.Is(err, businessflow.ErrTokenExpired),
		errors.Is(err, businessflow.ErrTokenUnreadable),
		errors.Is(err, businessflow.ErrSelectionIncomplete),
		errors.Is(err, businessflow.ErrDeliveryIncomplete):
		return fiber.StatusPreconditionFailed, orDefault("PRECONDITION_FAILED"), message, nil

	case errors.As(err, &compat):
		return fiber.StatusUnprocessableEntity, orDefault("SELECTION_INCOMPATIBLE"), message, fiber.Map{"reason": compat.Reason}
	case errors.As(err, &ineligible):
		return fiber.StatusUnprocessableEntity, orDefault("PAYMENT_INELIGIBLE"), message, fiber.Map{"reason": ineligible.Reason}
	case isValidationError(err, code):
		return fiber.StatusUnprocessableEntity, orDefault("VALIDATION_FAILED"), message, nil

	case errors.Is(err, businessflow.ErrCredentialsMissing):
		return fiber.StatusInternalServerError, orDefault("AD_PLATFORM_NOT_CONFIGURED"), message, nil
	}

	if errors.Is(err, businessflow.ErrExchangeRejected) {
		var details any
		if remote, ok := services.AsRemoteAPIError(err); ok {
			details = remoteDetails(remote)
		}
		return fiber.StatusFailedDependency, orDefault("TOKEN_EXCHANGE_REJECTED"), message, details
	}
	if remote, ok := services.AsRemoteAPIError(err); ok {
		return fiber.StatusBadGateway, orDefault("AD_PLATFORM_REQUEST_FAILED"), message, remoteDetails(remote)
	}
	if services.IsGraphTimeout(err) {
		return fiber.StatusGatewayTimeout, orDefault("AD_PLATFORM_TIMEOUT"), message, nil
	}

	return fiber.StatusInternalServerError, orDefault("INTERNAL_ERROR"), message, nil
}

func isValidationError(err error, code string) bool {
	if strings.HasSuffix(code, "VALIDATION_FAILED") {
		return true
	}
	for _, target := range []error{
		businessflow.ErrCampaignUUIDRequired,
		businessflow.ErrCampaignUpdateRequired,
		businessflow.ErrCampaignAgeRangeInvalid,
		businessflow.ErrCampaignScheduleInvalid,
		businessflow.ErrSelectionEmpty,
		businessflow.ErrPageNotAccessible,
		businessflow.ErrDeliveryBudgetRequired,
		businessflow.ErrDeliveryImageRequired,
		businessflow.ErrDeliveryImageURLInvalid,
		businessflow.ErrInvalidPublishTarget,
		businessflow.ErrStartDateAfterEndDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func remoteDetails(remote *services.RemoteAPIError) fiber.Map {
	details := fiber.Map{
		"http_status": remote.HTTPStatus,
		"code":        remote.Code,
		"message":     remote.Message,
	}
	if remote.Subcode != 0 {
		details["subcode"] = remote.Subcode
	}
	if remote.UserMessage != "" {
		details["user_message"] = remote.UserMessage
	}
	if remote.FBTraceID != "" {
		details["fbtrace_id"] = remote.FBTraceID
	}
	return details
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "required_without":
		return err.Field() + " is required when " + err.Param() + " is empty"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "url":
		return err.Field() + " must be a valid URL"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
