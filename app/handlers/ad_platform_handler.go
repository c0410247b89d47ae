package handlers

import (
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AdPlatformHandlerInterface defines the contract for the ad platform connection endpoints
type AdPlatformHandlerInterface interface {
	Connect(c fiber.Ctx) error
	Status(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error

	ListBusinesses(c fiber.Ctx) error
	ListPages(c fiber.Ctx) error
	ListAdAccounts(c fiber.Ctx) error
	ListInstagramAccounts(c fiber.Ctx) error
	UpdateSelection(c fiber.Ctx) error

	Compatibility(c fiber.Ctx) error
	AdminAccess(c fiber.Ctx) error
	PaymentEligibility(c fiber.Ctx) error
	ConfirmPaymentConnected(c fiber.Ctx) error
}

// AdPlatformHandler serves token lifecycle, asset selection and readiness checks of one campaign
type AdPlatformHandler struct {
	baseHandler
	tokenFlow     businessflow.AdPlatformTokenFlow
	selectionFlow businessflow.AdPlatformSelectionFlow
	checkFlow     businessflow.AdPlatformCheckFlow
}

func NewAdPlatformHandler(
	tokenFlow businessflow.AdPlatformTokenFlow,
	selectionFlow businessflow.AdPlatformSelectionFlow,
	checkFlow businessflow.AdPlatformCheckFlow,
	timeout time.Duration,
) *AdPlatformHandler {
	return &AdPlatformHandler{
		baseHandler:   newBaseHandler(timeout),
		tokenFlow:     tokenFlow,
		selectionFlow: selectionFlow,
		checkFlow:     checkFlow,
	}
}

// campaignRequest builds the owner-scoped request for the campaign in the path
func (h *AdPlatformHandler) campaignRequest(c fiber.Ctx) (*dto.AdPlatformCampaignRequest, bool) {
	customerID, ok := h.customerID(c)
	if !ok {
		return nil, false
	}
	return &dto.AdPlatformCampaignRequest{CampaignUUID: c.Params("uuid"), CustomerID: customerID}, true
}

func (h *AdPlatformHandler) missingCustomer(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
}

// Connect exchanges a short-lived user token and stores the long-lived one
// @Summary Connect Ad Platform
// @Tags Ad Platform
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.ConnectAdPlatformRequest true "Short-lived user token"
// @Success 200 {object} dto.APIResponse{data=dto.ConnectAdPlatformResponse}
// @Failure 424 {object} dto.APIResponse "Platform rejected the token"
// @Failure 502 {object} dto.APIResponse "Platform unavailable"
// @Router /api/v1/campaigns/{uuid}/ad-platform/connect [post]
func (h *AdPlatformHandler) Connect(c fiber.Ctx) error {
	var req dto.ConnectAdPlatformRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	base, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}
	req.CampaignUUID = base.CampaignUUID
	req.CustomerID = base.CustomerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/connect")
	defer cancel()

	result, err := h.tokenFlow.Connect(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to connect ad platform")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// Status returns the stored connection and selection summary
// @Summary Ad Platform Connection
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.AdPlatformConnectionResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/connection [get]
func (h *AdPlatformHandler) Status(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/connection")
	defer cancel()

	result, err := h.tokenFlow.Status(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to load ad platform connection")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ad platform connection retrieved", result)
}

// Disconnect clears the stored token and selection; remote revocation is best effort
// @Summary Disconnect Ad Platform
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DisconnectAdPlatformResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/connection [delete]
func (h *AdPlatformHandler) Disconnect(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/connection")
	defer cancel()

	result, err := h.tokenFlow.Disconnect(ctx, req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to disconnect ad platform")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ListBusinesses lists the businesses visible to the connected user
// @Summary List Businesses
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListBusinessesResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/businesses [get]
func (h *AdPlatformHandler) ListBusinesses(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/businesses")
	defer cancel()

	result, err := h.selectionFlow.ListBusinesses(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list businesses")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Businesses retrieved", result)
}

// ListPages lists the pages the connected user manages
// @Summary List Pages
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListPagesResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/pages [get]
func (h *AdPlatformHandler) ListPages(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/pages")
	defer cancel()

	result, err := h.selectionFlow.ListPages(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list pages")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pages retrieved", result)
}

// ListAdAccounts lists ad accounts, optionally only those owned by business_id
// @Summary List Ad Accounts
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param business_id query string false "Owning business"
// @Success 200 {object} dto.APIResponse{data=dto.ListAdAccountsResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/ad-accounts [get]
func (h *AdPlatformHandler) ListAdAccounts(c fiber.Ctx) error {
	var req dto.ListAdAccountsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	base, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}
	req.CampaignUUID = base.CampaignUUID
	req.CustomerID = base.CustomerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/ad-accounts")
	defer cancel()

	result, err := h.selectionFlow.ListAdAccounts(ctx, &req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list ad accounts")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ad accounts retrieved", result)
}

// ListInstagramAccounts returns the Instagram account linked to the selected page
// @Summary List Instagram Accounts
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListInstagramAccountsResponse}
// @Failure 412 {object} dto.APIResponse "No page selected"
// @Router /api/v1/campaigns/{uuid}/ad-platform/instagram-accounts [get]
func (h *AdPlatformHandler) ListInstagramAccounts(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/instagram-accounts")
	defer cancel()

	result, err := h.selectionFlow.ListInstagramAccounts(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to list instagram accounts")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Instagram accounts retrieved", result)
}

// UpdateSelection writes the provided selection fields and keeps the rest
// @Summary Update Selection
// @Tags Ad Platform
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateSelectionRequest true "Selection fields"
// @Success 200 {object} dto.APIResponse{data=dto.AdPlatformConnectionResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/selection [put]
func (h *AdPlatformHandler) UpdateSelection(c fiber.Ctx) error {
	var req dto.UpdateSelectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	base, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}
	req.CampaignUUID = base.CampaignUUID
	req.CustomerID = base.CustomerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/selection")
	defer cancel()

	result, err := h.selectionFlow.UpdateSelection(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to update selection")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Selection updated", result)
}

// Compatibility checks that the selected assets can advertise together
// @Summary Selection Compatibility
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CompatibilityResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/compatibility [get]
func (h *AdPlatformHandler) Compatibility(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/compatibility")
	defer cancel()

	result, err := h.checkFlow.Compatibility(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Compatibility check failed")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Compatibility checked", result)
}

// AdminAccess reports whether the connected user administers the selected business and ad account
// @Summary Admin Access
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminAccessResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/admin-access [get]
func (h *AdPlatformHandler) AdminAccess(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/admin-access")
	defer cancel()

	result, err := h.checkFlow.AdminAccess(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Admin access check failed")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Admin access checked", result)
}

// PaymentEligibility reads the selected ad account's funding state
// @Summary Payment Eligibility
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PaymentEligibilityResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/payment-eligibility [get]
func (h *AdPlatformHandler) PaymentEligibility(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/payment-eligibility")
	defer cancel()

	result, err := h.checkFlow.PaymentEligibility(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Payment eligibility check failed")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Payment eligibility checked", result)
}

// ConfirmPaymentConnected re-checks eligibility and stores the payment flag
// @Summary Confirm Payment Connected
// @Tags Ad Platform
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ConfirmPaymentConnectedResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/payment-connected [post]
func (h *AdPlatformHandler) ConfirmPaymentConnected(c fiber.Ctx) error {
	req, ok := h.campaignRequest(c)
	if !ok {
		return h.missingCustomer(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/payment-connected")
	defer cancel()

	result, err := h.checkFlow.ConfirmPaymentConnected(ctx, req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to confirm payment state")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Payment state stored", result)
}
