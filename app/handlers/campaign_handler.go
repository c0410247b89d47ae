package handlers

import (
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
}

// CampaignHandler handles local campaign CRUD
type CampaignHandler struct {
	baseHandler
	campaignFlow businessflow.CampaignFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, timeout time.Duration) *CampaignHandler {
	return &CampaignHandler{
		baseHandler:  newBaseHandler(timeout),
		campaignFlow: campaignFlow,
	}
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a local campaign whose spec drives remote delivery
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 422 {object} dto.APIResponse "Inconsistent campaign spec"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Campaign creation failed")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// GetCampaign returns one campaign owned by the caller
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse}
// @Failure 403 {object} dto.APIResponse "Campaign belongs to another customer"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: c.Params("uuid"), CustomerID: customerID})
	if err != nil {
		return h.FlowError(c, err, "Failed to get campaign")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// UpdateCampaign patches the campaign spec
// @Summary Update Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateCampaignRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateCampaignResponse}
// @Failure 409 {object} dto.APIResponse "Campaign can no longer be edited"
// @Failure 422 {object} dto.APIResponse "Inconsistent campaign spec"
// @Router /api/v1/campaigns/{uuid} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	var req dto.UpdateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}
	req.CustomerID = customerID
	req.UUID = c.Params("uuid")

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.UpdateCampaign(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Campaign update failed")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// DeleteCampaign removes the campaign and its ad platform connection. Remote objects are left untouched.
// @Summary Delete Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DeleteCampaignResponse}
// @Router /api/v1/campaigns/{uuid} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid")
	defer cancel()

	result, err := h.campaignFlow.DeleteCampaign(ctx, &dto.DeleteCampaignRequest{UUID: c.Params("uuid"), CustomerID: customerID}, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Campaign deletion failed")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
