package handlers

import (
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DeliveryHandlerInterface defines the contract for the remote delivery endpoints
type DeliveryHandlerInterface interface {
	Orchestrate(c fiber.Ctx) error
	GetState(c fiber.Ctx) error
	Reset(c fiber.Ctx) error
	Publish(c fiber.Ctx) error
}

// DeliveryHandler drives creation and publication of the remote ad chain
type DeliveryHandler struct {
	baseHandler
	deliveryFlow businessflow.DeliveryFlow
}

// NewDeliveryHandler creates a delivery handler. Orchestration makes several sequential remote calls, so timeout should allow for all of them.
func NewDeliveryHandler(deliveryFlow businessflow.DeliveryFlow, timeout time.Duration) *DeliveryHandler {
	return &DeliveryHandler{
		baseHandler:  newBaseHandler(timeout),
		deliveryFlow: deliveryFlow,
	}
}

// Orchestrate creates the missing remote objects in order, all paused
// @Summary Orchestrate Delivery
// @Tags Delivery
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.OrchestrateDeliveryRequest true "Creative content"
// @Success 200 {object} dto.APIResponse{data=dto.OrchestrateDeliveryResponse}
// @Failure 409 {object} dto.APIResponse "Another operation holds the campaign"
// @Failure 412 {object} dto.APIResponse "Not connected or selection incomplete"
// @Failure 422 {object} dto.APIResponse "Selection incompatible or campaign spec incomplete"
// @Failure 424 {object} dto.APIResponse "A creation step failed; rerun resumes from it"
// @Router /api/v1/campaigns/{uuid}/ad-platform/delivery [post]
func (h *DeliveryHandler) Orchestrate(c fiber.Ctx) error {
	var req dto.OrchestrateDeliveryRequest
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
	req.CampaignUUID = c.Params("uuid")
	req.CustomerID = customerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/delivery")
	defer cancel()

	result, err := h.deliveryFlow.Orchestrate(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Delivery orchestration failed")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// GetState returns the stored remote ids and the derived stage
// @Summary Delivery State
// @Tags Delivery
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryStateResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/delivery [get]
func (h *DeliveryHandler) GetState(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/delivery")
	defer cancel()

	result, err := h.deliveryFlow.GetDeliveryState(ctx, &dto.AdPlatformCampaignRequest{CampaignUUID: c.Params("uuid"), CustomerID: customerID})
	if err != nil {
		return h.FlowError(c, err, "Failed to load delivery state")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Delivery state retrieved", result)
}

// Reset forgets the stored remote ids so the next orchestration starts over
// @Summary Reset Delivery
// @Tags Delivery
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ResetDeliveryResponse}
// @Router /api/v1/campaigns/{uuid}/ad-platform/delivery [delete]
func (h *DeliveryHandler) Reset(c fiber.Ctx) error {
	customerID, ok := h.customerID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/delivery")
	defer cancel()

	result, err := h.deliveryFlow.ResetDelivery(ctx, &dto.AdPlatformCampaignRequest{CampaignUUID: c.Params("uuid"), CustomerID: customerID}, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Failed to reset delivery")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// Publish sets the stored campaign or ad to ACTIVE
// @Summary Publish Delivery
// @Tags Delivery
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.PublishDeliveryRequest true "Object to activate"
// @Success 200 {object} dto.APIResponse{data=dto.PublishDeliveryResponse}
// @Failure 409 {object} dto.APIResponse "Target does not match the stored object"
// @Failure 412 {object} dto.APIResponse "Remote chain incomplete"
// @Failure 502 {object} dto.APIResponse "Platform refused the status change"
// @Router /api/v1/campaigns/{uuid}/ad-platform/publish [post]
func (h *DeliveryHandler) Publish(c fiber.Ctx) error {
	var req dto.PublishDeliveryRequest
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
	req.CampaignUUID = c.Params("uuid")
	req.CustomerID = customerID

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/:uuid/ad-platform/publish")
	defer cancel()

	result, err := h.deliveryFlow.Publish(ctx, &req, h.metadata(c))
	if err != nil {
		return h.FlowError(c, err, "Publish failed")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
