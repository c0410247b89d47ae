package handlers

import (
	"strconv"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DeliveryReportAdminHandlerInterface defines the contract for admin delivery reporting
type DeliveryReportAdminHandlerInterface interface {
	ListDeliveries(c fiber.Ctx) error
	DownloadDeliveryReport(c fiber.Ctx) error
}

// DeliveryReportAdminHandler serves the admin delivery report
type DeliveryReportAdminHandler struct {
	baseHandler
	reportFlow businessflow.DeliveryReportFlow
}

func NewDeliveryReportAdminHandler(reportFlow businessflow.DeliveryReportFlow, timeout time.Duration) *DeliveryReportAdminHandler {
	return &DeliveryReportAdminHandler{
		baseHandler: newBaseHandler(timeout),
		reportFlow:  reportFlow,
	}
}

// parseFilter reads start_date, end_date (RFC3339), status and limit from the query string
func (h *DeliveryReportAdminHandler) parseFilter(c fiber.Ctx) (*dto.DeliveryReportRequest, error) {
	var req dto.DeliveryReportRequest

	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start_date format", "INVALID_DATE", nil)
		}
		req.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid end_date format", "INVALID_DATE", nil)
		}
		req.EndDate = &t
	}
	if v := c.Query("status"); v != "" {
		req.Status = &v
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid limit", "INVALID_LIMIT", nil)
		}
		req.Limit = n
	}

	if ok, err := h.validate(c, &req); !ok {
		return nil, err
	}
	return &req, nil
}

// ListDeliveries returns the report rows as JSON
// @Summary Admin List Deliveries
// @Tags Admin Delivery
// @Produce json
// @Param start_date query string false "created_at >= start_date (RFC3339)"
// @Param end_date query string false "created_at <= end_date (RFC3339)"
// @Param status query string false "Campaign status"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} dto.APIResponse{data=[]dto.DeliveryReportRow}
// @Router /api/v1/admin/ad-platform/deliveries [get]
func (h *DeliveryReportAdminHandler) ListDeliveries(c fiber.Ctx) error {
	req, err := h.parseFilter(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/ad-platform/deliveries")
	defer cancel()

	rows, err := h.reportFlow.BuildDeliveryReport(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to build delivery report")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Deliveries retrieved", rows)
}

// DownloadDeliveryReport returns the report as an Excel workbook
// @Summary Admin Download Delivery Report
// @Tags Admin Delivery
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param start_date query string false "created_at >= start_date (RFC3339)"
// @Param end_date query string false "created_at <= end_date (RFC3339)"
// @Param status query string false "Campaign status"
// @Param limit query int false "Maximum rows"
// @Success 200 {file} file
// @Router /api/v1/admin/ad-platform/delivery-report [get]
func (h *DeliveryReportAdminHandler) DownloadDeliveryReport(c fiber.Ctx) error {
	req, err := h.parseFilter(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/ad-platform/delivery-report")
	defer cancel()

	filename, data, err := h.reportFlow.DownloadDeliveryReportExcel(ctx, req)
	if err != nil {
		return h.FlowError(c, err, "Failed to generate delivery report")
	}
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}
