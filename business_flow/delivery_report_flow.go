package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
	"github.com/xuri/excelize/v2"
)

const (
	deliveryReportDefaultLimit = 1000
	deliveryReportSheet        = "Delivery"
	deliveryReportSummarySheet = "Summary"
)

var deliveryReportHeader = []string{
	"campaign_uuid", "customer_id", "title", "status", "stage", "ad_account_id", "page_id",
	"remote_campaign_id", "remote_ad_id", "payment_connected", "last_failed_step", "last_error",
	"created_at", "published_at",
}

// DeliveryReportFlow exports the delivery state of campaigns for admins
type DeliveryReportFlow interface {
	BuildDeliveryReport(ctx context.Context, req *dto.DeliveryReportRequest) ([]dto.DeliveryReportRow, error)
	DownloadDeliveryReportExcel(ctx context.Context, req *dto.DeliveryReportRequest) (string, []byte, error)
}

// DeliveryReportFlowImpl implements DeliveryReportFlow
type DeliveryReportFlowImpl struct {
	campaignRepo repository.CampaignRepository
	connRepo     repository.AdPlatformConnectionRepository
}

// NewDeliveryReportFlow creates a new delivery report flow
func NewDeliveryReportFlow(campaignRepo repository.CampaignRepository, connRepo repository.AdPlatformConnectionRepository) DeliveryReportFlow {
	return &DeliveryReportFlowImpl{campaignRepo: campaignRepo, connRepo: connRepo}
}

// BuildDeliveryReport returns one row per campaign, newest first
func (f *DeliveryReportFlowImpl) BuildDeliveryReport(ctx context.Context, req *dto.DeliveryReportRequest) ([]dto.DeliveryReportRow, error) {
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return nil, NewBusinessError("VALIDATION_ERROR", "Start date cannot be after end date", ErrStartDateAfterEndDate)
	}

	filter := models.CampaignFilter{CreatedAfter: req.StartDate, CreatedBefore: req.EndDate}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		filter.Status = &status
	}
	limit := req.Limit
	if limit <= 0 {
		limit = deliveryReportDefaultLimit
	}

	campaigns, err := f.campaignRepo.ByFilter(ctx, filter, "id DESC", limit, 0)
	if err != nil {
		return nil, NewBusinessError("FETCH_CAMPAIGNS_FAILED", "Failed to fetch campaigns", err)
	}

	ids := make([]uint, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	conns, err := f.connRepo.ByCampaignIDs(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("FETCH_CONNECTIONS_FAILED", "Failed to fetch ad platform connections", err)
	}
	byCampaign := make(map[uint]*models.AdPlatformConnection, len(conns))
	for _, conn := range conns {
		byCampaign[conn.CampaignID] = conn
	}

	rows := make([]dto.DeliveryReportRow, 0, len(campaigns))
	for _, c := range campaigns {
		// A corrupt record still gets a row; its stage reads as no_campaign
		state, _ := c.DeliveryState()
		row := dto.DeliveryReportRow{
			CampaignUUID:     c.UUID.String(),
			CustomerID:       c.CustomerID,
			Title:            utils.Deref(c.Spec.Title),
			Status:           string(c.Status),
			Stage:            string(state.Stage()),
			RemoteCampaignID: utils.Deref(state.CampaignID),
			RemoteAdID:       utils.Deref(state.AdID),
			LastFailedStep:   utils.Deref(state.LastFailedStep),
			LastError:        utils.Deref(state.LastError),
			CreatedAt:        c.CreatedAt,
			PublishedAt:      state.PublishedAt,
		}
		if conn := byCampaign[c.ID]; conn != nil {
			row.AdAccountID = utils.Deref(conn.SelectedAdAccountID)
			row.PageID = utils.Deref(conn.SelectedPageID)
			row.PaymentConnected = conn.AdAccountPaymentConnected
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DownloadDeliveryReportExcel renders the report as an xlsx workbook with a
// per-campaign sheet and a per-stage summary
func (f *DeliveryReportFlowImpl) DownloadDeliveryReportExcel(ctx context.Context, req *dto.DeliveryReportRequest) (string, []byte, error) {
	rows, err := f.BuildDeliveryReport(ctx, req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), deliveryReportSheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}
	header := deliveryReportHeader
	_ = xl.SetSheetRow(deliveryReportSheet, "A1", &header)

	stageCounts := map[string]int{}
	for i, r := range rows {
		stageCounts[r.Stage]++
		publishedAt := ""
		if r.PublishedAt != nil {
			publishedAt = r.PublishedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			r.CampaignUUID,
			strconv.FormatUint(uint64(r.CustomerID), 10),
			r.Title,
			r.Status,
			r.Stage,
			r.AdAccountID,
			r.PageID,
			r.RemoteCampaignID,
			r.RemoteAdID,
			strconv.FormatBool(r.PaymentConnected),
			r.LastFailedStep,
			r.LastError,
			r.CreatedAt.UTC().Format(time.RFC3339),
			publishedAt,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(deliveryReportSheet, cellRef, &record)
	}

	if _, err := xl.NewSheet(deliveryReportSummarySheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}
	_ = xl.SetSheetRow(deliveryReportSummarySheet, "A1", &[]string{"stage", "campaigns"})
	stages := []models.DeliveryStage{
		models.DeliveryStageNoCampaign,
		models.DeliveryStageCampaignCreated,
		models.DeliveryStageAdSetCreated,
		models.DeliveryStageCreativeCreated,
		models.DeliveryStageAdCreated,
		models.DeliveryStagePublished,
	}
	for i, stage := range stages {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(deliveryReportSummarySheet, cellRef, &[]any{string(stage), stageCounts[string(stage)]})
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("ad_platform_delivery_report_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}
