package businessflow_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/amirphl/adbridge/models"
	testingutil "github.com/amirphl/adbridge/testing"
	"github.com/amirphl/adbridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDeliveryReportFlow_BuildAndDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reports := businessflow.NewDeliveryReportFlow(h.campaignRepo, h.connRepo)

	delivered, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	_, err = h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(delivered), testMetadata())
	require.NoError(t, err)

	idle, err := h.fixtures.CreateTestCampaign(otherCustomerID, models.CampaignGoalAwareness)
	require.NoError(t, err)

	rows, err := reports.BuildDeliveryReport(ctx, &dto.DeliveryReportRequest{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Newest first
	assert.Equal(t, idle.UUID.String(), rows[0].CampaignUUID)
	assert.Equal(t, string(models.DeliveryStageNoCampaign), rows[0].Stage)
	assert.Empty(t, rows[0].AdAccountID)

	assert.Equal(t, delivered.UUID.String(), rows[1].CampaignUUID)
	assert.Equal(t, string(models.DeliveryStageAdCreated), rows[1].Stage)
	assert.Equal(t, testingutil.FakeAdAccountID, rows[1].AdAccountID)
	assert.NotEmpty(t, rows[1].RemoteCampaignID)
	assert.NotEmpty(t, rows[1].RemoteAdID)
	assert.Equal(t, string(models.CampaignStatusInProgress), rows[1].Status)

	filename, data, err := reports.DownloadDeliveryReportExcel(ctx, &dto.DeliveryReportRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "ad_platform_delivery_report_"))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	sheet, err := xl.GetRows("Delivery")
	require.NoError(t, err)
	require.Len(t, sheet, 3)
	assert.Equal(t, "campaign_uuid", sheet[0][0])
	assert.Equal(t, idle.UUID.String(), sheet[1][0])
	assert.Equal(t, delivered.UUID.String(), sheet[2][0])

	summary, err := xl.GetRows("Summary")
	require.NoError(t, err)
	counts := map[string]string{}
	for _, row := range summary[1:] {
		require.Len(t, row, 2)
		counts[row[0]] = row[1]
	}
	assert.Equal(t, "1", counts[string(models.DeliveryStageNoCampaign)])
	assert.Equal(t, "1", counts[string(models.DeliveryStageAdCreated)])
	assert.Equal(t, "0", counts[string(models.DeliveryStagePublished)])
}

func TestDeliveryReportFlow_Filters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reports := businessflow.NewDeliveryReportFlow(h.campaignRepo, h.connRepo)

	first, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	second, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	require.NoError(t, h.campaignRepo.UpdateStatus(ctx, second.ID, models.CampaignStatusPublished))

	t.Run("status", func(t *testing.T) {
		rows, err := reports.BuildDeliveryReport(ctx, &dto.DeliveryReportRequest{Status: utils.ToPtr(string(models.CampaignStatusInitiated))})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, first.UUID.String(), rows[0].CampaignUUID)
	})

	t.Run("limit", func(t *testing.T) {
		rows, err := reports.BuildDeliveryReport(ctx, &dto.DeliveryReportRequest{Limit: 1})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, second.UUID.String(), rows[0].CampaignUUID)
	})

	t.Run("date window in the future", func(t *testing.T) {
		start := utils.UTCNow().Add(time.Hour)
		rows, err := reports.BuildDeliveryReport(ctx, &dto.DeliveryReportRequest{StartDate: &start})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("inverted date window", func(t *testing.T) {
		start := utils.UTCNow()
		end := start.Add(-time.Hour)
		_, err := reports.BuildDeliveryReport(ctx, &dto.DeliveryReportRequest{StartDate: &start, EndDate: &end})
		require.ErrorIs(t, err, businessflow.ErrStartDateAfterEndDate)
	})
}
