package businessflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/amirphl/adbridge/models"
	testingutil "github.com/amirphl/adbridge/testing"
	"github.com/amirphl/adbridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func campaignRequest(campaign *models.Campaign) *dto.AdPlatformCampaignRequest {
	return &dto.AdPlatformCampaignRequest{CampaignUUID: campaign.UUID.String(), CustomerID: campaign.CustomerID}
}

func TestAdPlatformSelectionFlow_Listings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	req := campaignRequest(campaign)

	businesses, err := h.selectionFlow.ListBusinesses(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []dto.BusinessItem{{ID: testingutil.FakeBusinessID, Name: testingutil.FakeBusinessName}}, businesses.Businesses)

	pages, err := h.selectionFlow.ListPages(ctx, req)
	require.NoError(t, err)
	require.Len(t, pages.Pages, 1)
	assert.Equal(t, testingutil.FakePageID, pages.Pages[0].ID)
	assert.Equal(t, testingutil.FakeIGUserID, pages.Pages[0].InstagramUserID)

	instagram, err := h.selectionFlow.ListInstagramAccounts(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []dto.InstagramAccountItem{{ID: testingutil.FakeIGUserID, Username: testingutil.FakeIGUsername}}, instagram.InstagramAccounts)

	owned, err := h.selectionFlow.ListAdAccounts(ctx, &dto.ListAdAccountsRequest{
		CampaignUUID: req.CampaignUUID,
		CustomerID:   req.CustomerID,
		BusinessID:   testingutil.FakeBusinessID,
	})
	require.NoError(t, err)
	require.Len(t, owned.AdAccounts, 1)
	assert.Equal(t, testingutil.FakeAdAccountID, owned.AdAccounts[0].ID)
	assert.Equal(t, testingutil.FakeBusinessID, owned.AdAccounts[0].BusinessID)
	assert.Equal(t, "ACTIVE", owned.AdAccounts[0].StatusName)
}

func TestAdPlatformSelectionFlow_ListAdAccountsFollowsPaging(t *testing.T) {
	h := newHarness(t)
	h.graph.Update(func(state *testingutil.GraphState) { state.PageSize = 1 })

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	resp, err := h.selectionFlow.ListAdAccounts(context.Background(), &dto.ListAdAccountsRequest{
		CampaignUUID: campaign.UUID.String(),
		CustomerID:   testCustomerID,
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(resp.AdAccounts))
	for _, a := range resp.AdAccounts {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{testingutil.FakeAdAccountID, testingutil.FakePrefixAdAccountID, testingutil.FakeForeignAdAccountID}, ids)
	assert.Equal(t, 3, h.graph.Calls(testingutil.GraphOpListAdAccounts))
}

func TestAdPlatformSelectionFlow_UpdateSelection(t *testing.T) {
	t.Run("page selection stores a sealed page token", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		require.NoError(t, h.connRepo.ClearSelection(ctx, campaign.ID))

		resp, err := h.selectionFlow.UpdateSelection(ctx, &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			PageID:       utils.ToPtr(testingutil.FakePageID),
			AdAccountID:  utils.ToPtr("501"),
		}, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, testingutil.FakePageName, utils.Deref(resp.PageName))
		assert.Equal(t, testingutil.FakeAdAccountID, utils.Deref(resp.AdAccountID))

		conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
		require.NoError(t, err)
		require.NotNil(t, conn.SelectedPageAccessToken)
		assert.NotEqual(t, testingutil.FakePageToken, *conn.SelectedPageAccessToken)
		plain, err := h.cipher.Decrypt(*conn.SelectedPageAccessToken)
		require.NoError(t, err)
		assert.Equal(t, testingutil.FakePageToken, plain)
		assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionAdPlatformSelection)
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		resp, err := h.selectionFlow.UpdateSelection(ctx, &dto.UpdateSelectionRequest{
			CampaignUUID:  campaign.UUID.String(),
			CustomerID:    testCustomerID,
			AdAccountName: utils.ToPtr("Renamed"),
		}, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, "Renamed", utils.Deref(resp.AdAccountName))
		assert.Equal(t, testingutil.FakePageID, utils.Deref(resp.PageID))
		assert.Equal(t, testingutil.FakeBusinessID, utils.Deref(resp.BusinessID))
		assert.Equal(t, testingutil.FakeIGUserID, utils.Deref(resp.IGUserID))
	})

	t.Run("changing the ad account drops the payment flag", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		require.NoError(t, h.connRepo.SetPaymentConnected(ctx, campaign.ID, testingutil.FakeAdAccountID, true))

		resp, err := h.selectionFlow.UpdateSelection(ctx, &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			AdAccountID:  utils.ToPtr(testingutil.FakePrefixAdAccountID),
		}, testMetadata())
		require.NoError(t, err)
		assert.False(t, resp.AdAccountPaymentConnected)
	})

	t.Run("page the user cannot access", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.selectionFlow.UpdateSelection(context.Background(), &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			PageID:       utils.ToPtr("39999"),
		}, testMetadata())
		require.ErrorIs(t, err, businessflow.ErrPageNotAccessible)

		conn, err := h.connRepo.ByCampaignID(context.Background(), campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, testingutil.FakePageID, utils.Deref(conn.SelectedPageID))
	})

	t.Run("empty selection", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.selectionFlow.UpdateSelection(context.Background(), &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
		}, testMetadata())
		require.ErrorIs(t, err, businessflow.ErrSelectionEmpty)
	})

	t.Run("not connected", func(t *testing.T) {
		h := newHarness(t)
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.selectionFlow.UpdateSelection(context.Background(), &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			AdAccountID:  utils.ToPtr(testingutil.FakeAdAccountID),
		}, testMetadata())
		assert.True(t, businessflow.IsTokenMissing(err))
		assert.Equal(t, "AD_PLATFORM_NOT_CONNECTED", businessErrorCode(t, err))
	})
}

func TestAdPlatformSelectionFlow_UpdateSelectionSeesDisconnectWhileWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	require.NoError(t, h.connRepo.ClearSelection(ctx, campaign.ID))

	unlock, err := h.locker.Lock(ctx, campaign.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.selectionFlow.UpdateSelection(ctx, &dto.UpdateSelectionRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			PageID:       utils.ToPtr(testingutil.FakePageID),
			AdAccountID:  utils.ToPtr(testingutil.FakeAdAccountID),
		}, testMetadata())
		done <- err
	}()

	// let the update queue up behind the lock, then disconnect underneath it
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, h.connRepo.Disconnect(ctx, campaign.ID))
	unlock()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("selection update did not finish")
	}
	assert.True(t, businessflow.IsTokenMissing(err))

	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.False(t, conn.HasToken())
	assert.Nil(t, conn.SelectedPageID)
	assert.Nil(t, conn.SelectedPageAccessToken)
	assert.Nil(t, conn.SelectedAdAccountID)
	assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpListPages))
}
