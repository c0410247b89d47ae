package businessflow_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/services"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/amirphl/adbridge/models"
	testingutil "github.com/amirphl/adbridge/testing"
	"github.com/amirphl/adbridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectRequest(campaign *models.Campaign, shortLived string) *dto.ConnectAdPlatformRequest {
	return &dto.ConnectAdPlatformRequest{
		CampaignUUID:    campaign.UUID.String(),
		CustomerID:      campaign.CustomerID,
		ShortLivedToken: shortLived,
	}
}

func TestAdPlatformTokenFlow_Connect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	resp, err := h.tokenFlow.Connect(ctx, connectRequest(campaign, testingutil.FakeShortLivedToken), testMetadata())
	require.NoError(t, err)
	assert.Equal(t, testingutil.FakeUserID, resp.FBUserID)
	assert.WithinDuration(t, utils.UTCNow().Add(60*24*time.Hour), resp.TokenExpiresAt, time.Minute)

	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.True(t, conn.HasToken())
	assert.NotEqual(t, testingutil.FakeLongLivedToken, *conn.LongLivedToken, "token must be sealed at rest")

	plain, err := h.cipher.Decrypt(*conn.LongLivedToken)
	require.NoError(t, err)
	assert.Equal(t, testingutil.FakeLongLivedToken, plain)

	status, err := h.tokenFlow.Status(ctx, &dto.AdPlatformCampaignRequest{CampaignUUID: campaign.UUID.String(), CustomerID: testCustomerID})
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.False(t, status.TokenExpired)

	assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionAdPlatformConnected)
}

func TestAdPlatformTokenFlow_ConnectWithoutExpiryUsesDefaultTTL(t *testing.T) {
	h := newHarness(t)
	h.graph.Update(func(state *testingutil.GraphState) { state.ExpiresIn = 0 })

	campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	resp, err := h.tokenFlow.Connect(context.Background(), connectRequest(campaign, testingutil.FakeShortLivedToken), testMetadata())
	require.NoError(t, err)
	assert.WithinDuration(t, utils.UTCNow().Add(utils.DefaultLongLivedTokenTTL), resp.TokenExpiresAt, time.Minute)
}

func TestAdPlatformTokenFlow_ConnectFailures(t *testing.T) {
	t.Run("missing app credentials", func(t *testing.T) {
		h := newHarness(t)
		cfg := h.cfg
		cfg.AppSecret = ""
		flow := h.newTokenFlow(cfg)

		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = flow.Connect(context.Background(), connectRequest(campaign, testingutil.FakeShortLivedToken), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsCredentialsMissing(err))
		assert.Equal(t, "AD_PLATFORM_NOT_CONFIGURED", businessErrorCode(t, err))
		assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpExchange))

		conn, err := h.connRepo.ByCampaignID(context.Background(), campaign.ID)
		require.NoError(t, err)
		assert.Nil(t, conn)
	})

	t.Run("rejected short-lived token", func(t *testing.T) {
		h := newHarness(t)
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.tokenFlow.Connect(context.Background(), connectRequest(campaign, "not-a-granted-token"), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsExchangeRejected(err))
		assert.True(t, businessflow.IsRemoteError(err))
		assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionAdPlatformConnectFail)
	})

	t.Run("platform outage is not a rejection", func(t *testing.T) {
		h := newHarness(t)
		h.graph.FailNext(testingutil.GraphOpExchange, 1, http.StatusServiceUnavailable, 2, "Service temporarily unavailable")
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.tokenFlow.Connect(context.Background(), connectRequest(campaign, testingutil.FakeShortLivedToken), testMetadata())
		require.Error(t, err)
		assert.False(t, businessflow.IsExchangeRejected(err))
		assert.Equal(t, "TOKEN_EXCHANGE_FAILED", businessErrorCode(t, err))
	})

	t.Run("another customer's campaign", func(t *testing.T) {
		h := newHarness(t)
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		req := connectRequest(campaign, testingutil.FakeShortLivedToken)
		req.CustomerID = otherCustomerID

		_, err = h.tokenFlow.Connect(context.Background(), req, testMetadata())
		assert.True(t, businessflow.IsCampaignAccessDenied(err))
		assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpExchange))
	})
}

func TestAdPlatformTokenFlow_ReconnectAsDifferentUserClearsSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const (
		otherShort  = "other-short-lived-token"
		otherLong   = "other-long-lived-token"
		otherUserID = "10002"
	)
	h.graph.Update(func(state *testingutil.GraphState) {
		state.ExchangeGrants[otherShort] = otherLong
		state.Users[otherLong] = services.GraphUser{ID: otherUserID, Name: "Other Advertiser"}
	})

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	// Same user keeps the selection
	_, err = h.tokenFlow.Connect(ctx, connectRequest(campaign, testingutil.FakeShortLivedToken), testMetadata())
	require.NoError(t, err)
	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, testingutil.FakePageID, utils.Deref(conn.SelectedPageID))

	_, err = h.tokenFlow.Connect(ctx, connectRequest(campaign, otherShort), testMetadata())
	require.NoError(t, err)

	conn, err = h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, otherUserID, utils.Deref(conn.FBUserID))
	assert.Nil(t, conn.SelectedPageID)
	assert.Nil(t, conn.SelectedAdAccountID)
	assert.Nil(t, conn.SelectedPageAccessToken)
	assert.False(t, conn.AdAccountPaymentConnected)
	assert.True(t, conn.HasToken())
}

func TestAdPlatformTokenFlow_Disconnect(t *testing.T) {
	tests := []struct {
		name        string
		failRevoke  bool
		wantRevoked bool
	}{
		{name: "remote revocation succeeds", wantRevoked: true},
		{name: "remote revocation fails", failRevoke: true, wantRevoked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
			require.NoError(t, err)
			require.NoError(t, h.connRepo.SetPaymentConnected(ctx, campaign.ID, testingutil.FakeAdAccountID, true))
			if tt.failRevoke {
				h.graph.FailNext(testingutil.GraphOpRevoke, 1, http.StatusInternalServerError, 1, "An unknown error occurred")
			}

			req := &dto.AdPlatformCampaignRequest{CampaignUUID: campaign.UUID.String(), CustomerID: testCustomerID}
			resp, err := h.tokenFlow.Disconnect(ctx, req, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRevoked, resp.RemoteRevoked)
			assert.Equal(t, 1, h.graph.Calls(testingutil.GraphOpRevoke))

			conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
			require.NoError(t, err)
			require.NotNil(t, conn)
			assert.Nil(t, conn.LongLivedToken)
			assert.Nil(t, conn.TokenExpiresAt)
			assert.Nil(t, conn.FBUserID)
			assert.Nil(t, conn.SelectedBusinessID)
			assert.Nil(t, conn.SelectedPageID)
			assert.Nil(t, conn.SelectedPageAccessToken)
			assert.Nil(t, conn.SelectedIGUserID)
			assert.Nil(t, conn.SelectedAdAccountID)
			assert.False(t, conn.AdAccountPaymentConnected)

			// A second disconnect has nothing to revoke
			again, err := h.tokenFlow.Disconnect(ctx, req, testMetadata())
			require.NoError(t, err)
			assert.False(t, again.RemoteRevoked)
			assert.Equal(t, 1, h.graph.Calls(testingutil.GraphOpRevoke))

			status, err := h.tokenFlow.Status(ctx, req)
			require.NoError(t, err)
			assert.False(t, status.Connected)
		})
	}
}

func TestAdPlatformTokenFlow_StatusReportsExpiry(t *testing.T) {
	h := newHarness(t)
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
		testingutil.WithTokenExpiresAt(utils.UTCNow().Add(-time.Hour)))
	require.NoError(t, err)

	status, err := h.tokenFlow.Status(context.Background(), &dto.AdPlatformCampaignRequest{
		CampaignUUID: campaign.UUID.String(),
		CustomerID:   testCustomerID,
	})
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.True(t, status.TokenExpired)
	assert.Equal(t, testingutil.FakeAdAccountID, utils.Deref(status.AdAccountID))
}
