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

func TestAdPlatformCheckFlow_Compatibility(t *testing.T) {
	tests := []struct {
		name       string
		opts       []testingutil.ConnectionOption
		graph      func(state *testingutil.GraphState)
		wantOK     bool
		wantChecks int
		wantFailed []string
	}{
		{
			name:       "fully compatible selection",
			wantOK:     true,
			wantChecks: 3,
		},
		{
			name:       "account is a prefix of the authorized one",
			opts:       []testingutil.ConnectionOption{testingutil.WithAdAccount(testingutil.FakePrefixAdAccountID)},
			wantChecks: 3,
			wantFailed: []string{businessflow.CheckAdAccountInBusiness, businessflow.CheckAdAccountForPage},
		},
		{
			name:       "authorized account is a prefix of the selected one",
			opts:       []testingutil.ConnectionOption{testingutil.WithAdAccount(testingutil.FakeForeignAdAccountID), testingutil.WithoutBusiness()},
			wantChecks: 2,
			wantFailed: []string{businessflow.CheckAdAccountForPage},
		},
		{
			name: "page revoked the ad account",
			opts: []testingutil.ConnectionOption{testingutil.WithoutBusiness(), testingutil.WithoutInstagram()},
			graph: func(state *testingutil.GraphState) {
				state.PageAdAccounts[testingutil.FakePageID] = nil
			},
			wantChecks: 1,
			wantFailed: []string{businessflow.CheckAdAccountForPage},
		},
		{
			name: "instagram account not linked to the page",
			opts: []testingutil.ConnectionOption{func(conn *models.AdPlatformConnection) {
				conn.SelectedIGUserID = utils.ToPtr("49999")
			}},
			wantChecks: 3,
			wantFailed: []string{businessflow.CheckInstagramLinkedToPage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.graph != nil {
				h.graph.Update(tt.graph)
			}
			campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic, tt.opts...)
			require.NoError(t, err)

			resp, err := h.checkFlow.Compatibility(context.Background(), campaignRequest(campaign))
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, resp.OK)
			assert.Len(t, resp.Checks, tt.wantChecks)

			if tt.wantOK {
				assert.Empty(t, resp.Reason)
				return
			}
			assert.NotEmpty(t, resp.Reason)
			var failed []string
			for _, c := range resp.Checks {
				if !c.OK {
					failed = append(failed, c.Name)
				}
			}
			assert.ElementsMatch(t, tt.wantFailed, failed)
		})
	}
}

func TestAdPlatformCheckFlow_CompatibilityRejectionVersusOutage(t *testing.T) {
	t.Run("client rejection is a failed check", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
			testingutil.WithoutBusiness(), testingutil.WithoutInstagram())
		require.NoError(t, err)
		h.graph.FailNext(testingutil.GraphOpPageAdAccounts, 1, http.StatusBadRequest, services.GraphErrorCodePermission, "Requires pages_manage_ads permission")

		resp, err := h.checkFlow.Compatibility(context.Background(), campaignRequest(campaign))
		require.NoError(t, err)
		assert.False(t, resp.OK)
		assert.Contains(t, resp.Reason, "pages_manage_ads")
	})

	t.Run("server fault is an error", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
			testingutil.WithoutBusiness(), testingutil.WithoutInstagram())
		require.NoError(t, err)
		h.graph.FailNext(testingutil.GraphOpPageAdAccounts, 1, http.StatusInternalServerError, 1, "An unknown error occurred")

		_, err = h.checkFlow.Compatibility(context.Background(), campaignRequest(campaign))
		require.Error(t, err)
		assert.True(t, businessflow.IsRemoteError(err))
	})
}

func TestAdPlatformCheckFlow_AdminAccess(t *testing.T) {
	tests := []struct {
		name          string
		opts          []testingutil.ConnectionOption
		graph         func(state *testingutil.GraphState)
		wantConnected bool
		wantBusiness  businessflow.AccessRole
		wantAdAccount businessflow.AccessRole
	}{
		{
			name:          "business admin with manage task",
			wantConnected: true,
			wantBusiness:  businessflow.AccessRoleAdmin,
			wantAdAccount: businessflow.AccessRoleAdmin,
		},
		{
			name: "business employee",
			graph: func(state *testingutil.GraphState) {
				state.BusinessUsers[testingutil.FakeBusinessID] = []services.BusinessUser{
					{ID: testingutil.FakeUserID, Name: testingutil.FakeUserName, Role: "EMPLOYEE"},
				}
			},
			wantBusiness:  businessflow.AccessRoleAdvertiser,
			wantAdAccount: businessflow.AccessRoleAdmin,
		},
		{
			name: "advertiser without a business",
			opts: []testingutil.ConnectionOption{testingutil.WithoutBusiness()},
			graph: func(state *testingutil.GraphState) {
				state.AdAccountUsers[testingutil.FakeAdAccountID] = []services.AdAccountUser{
					{ID: testingutil.FakeUserID, Role: "1002"},
				}
			},
			wantConnected: true,
			wantBusiness:  businessflow.AccessRoleNone,
			wantAdAccount: businessflow.AccessRoleAdvertiser,
		},
		{
			name: "analyst upgraded by advertise task",
			opts: []testingutil.ConnectionOption{testingutil.WithoutBusiness()},
			graph: func(state *testingutil.GraphState) {
				state.AdAccountUsers[testingutil.FakeAdAccountID] = []services.AdAccountUser{
					{ID: testingutil.FakeUserID, Role: "1003", Tasks: []string{"ANALYZE", "ADVERTISE"}},
				}
			},
			wantConnected: true,
			wantBusiness:  businessflow.AccessRoleNone,
			wantAdAccount: businessflow.AccessRoleAdvertiser,
		},
		{
			name: "user missing from the ad account",
			graph: func(state *testingutil.GraphState) {
				state.AdAccountUsers[testingutil.FakeAdAccountID] = []services.AdAccountUser{
					{ID: "99999", Role: "1001"},
				}
			},
			wantBusiness:  businessflow.AccessRoleAdmin,
			wantAdAccount: businessflow.AccessRoleNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.graph != nil {
				h.graph.Update(tt.graph)
			}
			campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic, tt.opts...)
			require.NoError(t, err)

			resp, err := h.checkFlow.AdminAccess(context.Background(), campaignRequest(campaign))
			require.NoError(t, err)
			assert.Equal(t, tt.wantConnected, resp.AdminConnected)
			assert.Equal(t, string(tt.wantBusiness), resp.BusinessRole)
			assert.Equal(t, string(tt.wantAdAccount), resp.AdAccountRole)
			assert.Equal(t, testingutil.FakeUserID, resp.FBUserID)
			if tt.wantConnected {
				assert.Empty(t, resp.Reason)
			} else {
				assert.NotEmpty(t, resp.Reason)
			}
		})
	}
}

func TestAdPlatformCheckFlow_AdminAccessRefusedLookup(t *testing.T) {
	h := newHarness(t)
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	h.graph.FailNext(testingutil.GraphOpAdAccountUsers, 1, http.StatusBadRequest, services.GraphErrorCodePermission, "Missing ads_management permission")

	resp, err := h.checkFlow.AdminAccess(context.Background(), campaignRequest(campaign))
	require.NoError(t, err)
	assert.False(t, resp.AdminConnected)
	assert.Equal(t, string(businessflow.AccessRoleNone), resp.AdAccountRole)
	assert.Contains(t, resp.Reason, "ads_management")
}

func TestAdPlatformCheckFlow_PaymentEligibility(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		capabilities []string
		wantEligible bool
		wantStatus   string
	}{
		{name: "active without capabilities", status: 1, wantEligible: true, wantStatus: "ACTIVE"},
		{name: "active with payment capability", status: 1, capabilities: []string{"HAS_AVAILABLE_PAYMENT_METHODS"}, wantEligible: true, wantStatus: "ACTIVE"},
		{name: "active without payment capability", status: 1, capabilities: []string{"CAN_USE_MOBILE_LINK"}, wantStatus: "ACTIVE"},
		{name: "disabled", status: 2, wantStatus: "DISABLED"},
		{name: "unsettled", status: 3, capabilities: []string{"HAS_AVAILABLE_PAYMENT_METHODS"}, wantStatus: "UNSETTLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.graph.Update(func(state *testingutil.GraphState) {
				account := state.AdAccounts[testingutil.FakeAdAccountID]
				account.AccountStatus = tt.status
				account.Capabilities = tt.capabilities
				state.AdAccounts[testingutil.FakeAdAccountID] = account
			})
			campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
			require.NoError(t, err)

			resp, err := h.checkFlow.PaymentEligibility(context.Background(), campaignRequest(campaign))
			require.NoError(t, err)
			assert.Equal(t, tt.wantEligible, resp.Eligible)
			assert.Equal(t, tt.wantStatus, resp.StatusName)
			assert.Equal(t, testingutil.FakeAdAccountID, resp.AdAccountID)
			assert.NotNil(t, resp.Capabilities)
			if !tt.wantEligible {
				assert.NotEmpty(t, resp.Reason)
			}
		})
	}
}

func TestAdPlatformCheckFlow_ConfirmPaymentConnected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	resp, err := h.checkFlow.ConfirmPaymentConnected(ctx, campaignRequest(campaign), testMetadata())
	require.NoError(t, err)
	assert.True(t, resp.PaymentConnected)

	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, conn.AdAccountPaymentConnected)

	h.graph.Update(func(state *testingutil.GraphState) {
		account := state.AdAccounts[testingutil.FakeAdAccountID]
		account.AccountStatus = 2
		state.AdAccounts[testingutil.FakeAdAccountID] = account
	})

	resp, err = h.checkFlow.ConfirmPaymentConnected(ctx, campaignRequest(campaign), testMetadata())
	require.NoError(t, err)
	assert.False(t, resp.PaymentConnected)
	assert.Equal(t, "DISABLED", resp.Eligibility.StatusName)

	conn, err = h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.False(t, conn.AdAccountPaymentConnected)
	assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionPaymentConfirmed)
}

func TestAdPlatformCheckFlow_ConfirmPaymentConnectedChecksCurrentAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	// the originally selected account is disabled, the replacement is active
	h.graph.Update(func(state *testingutil.GraphState) {
		account := state.AdAccounts[testingutil.FakeAdAccountID]
		account.AccountStatus = 2
		state.AdAccounts[testingutil.FakeAdAccountID] = account
	})

	unlock, err := h.locker.Lock(ctx, campaign.ID)
	require.NoError(t, err)

	type outcome struct {
		resp *dto.ConfirmPaymentConnectedResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h.checkFlow.ConfirmPaymentConnected(ctx, campaignRequest(campaign), testMetadata())
		done <- outcome{resp, err}
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, h.connRepo.UpdateSelection(ctx, campaign.ID, models.ConnectionSelection{
		AdAccountID: utils.ToPtr(testingutil.FakePrefixAdAccountID),
	}))
	unlock()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("payment confirmation did not finish")
	}
	require.NoError(t, got.err)
	assert.Equal(t, testingutil.FakePrefixAdAccountID, got.resp.Eligibility.AdAccountID)
	assert.True(t, got.resp.PaymentConnected)

	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, testingutil.FakePrefixAdAccountID, utils.Deref(conn.SelectedAdAccountID))
	assert.True(t, conn.AdAccountPaymentConnected)
}

func TestAdPlatformCheckFlow_RequiresSelection(t *testing.T) {
	h := newHarness(t)
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
		func(conn *models.AdPlatformConnection) { conn.SelectedAdAccountID = nil })
	require.NoError(t, err)

	_, err = h.checkFlow.Compatibility(context.Background(), campaignRequest(campaign))
	assert.True(t, businessflow.IsSelectionIncomplete(err))
	_, err = h.checkFlow.AdminAccess(context.Background(), campaignRequest(campaign))
	assert.True(t, businessflow.IsSelectionIncomplete(err))
	_, err = h.checkFlow.PaymentEligibility(context.Background(), campaignRequest(campaign))
	assert.True(t, businessflow.IsSelectionIncomplete(err))
}
