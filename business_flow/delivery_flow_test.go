package businessflow_test

import (
	"context"
	"net/http"
	"sync"
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

const testImageURL = "https://cdn.example.com/creative.png"

func orchestrateRequest(campaign *models.Campaign) *dto.OrchestrateDeliveryRequest {
	return &dto.OrchestrateDeliveryRequest{
		CampaignUUID: campaign.UUID.String(),
		CustomerID:   campaign.CustomerID,
		ImageURL:     testImageURL,
		Message:      "Fresh deals all week",
		Headline:     "Spring Sale",
	}
}

func TestDeliveryFlow_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalLeadGeneration)
	require.NoError(t, err)

	resp, err := h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)

	assert.Equal(t, []string{
		businessflow.DeliveryStepCampaign,
		businessflow.DeliveryStepAdSet,
		businessflow.DeliveryStepImage,
		businessflow.DeliveryStepLeadForm,
		businessflow.DeliveryStepCreative,
		businessflow.DeliveryStepAd,
	}, resp.CreatedSteps)
	assert.Empty(t, resp.SkippedSteps)
	assert.True(t, resp.State.Complete)
	assert.Equal(t, string(models.DeliveryStageAdCreated), resp.State.Stage)

	// Remote objects were created parent first and all paused
	var kinds []string
	for _, id := range h.graph.CreationOrder() {
		obj, ok := h.graph.Object(id)
		require.True(t, ok)
		kinds = append(kinds, obj.Kind)
		if obj.Kind == "campaign" || obj.Kind == "adset" || obj.Kind == "ad" {
			assert.Equal(t, models.RemoteStatusPaused, obj.Status, obj.Kind)
		}
	}
	assert.Equal(t, []string{"campaign", "adset", "image", "leadform", "adcreative", "ad"}, kinds)

	adset, ok := h.graph.Object(*resp.State.AdSetID)
	require.True(t, ok)
	assert.Equal(t, *resp.State.CampaignID, adset.Params.Get("campaign_id"))
	assert.Equal(t, "5000", adset.Params.Get("daily_budget"))
	assert.JSONEq(t, `{"page_id":"`+testingutil.FakePageID+`"}`, adset.Params.Get("promoted_object"))

	campaignObj, ok := h.graph.Object(*resp.State.CampaignID)
	require.True(t, ok)
	assert.Equal(t, "OUTCOME_LEADS", campaignObj.Params.Get("objective"))
	assert.Equal(t, "[]", campaignObj.Params.Get("special_ad_categories"))

	creative, ok := h.graph.Object(*resp.State.CreativeID)
	require.True(t, ok)
	assert.Contains(t, creative.Params.Get("object_story_spec"), *resp.State.LeadFormID)
	assert.Contains(t, creative.Params.Get("object_story_spec"), *resp.State.ImageHash)

	stored, err := h.campaignRepo.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusInProgress, stored.Status)

	// Publishing is explicit and targets the stored ad
	published, err := h.deliveryFlow.Publish(ctx, &dto.PublishDeliveryRequest{
		CampaignUUID: campaign.UUID.String(),
		CustomerID:   testCustomerID,
		TargetType:   businessflow.PublishTargetAd,
		TargetID:     *resp.State.AdID,
	}, testMetadata())
	require.NoError(t, err)
	assert.Equal(t, string(models.DeliveryStagePublished), published.State.Stage)
	require.NotNil(t, published.State.PublishedAt)

	ad, ok := h.graph.Object(*resp.State.AdID)
	require.True(t, ok)
	assert.Equal(t, models.RemoteStatusActive, ad.Status)

	stored, err = h.campaignRepo.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPublished, stored.Status)

	actions := auditActions(t, h, campaign.ID)
	assert.Contains(t, actions, models.AuditActionDeliveryCompleted)
	assert.Contains(t, actions, models.AuditActionDeliveryPublished)
}

func TestDeliveryFlow_ResumesAfterFailedStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	h.graph.FailNext(testingutil.GraphOpCreateAdSet, 1, http.StatusBadRequest, 100, "Invalid parameter")

	_, err = h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.Error(t, err)
	failed, ok := businessflow.AsPipelineStepFailed(err)
	require.True(t, ok)
	assert.Equal(t, businessflow.DeliveryStepAdSet, failed.Step)
	assert.True(t, businessflow.IsRemoteError(err))

	state, err := h.campaignRepo.DeliveryData(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, state.CampaignID)
	assert.Nil(t, state.AdSetID)
	assert.Equal(t, models.DeliveryStageCampaignCreated, state.Stage())
	require.NotNil(t, state.LastFailedStep)
	assert.Equal(t, businessflow.DeliveryStepAdSet, *state.LastFailedStep)
	campaignID := *state.CampaignID

	resp, err := h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)

	assert.Equal(t, 1, h.graph.Calls(testingutil.GraphOpCreateCampaign))
	assert.Len(t, h.graph.Objects("campaign"), 1)
	assert.Equal(t, campaignID, *resp.State.CampaignID)
	assert.Equal(t, []string{businessflow.DeliveryStepCampaign, businessflow.DeliveryStepLeadForm}, resp.SkippedSteps)
	assert.Equal(t, []string{
		businessflow.DeliveryStepAdSet,
		businessflow.DeliveryStepImage,
		businessflow.DeliveryStepCreative,
		businessflow.DeliveryStepAd,
	}, resp.CreatedSteps)
	assert.Nil(t, resp.State.LastFailedStep)
	assert.Nil(t, resp.State.LastError)

	// A complete chain is left alone
	again, err := h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)
	assert.Empty(t, again.CreatedSteps)
	assert.Equal(t, 1, h.graph.Calls(testingutil.GraphOpCreateAd))

	assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionDeliveryStepFailed)
}

func TestDeliveryFlow_PreflightRejectsIncompatibleSelection(t *testing.T) {
	tests := []struct {
		name      string
		adAccount string
	}{
		{name: "prefix of an authorized account", adAccount: testingutil.FakePrefixAdAccountID},
		{name: "authorized account is a prefix", adAccount: testingutil.FakeForeignAdAccountID},
		{name: "foreign account without act_ prefix", adAccount: "5010"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
				testingutil.WithAdAccount(tt.adAccount), testingutil.WithoutBusiness())
			require.NoError(t, err)

			_, err = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
			require.Error(t, err)
			assert.True(t, businessflow.IsCompatibilityError(err))
			assert.Equal(t, "SELECTION_INCOMPATIBLE", businessErrorCode(t, err))
			assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpCreateCampaign))
		})
	}
}

func TestDeliveryFlow_Prerequisites(t *testing.T) {
	t.Run("missing budget", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		campaign.Spec.DailyBudget = nil
		require.NoError(t, h.campaignRepo.Update(context.Background(), campaign))

		_, err = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
		require.ErrorIs(t, err, businessflow.ErrDeliveryBudgetRequired)
		assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpCreateCampaign))
	})

	t.Run("missing image", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		req := orchestrateRequest(campaign)
		req.ImageURL = ""

		_, err = h.deliveryFlow.Orchestrate(context.Background(), req, testMetadata())
		require.ErrorIs(t, err, businessflow.ErrDeliveryImageRequired)
	})

	t.Run("invalid image url", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		req := orchestrateRequest(campaign)
		req.ImageURL = "ftp://cdn.example.com/creative.png"

		_, err = h.deliveryFlow.Orchestrate(context.Background(), req, testMetadata())
		require.ErrorIs(t, err, businessflow.ErrDeliveryImageURLInvalid)
	})

	t.Run("missing page selection", func(t *testing.T) {
		h := newHarness(t)
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		_, err = h.fixtures.CreateTestConnection(campaign.ID, func(conn *models.AdPlatformConnection) {
			conn.SelectedPageID = nil
		})
		require.NoError(t, err)

		_, err = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
		assert.True(t, businessflow.IsSelectionIncomplete(err))
	})

	t.Run("expired token", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic,
			testingutil.WithTokenExpiresAt(utils.UTCNow().Add(-time.Minute)))
		require.NoError(t, err)

		_, err = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
		assert.True(t, businessflow.IsTokenExpired(err))
		assert.Equal(t, "AD_PLATFORM_TOKEN_EXPIRED", businessErrorCode(t, err))
	})

	t.Run("not connected", func(t *testing.T) {
		h := newHarness(t)
		campaign, err := h.fixtures.CreateTestCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)

		_, err = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
		assert.True(t, businessflow.IsTokenMissing(err))
	})

	t.Run("another customer", func(t *testing.T) {
		h := newHarness(t)
		campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
		require.NoError(t, err)
		req := orchestrateRequest(campaign)
		req.CustomerID = otherCustomerID

		_, err = h.deliveryFlow.Orchestrate(context.Background(), req, testMetadata())
		assert.True(t, businessflow.IsCampaignAccessDenied(err))
	})
}

func TestDeliveryFlow_SuppliedImageHashSkipsUpload(t *testing.T) {
	h := newHarness(t)
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	req := orchestrateRequest(campaign)
	req.ImageURL = ""
	req.ImageHash = "existinghash"

	resp, err := h.deliveryFlow.Orchestrate(context.Background(), req, testMetadata())
	require.NoError(t, err)
	assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpUploadImage))
	assert.Contains(t, resp.SkippedSteps, businessflow.DeliveryStepImage)
	require.NotNil(t, resp.State.ImageHash)
	assert.Equal(t, "existinghash", *resp.State.ImageHash)
}

func TestDeliveryFlow_ConcurrentRunsCreateOneChain(t *testing.T) {
	h := newHarness(t)
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	h.graph.Delay(testingutil.GraphOpCreateCampaign, 200*time.Millisecond)

	const runs = 3
	var wg sync.WaitGroup
	results := make([]*dto.OrchestrateDeliveryResponse, runs)
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.deliveryFlow.Orchestrate(context.Background(), orchestrateRequest(campaign), testMetadata())
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		if len(results[i].CreatedSteps) > 0 {
			created++
		}
		assert.True(t, results[i].State.Complete)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, h.graph.Objects("campaign"), 1)
	assert.Len(t, h.graph.Objects("adset"), 1)
	assert.Len(t, h.graph.Objects("ad"), 1)
}

func TestDeliveryFlow_DisconnectWhileWaitingStopsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	unlock, err := h.locker.Lock(ctx, campaign.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, h.connRepo.Disconnect(ctx, campaign.ID))
	unlock()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestration did not finish")
	}
	assert.True(t, businessflow.IsTokenMissing(err))
	assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpCreateCampaign))
	assert.Empty(t, h.graph.CreationOrder())
}

func TestDeliveryFlow_Publish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)

	publish := func(targetType, targetID string) (*dto.PublishDeliveryResponse, error) {
		return h.deliveryFlow.Publish(ctx, &dto.PublishDeliveryRequest{
			CampaignUUID: campaign.UUID.String(),
			CustomerID:   testCustomerID,
			TargetType:   targetType,
			TargetID:     targetID,
		}, testMetadata())
	}

	_, err = publish(businessflow.PublishTargetCampaign, "900001")
	require.ErrorIs(t, err, businessflow.ErrDeliveryIncomplete)

	resp, err := h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)

	tests := []struct {
		name       string
		targetType string
		targetID   string
		wantErr    error
	}{
		{name: "unknown target type", targetType: "adset", targetID: *resp.State.AdSetID, wantErr: businessflow.ErrInvalidPublishTarget},
		{name: "ad id as campaign", targetType: businessflow.PublishTargetCampaign, targetID: *resp.State.AdID, wantErr: businessflow.ErrPublishTargetMismatch},
		{name: "foreign campaign id", targetType: businessflow.PublishTargetCampaign, targetID: "123", wantErr: businessflow.ErrPublishTargetMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := publish(tt.targetType, tt.targetID)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, h.graph.Calls(testingutil.GraphOpUpdateStatus))

	t.Run("remote failure leaves state paused", func(t *testing.T) {
		h.graph.FailNext(testingutil.GraphOpUpdateStatus, 1, http.StatusBadRequest, 100, "Cannot activate")

		_, err := publish(businessflow.PublishTargetCampaign, *resp.State.CampaignID)
		require.Error(t, err)
		assert.True(t, businessflow.IsRemoteError(err))

		state, err := h.campaignRepo.DeliveryData(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStageAdCreated, state.Stage())
	})

	t.Run("campaign", func(t *testing.T) {
		published, err := publish(businessflow.PublishTargetCampaign, *resp.State.CampaignID)
		require.NoError(t, err)
		require.NotNil(t, published.State.CampaignStatus)
		assert.Equal(t, models.RemoteStatusActive, *published.State.CampaignStatus)
		assert.Equal(t, string(models.DeliveryStagePublished), published.State.Stage)

		obj, ok := h.graph.Object(*resp.State.CampaignID)
		require.True(t, ok)
		assert.Equal(t, models.RemoteStatusActive, obj.Status)
	})
}

func TestDeliveryFlow_ResetKeepsConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	campaign, _, err := h.fixtures.CreateConnectedCampaign(testCustomerID, models.CampaignGoalTraffic)
	require.NoError(t, err)
	_, err = h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)

	req := &dto.AdPlatformCampaignRequest{CampaignUUID: campaign.UUID.String(), CustomerID: testCustomerID}
	_, err = h.deliveryFlow.ResetDelivery(ctx, req, testMetadata())
	require.NoError(t, err)

	state, err := h.deliveryFlow.GetDeliveryState(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, string(models.DeliveryStageNoCampaign), state.Stage)
	assert.Nil(t, state.CampaignID)

	conn, err := h.connRepo.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, conn.HasToken())
	assert.Equal(t, testingutil.FakeAdAccountID, utils.Deref(conn.SelectedAdAccountID))

	// Starting over creates a second chain; the first one is left on the platform
	_, err = h.deliveryFlow.Orchestrate(ctx, orchestrateRequest(campaign), testMetadata())
	require.NoError(t, err)
	assert.Len(t, h.graph.Objects("campaign"), 2)
	assert.Contains(t, auditActions(t, h, campaign.ID), models.AuditActionDeliveryReset)
}
