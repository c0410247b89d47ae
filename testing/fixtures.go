package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/config"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/utils"
)

// FakeTokenEncryptionKey seals tokens written by fixtures
const FakeTokenEncryptionKey = "test-token-encryption-key-0123456789"

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB     *TestDB
	Cipher services.TokenCipher
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db, Cipher: NewTestTokenCipher()}
}

// NewTestTokenCipher returns the cipher fixtures seal tokens with
func NewTestTokenCipher() services.TokenCipher {
	cipher, err := services.NewTokenCipher(FakeTokenEncryptionKey)
	if err != nil {
		panic(fmt.Sprintf("test token cipher: %v", err))
	}
	return cipher
}

// TestAdPlatformConfig points the Graph integration at a fake server
func TestAdPlatformConfig(graph *GraphServer) config.AdPlatformConfig {
	return config.AdPlatformConfig{
		AppID:              FakeAppID,
		AppSecret:          FakeAppSecret,
		GraphBaseURL:       graph.AdPlatformBaseURL(),
		GraphVersion:       graph.Version,
		RequestTimeout:     5 * time.Second,
		DefaultTokenTTL:    utils.DefaultLongLivedTokenTTL,
		TokenEncryptionKey: FakeTokenEncryptionKey,
		PrivacyPolicyURL:   "https://example.com/privacy",
		MaxListPages:       10,
		LockTTL:            time.Minute,
		LockWait:           10 * time.Second,
	}
}

// CreateTestCampaign creates an initiated campaign with a budget and a goal
func (tf *TestFixtures) CreateTestCampaign(customerID uint, goal string) (*models.Campaign, error) {
	campaign := &models.Campaign{
		CustomerID: customerID,
		Status:     models.CampaignStatusInitiated,
		Spec: models.CampaignSpec{
			Title:          utils.ToPtr("Spring Sale"),
			Goal:           utils.ToPtr(goal),
			DailyBudget:    utils.ToPtr(int64(5000)),
			Currency:       utils.ToPtr("USD"),
			Countries:      []string{"US", "CA"},
			AgeMin:         utils.ToPtr(18),
			AgeMax:         utils.ToPtr(45),
			DestinationURL: utils.ToPtr("https://example.com/spring"),
		},
		State: models.CampaignState{},
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// ConnectionOption adjusts a fixture connection before it is stored
type ConnectionOption func(conn *models.AdPlatformConnection)

// WithAdAccount selects a different ad account
func WithAdAccount(adAccountID string) ConnectionOption {
	return func(conn *models.AdPlatformConnection) {
		conn.SelectedAdAccountID = utils.ToPtr(adAccountID)
	}
}

// WithoutBusiness clears the business selection
func WithoutBusiness() ConnectionOption {
	return func(conn *models.AdPlatformConnection) {
		conn.SelectedBusinessID = nil
		conn.SelectedBusinessName = nil
	}
}

// WithoutInstagram clears the Instagram selection
func WithoutInstagram() ConnectionOption {
	return func(conn *models.AdPlatformConnection) {
		conn.SelectedIGUserID = nil
		conn.SelectedIGUsername = nil
	}
}

// WithTokenExpiresAt overrides the token expiry
func WithTokenExpiresAt(at time.Time) ConnectionOption {
	return func(conn *models.AdPlatformConnection) {
		conn.TokenExpiresAt = &at
	}
}

// CreateTestConnection stores a connected, fully selected connection for the
// campaign using the default fake Graph fixture
func (tf *TestFixtures) CreateTestConnection(campaignID uint, opts ...ConnectionOption) (*models.AdPlatformConnection, error) {
	token, err := tf.Cipher.Encrypt(FakeLongLivedToken)
	if err != nil {
		return nil, err
	}
	pageToken, err := tf.Cipher.Encrypt(FakePageToken)
	if err != nil {
		return nil, err
	}

	conn := &models.AdPlatformConnection{
		CampaignID:              campaignID,
		FBUserID:                utils.ToPtr(FakeUserID),
		LongLivedToken:          &token,
		TokenExpiresAt:          utils.ToPtr(utils.UTCNow().Add(30 * 24 * time.Hour)),
		SelectedBusinessID:      utils.ToPtr(FakeBusinessID),
		SelectedBusinessName:    utils.ToPtr(FakeBusinessName),
		SelectedPageID:          utils.ToPtr(FakePageID),
		SelectedPageName:        utils.ToPtr(FakePageName),
		SelectedPageAccessToken: &pageToken,
		SelectedIGUserID:        utils.ToPtr(FakeIGUserID),
		SelectedIGUsername:      utils.ToPtr(FakeIGUsername),
		SelectedAdAccountID:     utils.ToPtr(FakeAdAccountID),
		SelectedAdAccountName:   utils.ToPtr("Primary Account"),
	}
	for _, opt := range opts {
		opt(conn)
	}

	if err := tf.DB.DB.Create(conn).Error; err != nil {
		return nil, fmt.Errorf("failed to create test connection: %w", err)
	}
	return conn, nil
}

// CreateConnectedCampaign creates a campaign with a ready connection
func (tf *TestFixtures) CreateConnectedCampaign(customerID uint, goal string, opts ...ConnectionOption) (*models.Campaign, *models.AdPlatformConnection, error) {
	campaign, err := tf.CreateTestCampaign(customerID, goal)
	if err != nil {
		return nil, nil, err
	}
	conn, err := tf.CreateTestConnection(campaign.ID, opts...)
	if err != nil {
		return nil, nil, err
	}
	return campaign, conn, nil
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(customerID, campaignID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test audit log for action: %s", action)
	auditLog := &models.AuditLog{
		CustomerID:  customerID,
		CampaignID:  campaignID,
		Action:      action,
		Description: &description,
		Success:     utils.ToPtr(success),
		IPAddress:   utils.ToPtr("127.0.0.1"),
		UserAgent:   utils.ToPtr("Test User Agent"),
	}
	if err := tf.DB.DB.Create(auditLog).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}
	return auditLog, nil
}
