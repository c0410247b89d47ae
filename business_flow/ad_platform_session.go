package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/adbridge/app/services"
	"github.com/amirphl/adbridge/models"
	"github.com/amirphl/adbridge/repository"
	"github.com/amirphl/adbridge/utils"
)

// adPlatformSession is the decrypted connection of one campaign, loaded per request
type adPlatformSession struct {
	campaign *models.Campaign
	conn     *models.AdPlatformConnection
	token    string
	cipher   services.TokenCipher
}

// sessionLoader reads connections from the store and unseals their tokens
type sessionLoader struct {
	connRepo repository.AdPlatformConnectionRepository
	cipher   services.TokenCipher
}

// load returns the session of a campaign. A missing or nulled token yields
// ErrTokenMissing and an expired one ErrTokenExpired; there is no implicit refresh.
func (l sessionLoader) load(ctx context.Context, campaign *models.Campaign) (*adPlatformSession, error) {
	conn, err := l.connRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if !conn.HasToken() {
		return nil, ErrTokenMissing
	}
	if conn.IsTokenExpired(utils.UTCNow()) {
		return nil, ErrTokenExpired
	}

	token, err := l.cipher.Decrypt(*conn.LongLivedToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenUnreadable, err)
	}

	return &adPlatformSession{campaign: campaign, conn: conn, token: token, cipher: l.cipher}, nil
}

func (s *adPlatformSession) businessID() string {
	return strings.TrimSpace(utils.Deref(s.conn.SelectedBusinessID))
}

func (s *adPlatformSession) pageID() string {
	return strings.TrimSpace(utils.Deref(s.conn.SelectedPageID))
}

func (s *adPlatformSession) adAccountID() string {
	return strings.TrimSpace(utils.Deref(s.conn.SelectedAdAccountID))
}

func (s *adPlatformSession) igUserID() string {
	return strings.TrimSpace(utils.Deref(s.conn.SelectedIGUserID))
}

func (s *adPlatformSession) fbUserID() string {
	return utils.Deref(s.conn.FBUserID)
}

// pageToken unseals the stored page access token, if any
func (s *adPlatformSession) pageToken() (string, error) {
	if s.conn.SelectedPageAccessToken == nil || *s.conn.SelectedPageAccessToken == "" {
		return "", nil
	}
	token, err := s.cipher.Decrypt(*s.conn.SelectedPageAccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnreadable, err)
	}
	return token, nil
}

// requireSelection fails with ErrSelectionIncomplete naming the missing assets
func (s *adPlatformSession) requireSelection(page, adAccount bool) error {
	var missing []string
	if page && s.pageID() == "" {
		missing = append(missing, "page")
	}
	if adAccount && s.adAccountID() == "" {
		missing = append(missing, "ad account")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: select %s", ErrSelectionIncomplete, strings.Join(missing, " and "))
	}
	return nil
}
