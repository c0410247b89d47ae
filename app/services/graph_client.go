package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirphl/adbridge/config"
)

const (
	maxGraphResponseBytes = 4 << 20
	maxRawErrorBytes      = 256
	defaultGraphPageLimit = "100"

	adAccountFields = "id,account_id,name,account_status,disable_reason,currency,capabilities,funding_source,business{id,name}"
	pageFields      = "id,name,category,access_token,tasks,instagram_business_account{id,username}"
)

// GraphClient is the Marketing API surface used by the publishing pipeline.
// Every call takes the access token explicitly; the client holds no session.
type GraphClient interface {
	ExchangeToken(ctx context.Context, shortLivedToken string) (*TokenExchangeResult, error)
	GetMe(ctx context.Context, token string) (*GraphUser, error)
	RevokePermissions(ctx context.Context, token string) error

	ListBusinesses(ctx context.Context, token string) ([]Business, error)
	ListPages(ctx context.Context, token string) ([]Page, error)
	ListAdAccounts(ctx context.Context, token string) ([]AdAccount, error)
	ListBusinessAdAccounts(ctx context.Context, token, businessID string) ([]AdAccount, error)
	ListPageAdAccounts(ctx context.Context, token, pageID string) ([]AdAccount, error)
	GetPageInstagramAccount(ctx context.Context, token, pageID string) (*InstagramAccount, error)
	GetAdAccount(ctx context.Context, token, adAccountID string) (*AdAccount, error)
	ListBusinessUsers(ctx context.Context, token, businessID string) ([]BusinessUser, error)
	ListAdAccountUsers(ctx context.Context, token, adAccountID string) ([]AdAccountUser, error)

	CreateCampaign(ctx context.Context, token, adAccountID string, params CreateCampaignParams) (string, error)
	CreateAdSet(ctx context.Context, token, adAccountID string, params CreateAdSetParams) (string, error)
	UploadImage(ctx context.Context, token, adAccountID, imageURL string) (*AdImage, error)
	CreateLeadForm(ctx context.Context, pageToken, pageID string, params CreateLeadFormParams) (string, error)
	CreateAdCreative(ctx context.Context, token, adAccountID string, params CreateAdCreativeParams) (string, error)
	CreateAd(ctx context.Context, token, adAccountID string, params CreateAdParams) (string, error)
	UpdateStatus(ctx context.Context, token, objectID, status string) error
}

// GraphClientImpl implements GraphClient over HTTPS
type GraphClientImpl struct {
	BaseURL    string
	Version    string
	AppID      string
	AppSecret  string
	Timeout    time.Duration
	MaxPages   int
	HTTPClient *http.Client
}

// NewGraphClient creates a Graph API client from the ad platform configuration
func NewGraphClient(cfg config.AdPlatformConfig) GraphClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxPages := cfg.MaxListPages
	if maxPages <= 0 {
		maxPages = 10
	}
	return &GraphClientImpl{
		BaseURL:    strings.TrimRight(cfg.GraphBaseURL, "/"),
		Version:    strings.Trim(cfg.GraphVersion, "/"),
		AppID:      cfg.AppID,
		AppSecret:  cfg.AppSecret,
		Timeout:    timeout,
		MaxPages:   maxPages,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ExchangeToken trades a short-lived user token for a long-lived one
func (c *GraphClientImpl) ExchangeToken(ctx context.Context, shortLivedToken string) (*TokenExchangeResult, error) {
	if c.AppID == "" || c.AppSecret == "" {
		return nil, ErrAppCredentialsMissing
	}

	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", c.AppID)
	query.Set("client_secret", c.AppSecret)
	query.Set("fb_exchange_token", shortLivedToken)

	var out TokenExchangeResult
	if err := c.get(ctx, "", "/oauth/access_token", "oauth/access_token", query, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, ErrEmptyGraphResponse
	}
	return &out, nil
}

func (c *GraphClientImpl) GetMe(ctx context.Context, token string) (*GraphUser, error) {
	var out GraphUser
	if err := c.get(ctx, token, "/me", "me", fields("id,name"), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, ErrEmptyGraphResponse
	}
	return &out, nil
}

// RevokePermissions de-authorizes the app for the token's user
func (c *GraphClientImpl) RevokePermissions(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.nodeURL("me/permissions"), nil)
	if err != nil {
		return err
	}
	var out successResult
	return c.do(req, token, "/me/permissions", &out)
}

func (c *GraphClientImpl) ListBusinesses(ctx context.Context, token string) ([]Business, error) {
	return listAll[Business](ctx, c, token, "/me/businesses", "me/businesses", fields("id,name"))
}

func (c *GraphClientImpl) ListPages(ctx context.Context, token string) ([]Page, error) {
	return listAll[Page](ctx, c, token, "/me/accounts", "me/accounts", fields(pageFields))
}

func (c *GraphClientImpl) ListAdAccounts(ctx context.Context, token string) ([]AdAccount, error) {
	return listAll[AdAccount](ctx, c, token, "/me/adaccounts", "me/adaccounts", fields(adAccountFields))
}

func (c *GraphClientImpl) ListBusinessAdAccounts(ctx context.Context, token, businessID string) ([]AdAccount, error) {
	return listAll[AdAccount](ctx, c, token, "/{business}/owned_ad_accounts",
		url.PathEscape(businessID)+"/owned_ad_accounts", fields("id,account_id,name,account_status,currency"))
}

// ListPageAdAccounts returns the ad accounts explicitly authorized to advertise for the page
func (c *GraphClientImpl) ListPageAdAccounts(ctx context.Context, token, pageID string) ([]AdAccount, error) {
	return listAll[AdAccount](ctx, c, token, "/{page}/adaccounts",
		url.PathEscape(pageID)+"/adaccounts", fields("id,account_id,name,account_status"))
}

// GetPageInstagramAccount returns the Instagram business account linked to a
// page, or nil when none is linked
func (c *GraphClientImpl) GetPageInstagramAccount(ctx context.Context, token, pageID string) (*InstagramAccount, error) {
	var out Page
	if err := c.get(ctx, token, "/{page}", url.PathEscape(pageID), fields("id,instagram_business_account{id,username}"), &out); err != nil {
		return nil, err
	}
	return out.InstagramBusinessAccount, nil
}

func (c *GraphClientImpl) GetAdAccount(ctx context.Context, token, adAccountID string) (*AdAccount, error) {
	var out AdAccount
	if err := c.get(ctx, token, "/act_{id}", AdAccountNode(adAccountID), fields(adAccountFields), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, ErrEmptyGraphResponse
	}
	return &out, nil
}

func (c *GraphClientImpl) ListBusinessUsers(ctx context.Context, token, businessID string) ([]BusinessUser, error) {
	return listAll[BusinessUser](ctx, c, token, "/{business}/business_users",
		url.PathEscape(businessID)+"/business_users", fields("id,name,email,role"))
}

func (c *GraphClientImpl) ListAdAccountUsers(ctx context.Context, token, adAccountID string) ([]AdAccountUser, error) {
	return listAll[AdAccountUser](ctx, c, token, "/act_{id}/users",
		AdAccountNode(adAccountID)+"/users", fields("id,name,role,tasks"))
}

func (c *GraphClientImpl) CreateCampaign(ctx context.Context, token, adAccountID string, params CreateCampaignParams) (string, error) {
	categories := params.SpecialAdCategories
	if categories == nil {
		categories = []string{}
	}
	form := url.Values{}
	form.Set("name", params.Name)
	form.Set("objective", params.Objective)
	form.Set("status", params.Status)
	if err := setJSON(form, "special_ad_categories", categories); err != nil {
		return "", err
	}

	return c.create(ctx, token, "/act_{id}/campaigns", AdAccountNode(adAccountID)+"/campaigns", form)
}

func (c *GraphClientImpl) CreateAdSet(ctx context.Context, token, adAccountID string, params CreateAdSetParams) (string, error) {
	form := url.Values{}
	form.Set("name", params.Name)
	form.Set("campaign_id", params.CampaignID)
	form.Set("daily_budget", strconv.FormatInt(params.DailyBudget, 10))
	form.Set("billing_event", params.BillingEvent)
	form.Set("optimization_goal", params.OptimizationGoal)
	form.Set("status", params.Status)
	if params.BidStrategy != "" {
		form.Set("bid_strategy", params.BidStrategy)
	}
	if params.DestinationType != "" {
		form.Set("destination_type", params.DestinationType)
	}
	if params.StartTime != nil {
		form.Set("start_time", params.StartTime.UTC().Format(time.RFC3339))
	}
	if params.EndTime != nil {
		form.Set("end_time", params.EndTime.UTC().Format(time.RFC3339))
	}
	if err := setJSON(form, "promoted_object", params.PromotedObject); err != nil {
		return "", err
	}
	if err := setJSON(form, "targeting", params.Targeting); err != nil {
		return "", err
	}

	return c.create(ctx, token, "/act_{id}/adsets", AdAccountNode(adAccountID)+"/adsets", form)
}

// UploadImage registers an image by URL and returns its hash
func (c *GraphClientImpl) UploadImage(ctx context.Context, token, adAccountID, imageURL string) (*AdImage, error) {
	form := url.Values{}
	form.Set("url", imageURL)

	var out adImagesResult
	if err := c.post(ctx, token, "/act_{id}/adimages", AdAccountNode(adAccountID)+"/adimages", form, &out); err != nil {
		return nil, err
	}
	for _, img := range out.Images {
		if img.Hash != "" {
			return &img, nil
		}
	}
	return nil, ErrEmptyGraphResponse
}

// CreateLeadForm creates an instant form on a page. It must be called with a page token.
func (c *GraphClientImpl) CreateLeadForm(ctx context.Context, pageToken, pageID string, params CreateLeadFormParams) (string, error) {
	questions := make([]map[string]string, 0, len(params.Questions))
	for _, q := range params.Questions {
		questions = append(questions, map[string]string{"type": q})
	}
	privacy := map[string]string{"url": params.PrivacyPolicyURL}
	if params.PrivacyLinkText != "" {
		privacy["link_text"] = params.PrivacyLinkText
	}

	form := url.Values{}
	form.Set("name", params.Name)
	if params.Locale != "" {
		form.Set("locale", params.Locale)
	}
	if params.FollowUpActionURL != "" {
		form.Set("follow_up_action_url", params.FollowUpActionURL)
	}
	if err := setJSON(form, "questions", questions); err != nil {
		return "", err
	}
	if err := setJSON(form, "privacy_policy", privacy); err != nil {
		return "", err
	}

	return c.create(ctx, pageToken, "/{page}/leadgen_forms", url.PathEscape(pageID)+"/leadgen_forms", form)
}

func (c *GraphClientImpl) CreateAdCreative(ctx context.Context, token, adAccountID string, params CreateAdCreativeParams) (string, error) {
	callToAction := map[string]any{"type": params.CallToActionType}
	ctaValue := map[string]string{}
	if params.LeadFormID != "" {
		ctaValue["lead_gen_form_id"] = params.LeadFormID
	}
	if params.Link != "" {
		ctaValue["link"] = params.Link
	}
	if len(ctaValue) > 0 {
		callToAction["value"] = ctaValue
	}

	linkData := map[string]any{
		"image_hash":     params.ImageHash,
		"message":        params.Message,
		"call_to_action": callToAction,
	}
	if params.Link != "" {
		linkData["link"] = params.Link
	}
	if params.Headline != "" {
		linkData["name"] = params.Headline
	}
	if params.Description != "" {
		linkData["description"] = params.Description
	}

	storySpec := map[string]any{
		"page_id":   params.PageID,
		"link_data": linkData,
	}
	if params.InstagramActorID != "" {
		storySpec["instagram_actor_id"] = params.InstagramActorID
	}

	form := url.Values{}
	form.Set("name", params.Name)
	if err := setJSON(form, "object_story_spec", storySpec); err != nil {
		return "", err
	}

	return c.create(ctx, token, "/act_{id}/adcreatives", AdAccountNode(adAccountID)+"/adcreatives", form)
}

func (c *GraphClientImpl) CreateAd(ctx context.Context, token, adAccountID string, params CreateAdParams) (string, error) {
	form := url.Values{}
	form.Set("name", params.Name)
	form.Set("adset_id", params.AdSetID)
	form.Set("status", params.Status)
	if err := setJSON(form, "creative", map[string]string{"creative_id": params.CreativeID}); err != nil {
		return "", err
	}

	return c.create(ctx, token, "/act_{id}/ads", AdAccountNode(adAccountID)+"/ads", form)
}

// UpdateStatus sets the status of a campaign, ad set or ad
func (c *GraphClientImpl) UpdateStatus(ctx context.Context, token, objectID, status string) error {
	form := url.Values{}
	form.Set("status", status)

	var out successResult
	if err := c.post(ctx, token, "/{object}", url.PathEscape(objectID), form, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RemoteAPIError{HTTPStatus: http.StatusOK, Message: "status update was not acknowledged", Endpoint: "/{object}"}
	}
	return nil
}

// ----- HTTP helpers -----

func (c *GraphClientImpl) nodeURL(path string) string {
	return c.BaseURL + "/" + c.Version + "/" + strings.TrimLeft(path, "/")
}

func (c *GraphClientImpl) create(ctx context.Context, token, endpoint, path string, form url.Values) (string, error) {
	var out objectCreated
	if err := c.post(ctx, token, endpoint, path, form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", ErrEmptyGraphResponse
	}
	return out.ID, nil
}

func (c *GraphClientImpl) get(ctx context.Context, token, endpoint, path string, query url.Values, out any) error {
	target := c.nodeURL(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, token, endpoint, out)
}

func (c *GraphClientImpl) post(ctx context.Context, token, endpoint, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, token, endpoint, out)
}

// do sends req and decodes either the success shape into out or the error
// shape into a *RemoteAPIError. endpoint is a low-cardinality template used
// for metrics and error context.
func (c *GraphClientImpl) do(req *http.Request, token, endpoint string, out any) (err error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.Timeout)
	defer cancel()
	req = req.WithContext(ctx)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		if c.AppSecret != "" {
			query := req.URL.Query()
			query.Set("appsecret_proof", appSecretProof(c.AppSecret, token))
			req.URL.RawQuery = query.Encode()
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	status := 0
	defer func() {
		observeGraphRequest(req.Method, endpoint, status, err, time.Since(start))
	}()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph api %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphResponseBytes))
	if err != nil {
		return fmt.Errorf("graph api %s %s: failed to read response: %w", req.Method, endpoint, err)
	}

	if remote := decodeGraphError(resp.StatusCode, body, endpoint); remote != nil {
		return remote
	}

	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return ErrEmptyGraphResponse
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("graph api %s %s: failed to decode response: %w", req.Method, endpoint, err)
	}
	return nil
}

// listAll follows paging.next until exhausted or the page cap is reached.
// Only next links on the configured host are followed so that the token is
// never sent elsewhere.
func listAll[T any](ctx context.Context, c *GraphClientImpl, token, endpoint, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("limit") == "" {
		query.Set("limit", defaultGraphPageLimit)
	}

	items := make([]T, 0)
	next := c.nodeURL(path) + "?" + query.Encode()
	for page := 0; next != "" && page < c.MaxPages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}

		var body graphList[T]
		if err := c.do(req, token, endpoint, &body); err != nil {
			return nil, err
		}
		items = append(items, body.Data...)

		next = ""
		if body.Paging != nil && strings.HasPrefix(body.Paging.Next, c.BaseURL+"/") {
			next = body.Paging.Next
		}
	}
	return items, nil
}

func decodeGraphError(status int, body []byte, endpoint string) *RemoteAPIError {
	var envelope graphErrorBody
	parsed := len(body) > 0 && json.Unmarshal(body, &envelope) == nil && envelope.Error != nil

	if !parsed {
		if status < http.StatusBadRequest {
			return nil
		}
		msg := strings.TrimSpace(string(body))
		msg = truncateUTF8(msg, maxRawErrorBytes)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &RemoteAPIError{HTTPStatus: status, Message: msg, Endpoint: endpoint}
	}

	e := envelope.Error
	return &RemoteAPIError{
		HTTPStatus:  status,
		Code:        e.Code,
		Subcode:     e.ErrorSubcode,
		Type:        e.Type,
		Message:     e.Message,
		UserTitle:   e.ErrorUserTitle,
		UserMessage: e.ErrorUserMsg,
		FBTraceID:   e.FBTraceID,
		Endpoint:    endpoint,
	}
}

// truncateUTF8 cuts s to at most limit bytes without splitting a multi-byte rune
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func fields(list string) url.Values {
	v := url.Values{}
	v.Set("fields", list)
	return v
}

func setJSON(form url.Values, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	form.Set(key, string(b))
	return nil
}

func appSecretProof(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsGraphTimeout reports whether err is a client-side timeout or cancellation
func IsGraphTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
