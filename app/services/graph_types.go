package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/adbridge/utils"
)

// Graph API error codes worth naming
const (
	GraphErrorCodeOAuth          = 190
	GraphErrorCodePermission     = 200
	GraphErrorCodeRateLimit      = 4
	GraphErrorCodeUserRateLimit  = 17
	GraphErrorCodeAdAccountLimit = 613
)

var (
	ErrAppCredentialsMissing = errors.New("ad platform app credentials are not configured")
	ErrEmptyGraphResponse    = errors.New("empty response from graph api")
)

// RemoteAPIError is a structured Graph API failure
type RemoteAPIError struct {
	HTTPStatus  int    `json:"http_status"`
	Code        int    `json:"code"`
	Subcode     int    `json:"subcode,omitempty"`
	Type        string `json:"type,omitempty"`
	Message     string `json:"message"`
	UserTitle   string `json:"user_title,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
	FBTraceID   string `json:"fbtrace_id,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("graph api error on %s (http %d, code %d/%d): %s", e.Endpoint, e.HTTPStatus, e.Code, e.Subcode, e.Message)
}

// IsTokenInvalid reports whether the platform rejected the access token itself
func (e *RemoteAPIError) IsTokenInvalid() bool {
	return e.Code == GraphErrorCodeOAuth
}

// IsRateLimited reports whether the call hit a platform throttle
func (e *RemoteAPIError) IsRateLimited() bool {
	switch e.Code {
	case GraphErrorCodeRateLimit, GraphErrorCodeUserRateLimit, GraphErrorCodeAdAccountLimit:
		return true
	}
	return false
}

// AsRemoteAPIError extracts a RemoteAPIError from an error chain
func AsRemoteAPIError(err error) (*RemoteAPIError, bool) {
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// graphErrorBody is the error shape of every Graph API endpoint
type graphErrorBody struct {
	Error *struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FBTraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type graphPaging struct {
	Next string `json:"next"`
}

type graphList[T any] struct {
	Data   []T          `json:"data"`
	Paging *graphPaging `json:"paging,omitempty"`
}

// FlexibleString decodes a JSON string or number into a string
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleString(n.String())
	return nil
}

// TokenExchangeResult is the response of the long-lived token exchange
type TokenExchangeResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExpiresAt returns the absolute expiry, falling back to defaultTTL when the
// platform did not report a validity window
func (r *TokenExchangeResult) ExpiresAt(now time.Time, defaultTTL time.Duration) time.Time {
	if r.ExpiresIn > 0 {
		return now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return now.Add(defaultTTL)
}

type GraphUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Business struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InstagramAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Page struct {
	ID                       string            `json:"id"`
	Name                     string            `json:"name"`
	Category                 string            `json:"category,omitempty"`
	AccessToken              string            `json:"access_token,omitempty"`
	Tasks                    []string          `json:"tasks,omitempty"`
	InstagramBusinessAccount *InstagramAccount `json:"instagram_business_account,omitempty"`
}

type AdAccount struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id,omitempty"`
	Name          string    `json:"name"`
	AccountStatus int       `json:"account_status"`
	DisableReason int       `json:"disable_reason,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Capabilities  []string  `json:"capabilities,omitempty"`
	FundingSource string    `json:"funding_source,omitempty"`
	Business      *Business `json:"business,omitempty"`
}

type BusinessUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

type AdAccountUser struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Role  FlexibleString `json:"role,omitempty"`
	Tasks []string       `json:"tasks,omitempty"`
}

type objectCreated struct {
	ID string `json:"id"`
}

type successResult struct {
	Success bool `json:"success"`
}

// AdImage is an uploaded image reference
type AdImage struct {
	Hash string `json:"hash"`
	URL  string `json:"url,omitempty"`
}

type adImagesResult struct {
	Images map[string]AdImage `json:"images"`
}

type CreateCampaignParams struct {
	Name                string
	Objective           string
	Status              string
	SpecialAdCategories []string
}

type PromotedObject struct {
	PageID string `json:"page_id"`
}

type GeoLocations struct {
	Countries []string `json:"countries"`
}

type Targeting struct {
	GeoLocations       GeoLocations `json:"geo_locations"`
	AgeMin             int          `json:"age_min,omitempty"`
	AgeMax             int          `json:"age_max,omitempty"`
	Genders            []int        `json:"genders,omitempty"`
	PublisherPlatforms []string     `json:"publisher_platforms,omitempty"`
}

type CreateAdSetParams struct {
	Name             string
	CampaignID       string
	DailyBudget      int64
	BillingEvent     string
	OptimizationGoal string
	BidStrategy      string
	DestinationType  string
	Status           string
	PromotedObject   PromotedObject
	Targeting        Targeting
	StartTime        *time.Time
	EndTime          *time.Time
}

type CreateLeadFormParams struct {
	Name              string
	Locale            string
	Questions         []string
	PrivacyPolicyURL  string
	PrivacyLinkText   string
	FollowUpActionURL string
}

type CreateAdCreativeParams struct {
	Name             string
	PageID           string
	InstagramActorID string
	ImageHash        string
	Message          string
	Headline         string
	Description      string
	Link             string
	CallToActionType string
	LeadFormID       string
}

type CreateAdParams struct {
	Name       string
	AdSetID    string
	CreativeID string
	Status     string
}

// CanonicalAdAccountID strips the act_ prefix so that both spellings of an
// account compare equal. Comparison stays exact on the remaining digits.
func CanonicalAdAccountID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), utils.AdAccountIDPrefix)
}

// AdAccountNode returns the Graph node name of an ad account
func AdAccountNode(id string) string {
	return utils.AdAccountIDPrefix + CanonicalAdAccountID(id)
}

// AdAccountStatusName maps the numeric account_status to its platform name
func AdAccountStatusName(status int) string {
	switch status {
	case 1:
		return "ACTIVE"
	case 2:
		return "DISABLED"
	case 3:
		return "UNSETTLED"
	case 7:
		return "PENDING_RISK_REVIEW"
	case 8:
		return "PENDING_SETTLEMENT"
	case 9:
		return "IN_GRACE_PERIOD"
	case 100:
		return "PENDING_CLOSURE"
	case 101:
		return "CLOSED"
	case 201:
		return "ANY_ACTIVE"
	case 202:
		return "ANY_CLOSED"
	default:
		return "UNKNOWN_" + strconv.Itoa(status)
	}
}
