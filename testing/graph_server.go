package testing

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/adbridge/app/services"
)

// Default fake Graph API fixture
const (
	FakeGraphVersion = "v21.0"
	FakeAppID        = "test-app-id"
	FakeAppSecret    = "test-app-secret"

	FakeShortLivedToken = "short-lived-token"
	FakeLongLivedToken  = "long-lived-token"
	FakeUserID          = "10001"
	FakeUserName        = "Test Advertiser"

	FakeBusinessID   = "20001"
	FakeBusinessName = "Test Business"
	FakePageID       = "30001"
	FakePageName     = "Test Page"
	FakePageToken    = "page-access-token"
	FakeIGUserID     = "40001"
	FakeIGUsername   = "test_insta"

	// FakeAdAccountID is owned by the business and authorized for the page
	FakeAdAccountID = "act_501"
	// FakePrefixAdAccountID is a string prefix of FakeAdAccountID but a different account
	FakePrefixAdAccountID = "act_50"
	// FakeForeignAdAccountID has FakeAdAccountID as a prefix and belongs to nobody
	FakeForeignAdAccountID = "act_5010"
)

// Fake Graph operations, used for failure injection and call counting
const (
	GraphOpExchange          = "exchange"
	GraphOpMe                = "me"
	GraphOpRevoke            = "revoke"
	GraphOpListBusinesses    = "list_businesses"
	GraphOpListPages         = "list_pages"
	GraphOpListAdAccounts    = "list_ad_accounts"
	GraphOpBusinessAccounts  = "business_ad_accounts"
	GraphOpPageAdAccounts    = "page_ad_accounts"
	GraphOpPageInstagram     = "page_instagram"
	GraphOpGetAdAccount      = "get_ad_account"
	GraphOpBusinessUsers     = "business_users"
	GraphOpAdAccountUsers    = "ad_account_users"
	GraphOpCreateCampaign    = "create_campaign"
	GraphOpCreateAdSet       = "create_adset"
	GraphOpUploadImage       = "upload_image"
	GraphOpCreateLeadForm    = "create_leadform"
	GraphOpCreateAdCreative  = "create_adcreative"
	GraphOpCreateAd          = "create_ad"
	GraphOpUpdateStatus      = "update_status"
	graphOpUnknown           = "unknown"
	graphErrorCodeBadRequest = 100
)

// GraphState is the mutable fixture behind the fake server
type GraphState struct {
	AppID     string
	AppSecret string

	// ExchangeGrants maps short-lived tokens to the long-lived tokens they exchange into
	ExchangeGrants map[string]string
	// ExpiresIn is reported by the exchange; zero omits the field
	ExpiresIn int64

	// Users maps a valid access token to its user
	Users map[string]services.GraphUser
	// PageTokens maps a valid page access token to its page id
	PageTokens map[string]string

	Businesses         []services.Business
	Pages              []services.Page
	AdAccounts         map[string]services.AdAccount
	PageAdAccounts     map[string][]string
	BusinessAdAccounts map[string][]string
	BusinessUsers      map[string][]services.BusinessUser
	AdAccountUsers     map[string][]services.AdAccountUser

	// PageSize splits list responses into pages when positive
	PageSize int
}

// GraphObject is a remote object created through the fake server
type GraphObject struct {
	ID        string
	Kind      string
	AdAccount string
	Status    string
	Params    url.Values
}

type injectedFailure struct {
	status  int
	code    int
	message string
}

// GraphServer is an httptest-backed stand-in for the Graph API
type GraphServer struct {
	*httptest.Server
	Version string

	mu       sync.Mutex
	state    GraphState
	failures map[string][]injectedFailure
	delays   map[string]time.Duration
	calls    map[string]int
	requests map[string][]url.Values
	objects  map[string]*GraphObject
	order    []string
	seq      int
}

// NewGraphServer starts a fake Graph API seeded with the default fixture
func NewGraphServer() *GraphServer {
	s := &GraphServer{
		Version:  FakeGraphVersion,
		state:    DefaultGraphState(),
		failures: map[string][]injectedFailure{},
		delays:   map[string]time.Duration{},
		calls:    map[string]int{},
		requests: map[string][]url.Values{},
		objects:  map[string]*GraphObject{},
		seq:      900000,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// DefaultGraphState returns a user with one business, one page with a linked
// Instagram account, and an ad account that is active and authorized for both
func DefaultGraphState() GraphState {
	active := services.AdAccount{
		ID: FakeAdAccountID, AccountID: services.CanonicalAdAccountID(FakeAdAccountID),
		Name: "Primary Account", AccountStatus: 1, Currency: "USD",
		Business: &services.Business{ID: FakeBusinessID, Name: FakeBusinessName},
	}
	prefix := services.AdAccount{
		ID: FakePrefixAdAccountID, AccountID: services.CanonicalAdAccountID(FakePrefixAdAccountID),
		Name: "Prefix Account", AccountStatus: 1, Currency: "USD",
	}
	foreign := services.AdAccount{
		ID: FakeForeignAdAccountID, AccountID: services.CanonicalAdAccountID(FakeForeignAdAccountID),
		Name: "Foreign Account", AccountStatus: 1, Currency: "USD",
	}

	return GraphState{
		AppID:          FakeAppID,
		AppSecret:      FakeAppSecret,
		ExchangeGrants: map[string]string{FakeShortLivedToken: FakeLongLivedToken},
		ExpiresIn:      int64((60 * 24 * time.Hour).Seconds()),
		Users: map[string]services.GraphUser{
			FakeLongLivedToken: {ID: FakeUserID, Name: FakeUserName},
		},
		PageTokens: map[string]string{FakePageToken: FakePageID},
		Businesses: []services.Business{{ID: FakeBusinessID, Name: FakeBusinessName}},
		Pages: []services.Page{{
			ID: FakePageID, Name: FakePageName, Category: "Brand", AccessToken: FakePageToken,
			Tasks:                    []string{"ADVERTISE", "MANAGE"},
			InstagramBusinessAccount: &services.InstagramAccount{ID: FakeIGUserID, Username: FakeIGUsername},
		}},
		AdAccounts: map[string]services.AdAccount{
			FakeAdAccountID:        active,
			FakePrefixAdAccountID:  prefix,
			FakeForeignAdAccountID: foreign,
		},
		PageAdAccounts:     map[string][]string{FakePageID: {FakeAdAccountID}},
		BusinessAdAccounts: map[string][]string{FakeBusinessID: {FakeAdAccountID}},
		BusinessUsers: map[string][]services.BusinessUser{
			FakeBusinessID: {{ID: FakeUserID, Name: FakeUserName, Role: "ADMIN"}},
		},
		AdAccountUsers: map[string][]services.AdAccountUser{
			FakeAdAccountID: {{ID: FakeUserID, Name: FakeUserName, Role: "1001", Tasks: []string{"MANAGE", "ADVERTISE", "ANALYZE"}}},
		},
	}
}

// AdPlatformBaseURL returns the unversioned base URL clients should use
func (s *GraphServer) AdPlatformBaseURL() string {
	return s.URL
}

// Update mutates the fixture under the server lock
func (s *GraphServer) Update(fn func(state *GraphState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// FailNext makes the next times calls of op answer with a Graph error
func (s *GraphServer) FailNext(op string, times, httpStatus, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < times; i++ {
		s.failures[op] = append(s.failures[op], injectedFailure{status: httpStatus, code: code, message: message})
	}
}

// Delay holds every call of op for d before answering
func (s *GraphServer) Delay(op string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[op] = d
}

// Calls returns how many requests reached op, failed ones included
func (s *GraphServer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastRequest returns the parameters of the most recent request to op
func (s *GraphServer) LastRequest(op string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.requests[op]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Object returns a created remote object by id
func (s *GraphServer) Object(id string) (GraphObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return GraphObject{}, false
	}
	return *obj, true
}

// Objects returns created objects of a kind in creation order
func (s *GraphServer) Objects(kind string) []GraphObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GraphObject
	for _, id := range s.order {
		if obj := s.objects[id]; obj.Kind == kind {
			out = append(out, *obj)
		}
	}
	return out
}

// CreationOrder returns the kinds of created objects in creation order
func (s *GraphServer) CreationOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.order))
	for _, id := range s.order {
		kinds = append(kinds, s.objects[id].Kind)
	}
	return kinds
}

func (s *GraphServer) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + s.Version + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeGraphError(w, http.StatusNotFound, 803, "Unknown path "+r.URL.Path)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Malformed request body")
		return
	}
	segments := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
	op := routeGraphOp(r.Method, segments)

	s.mu.Lock()
	s.calls[op]++
	s.requests[op] = append(s.requests[op], cloneValues(r.Form))
	delay := s.delays[op]
	var failure *injectedFailure
	if queued := s.failures[op]; len(queued) > 0 {
		failure = &queued[0]
		s.failures[op] = queued[1:]
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failure != nil {
		writeGraphError(w, failure.status, failure.code, failure.message)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if op == GraphOpExchange {
		s.handleExchange(w, r)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	user, userOK := s.state.Users[token]
	tokenPage, pageOK := s.state.PageTokens[token]
	if !userOK && !(op == GraphOpCreateLeadForm && pageOK) {
		writeGraphError(w, http.StatusBadRequest, services.GraphErrorCodeOAuth, "Invalid OAuth access token - Cannot parse access token")
		return
	}

	switch op {
	case GraphOpMe:
		writeGraphJSON(w, user)
	case GraphOpRevoke:
		writeGraphJSON(w, map[string]bool{"success": true})
	case GraphOpListBusinesses:
		writeGraphList(s, w, r, s.state.Businesses)
	case GraphOpListPages:
		writeGraphList(s, w, r, s.state.Pages)
	case GraphOpListAdAccounts:
		accounts := make([]services.AdAccount, 0, len(s.state.AdAccounts))
		for _, id := range sortedKeys(s.state.AdAccounts) {
			accounts = append(accounts, s.state.AdAccounts[id])
		}
		writeGraphList(s, w, r, accounts)
	case GraphOpBusinessAccounts:
		writeGraphList(s, w, r, s.accounts(s.state.BusinessAdAccounts[segments[0]]))
	case GraphOpPageAdAccounts:
		writeGraphList(s, w, r, s.accounts(s.state.PageAdAccounts[segments[0]]))
	case GraphOpBusinessUsers:
		writeGraphList(s, w, r, s.state.BusinessUsers[segments[0]])
	case GraphOpAdAccountUsers:
		writeGraphList(s, w, r, s.state.AdAccountUsers[segments[0]])
	case GraphOpGetAdAccount:
		account, ok := s.state.AdAccounts[segments[0]]
		if !ok {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Unsupported get request. Object with ID '"+segments[0]+"' does not exist")
			return
		}
		writeGraphJSON(w, account)
	case GraphOpPageInstagram:
		for _, page := range s.state.Pages {
			if page.ID == segments[0] {
				writeGraphJSON(w, services.Page{ID: page.ID, InstagramBusinessAccount: page.InstagramBusinessAccount})
				return
			}
		}
		writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Unsupported get request. Object with ID '"+segments[0]+"' does not exist")
	case GraphOpCreateCampaign:
		s.handleCreate(w, r, "campaign", segments[0], []string{"name", "objective", "status", "special_ad_categories"}, nil)
	case GraphOpCreateAdSet:
		s.handleCreate(w, r, "adset", segments[0], []string{"name", "campaign_id", "daily_budget", "status", "targeting", "promoted_object"},
			map[string]string{"campaign_id": "campaign"})
	case GraphOpUploadImage:
		s.handleUploadImage(w, r, segments[0])
	case GraphOpCreateLeadForm:
		if pageOK && tokenPage != segments[0] {
			writeGraphError(w, http.StatusBadRequest, services.GraphErrorCodePermission, "Page access token does not match the page")
			return
		}
		if !pageOK {
			writeGraphError(w, http.StatusBadRequest, services.GraphErrorCodePermission, "A page access token is required to request this resource")
			return
		}
		s.handleCreate(w, r, "leadform", "", []string{"name", "questions", "privacy_policy"}, nil)
	case GraphOpCreateAdCreative:
		s.handleCreate(w, r, "adcreative", segments[0], []string{"name", "object_story_spec"}, nil)
	case GraphOpCreateAd:
		var creative struct {
			CreativeID string `json:"creative_id"`
		}
		if err := json.Unmarshal([]byte(r.Form.Get("creative")), &creative); err != nil || s.objects[creative.CreativeID] == nil {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Invalid parameter: creative")
			return
		}
		s.handleCreate(w, r, "ad", segments[0], []string{"name", "adset_id", "status"}, map[string]string{"adset_id": "adset"})
	case GraphOpUpdateStatus:
		obj, ok := s.objects[segments[0]]
		if !ok {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Unsupported post request. Object with ID '"+segments[0]+"' does not exist")
			return
		}
		obj.Status = r.Form.Get("status")
		writeGraphJSON(w, map[string]bool{"success": true})
	default:
		writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Unsupported request "+r.Method+" "+r.URL.Path)
	}
}

func (s *GraphServer) handleExchange(w http.ResponseWriter, r *http.Request) {
	q := r.Form
	if q.Get("client_id") != s.state.AppID || q.Get("client_secret") != s.state.AppSecret {
		writeGraphError(w, http.StatusBadRequest, 101, "Error validating application. Invalid application ID.")
		return
	}
	long, ok := s.state.ExchangeGrants[q.Get("fb_exchange_token")]
	if !ok {
		writeGraphError(w, http.StatusBadRequest, services.GraphErrorCodeOAuth, "Error validating access token: Session has expired")
		return
	}

	body := map[string]any{"access_token": long, "token_type": "bearer"}
	if s.state.ExpiresIn > 0 {
		body["expires_in"] = s.state.ExpiresIn
	}
	writeGraphJSON(w, body)
}

// handleCreate stores a new object after checking required params and that
// referenced parents exist with the expected kind
func (s *GraphServer) handleCreate(w http.ResponseWriter, r *http.Request, kind, adAccount string, required []string, parents map[string]string) {
	if adAccount != "" {
		if _, ok := s.state.AdAccounts[adAccount]; !ok {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Unsupported post request. Object with ID '"+adAccount+"' does not exist")
			return
		}
	}
	for _, key := range required {
		if strings.TrimSpace(r.Form.Get(key)) == "" {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "(#100) The parameter "+key+" is required")
			return
		}
	}
	for key, parentKind := range parents {
		parent := s.objects[r.Form.Get(key)]
		if parent == nil || parent.Kind != parentKind {
			writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "Invalid parameter: "+key)
			return
		}
	}

	obj := s.newObject(kind, adAccount, r.Form)
	writeGraphJSON(w, map[string]string{"id": obj.ID})
}

func (s *GraphServer) handleUploadImage(w http.ResponseWriter, r *http.Request, adAccount string) {
	imageURL := r.Form.Get("url")
	if imageURL == "" {
		writeGraphError(w, http.StatusBadRequest, graphErrorCodeBadRequest, "(#100) The parameter url is required")
		return
	}
	obj := s.newObject("image", adAccount, r.Form)
	hash := "hash" + obj.ID
	writeGraphJSON(w, map[string]any{
		"images": map[string]services.AdImage{"bytes": {Hash: hash, URL: imageURL}},
	})
}

func (s *GraphServer) newObject(kind, adAccount string, params url.Values) *GraphObject {
	s.seq++
	obj := &GraphObject{
		ID:        strconv.Itoa(s.seq),
		Kind:      kind,
		AdAccount: adAccount,
		Status:    params.Get("status"),
		Params:    cloneValues(params),
	}
	s.objects[obj.ID] = obj
	s.order = append(s.order, obj.ID)
	return obj
}

func (s *GraphServer) accounts(ids []string) []services.AdAccount {
	out := make([]services.AdAccount, 0, len(ids))
	for _, id := range ids {
		if account, ok := s.state.AdAccounts[id]; ok {
			out = append(out, services.AdAccount{ID: account.ID, AccountID: account.AccountID, Name: account.Name, AccountStatus: account.AccountStatus, Currency: account.Currency})
		}
	}
	return out
}

func writeGraphList[T any](s *GraphServer, w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	offset, _ := strconv.Atoi(r.Form.Get("after"))
	if offset < 0 || offset > len(items) {
		offset = len(items)
	}

	body := map[string]any{}
	page := items[offset:]
	if s.state.PageSize > 0 && len(page) > s.state.PageSize {
		page = page[:s.state.PageSize]
		q := url.Values{}
		for k, v := range r.URL.Query() {
			q[k] = v
		}
		q.Set("after", strconv.Itoa(offset+s.state.PageSize))
		body["paging"] = map[string]string{"next": s.URL + r.URL.Path + "?" + q.Encode()}
	}
	body["data"] = page
	writeGraphJSON(w, body)
}

func routeGraphOp(method string, segments []string) string {
	if len(segments) == 0 || segments[0] == "" {
		return graphOpUnknown
	}
	head := segments[0]
	isAct := strings.HasPrefix(head, "act_")

	switch len(segments) {
	case 1:
		switch {
		case method == http.MethodGet && head == "me":
			return GraphOpMe
		case method == http.MethodGet && isAct:
			return GraphOpGetAdAccount
		case method == http.MethodGet:
			return GraphOpPageInstagram
		case method == http.MethodPost:
			return GraphOpUpdateStatus
		}
	case 2:
		edge := segments[1]
		switch {
		case head == "oauth" && edge == "access_token" && method == http.MethodGet:
			return GraphOpExchange
		case head == "me" && edge == "permissions" && method == http.MethodDelete:
			return GraphOpRevoke
		case head == "me" && edge == "businesses":
			return GraphOpListBusinesses
		case head == "me" && edge == "accounts":
			return GraphOpListPages
		case head == "me" && edge == "adaccounts":
			return GraphOpListAdAccounts
		case edge == "owned_ad_accounts":
			return GraphOpBusinessAccounts
		case edge == "business_users":
			return GraphOpBusinessUsers
		case edge == "adaccounts" && !isAct:
			return GraphOpPageAdAccounts
		case edge == "leadgen_forms" && method == http.MethodPost:
			return GraphOpCreateLeadForm
		case isAct && edge == "users":
			return GraphOpAdAccountUsers
		case isAct && method == http.MethodPost:
			switch edge {
			case "campaigns":
				return GraphOpCreateCampaign
			case "adsets":
				return GraphOpCreateAdSet
			case "adimages":
				return GraphOpUploadImage
			case "adcreatives":
				return GraphOpCreateAdCreative
			case "ads":
				return GraphOpCreateAd
			}
		}
	}
	return graphOpUnknown
}

func writeGraphJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func writeGraphError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":    message,
			"type":       "OAuthException",
			"code":       code,
			"fbtrace_id": fmt.Sprintf("trace-%d", code),
		},
	})
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
