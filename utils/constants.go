package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Ad platform constants
const (
	// DefaultLongLivedTokenTTL applies when the exchange response omits expires_in
	DefaultLongLivedTokenTTL = 60 * 24 * time.Hour

	// AdAccountIDPrefix is the prefix the Graph API puts on ad account ids
	AdAccountIDPrefix = "act_"
)

type contextKey string

// Request-scoped context keys
const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)
