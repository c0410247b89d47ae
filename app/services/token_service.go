// Package services provides the Graph API client and technical concerns like tokens and secret sealing
package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/adbridge/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	claimCustomerID = "customer_id"
	claimAdminID    = "admin_id"
)

// TokenService issues and validates the API's own bearer tokens.
// Customer and admin tokens carry different subject claims, so one is never accepted as the other.
type TokenService interface {
	GenerateTokens(customerID uint) (accessToken, refreshToken string, err error)
	ValidateToken(token string) (*TokenClaims, error)
	RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error)
	RevokeToken(token string) error
	IsTokenRevoked(tokenID string) bool
	GenerateAdminTokens(adminID uint) (accessToken, refreshToken string, err error)
	ValidateAdminToken(token string) (*AdminTokenClaims, error)
}

// TokenClaims represents the claims in a customer JWT
type TokenClaims struct {
	CustomerID uint      `json:"customer_id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	TokenType  string    `json:"token_type"`
	TokenID    string    `json:"jti"`
}

// AdminTokenClaims represents claims for admin JWTs
type AdminTokenClaims struct {
	AdminID   uint      `json:"admin_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

type subjectClaims struct {
	subjectID uint
	tokenType string
	tokenID   string
	issuedAt  time.Time
	expiresAt time.Time
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	signingMethod   jwt.SigningMethod
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	secretKey       []byte
	useRSAKeys      bool
	issuer          string
	audience        string

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> token expiry
}

// NewTokenService creates a new token service
func NewTokenService(accessTokenTTL, refreshTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	s := &TokenServiceImpl{
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		useRSAKeys:      useRSAKeys,
		issuer:          issuer,
		audience:        audience,
		revoked:         make(map[string]time.Time),
	}

	if useRSAKeys {
		privateKey, publicKey, err := parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		s.privateKey = privateKey
		s.publicKey = publicKey
		s.signingMethod = jwt.SigningMethodRS256
		return s, nil
	}

	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required when not using RSA keys")
	}
	s.secretKey = []byte(secretKey)
	s.signingMethod = jwt.SigningMethodHS256
	return s, nil
}

// parseRSAKeys parses RSA private and public keys from PEM format
func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("both private and public keys are required")
	}

	privateKeyBlock, _ := pem.Decode([]byte(privateKeyPEM))
	if privateKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode private key")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(privateKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyBlock, _ := pem.Decode([]byte(publicKeyPEM))
	if publicKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode public key")
	}
	publicKey, err := x509.ParsePKIXPublicKey(publicKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("public key is not RSA")
	}

	return privateKey, rsaPublicKey, nil
}

// GenerateTokens generates access and refresh tokens for a customer
func (s *TokenServiceImpl) GenerateTokens(customerID uint) (accessToken, refreshToken string, err error) {
	return s.issuePair(claimCustomerID, customerID)
}

// GenerateAdminTokens generates access and refresh tokens for an admin
func (s *TokenServiceImpl) GenerateAdminTokens(adminID uint) (accessToken, refreshToken string, err error) {
	return s.issuePair(claimAdminID, adminID)
}

// ValidateToken validates a customer JWT and returns its claims
func (s *TokenServiceImpl) ValidateToken(token string) (*TokenClaims, error) {
	c, err := s.parse(token, claimCustomerID)
	if err != nil {
		return nil, err
	}
	if s.IsTokenRevoked(c.tokenID) {
		return nil, ErrTokenRevoked
	}
	return customerClaims(c), nil
}

// ValidateAdminToken validates an admin JWT and returns admin-specific claims
func (s *TokenServiceImpl) ValidateAdminToken(token string) (*AdminTokenClaims, error) {
	c, err := s.parse(token, claimAdminID)
	if err != nil {
		return nil, err
	}
	if s.IsTokenRevoked(c.tokenID) {
		return nil, ErrTokenRevoked
	}
	return &AdminTokenClaims{
		AdminID:   c.subjectID,
		IssuedAt:  c.issuedAt,
		ExpiresAt: c.expiresAt,
		TokenType: c.tokenType,
		TokenID:   c.tokenID,
	}, nil
}

// RefreshToken rotates a customer or admin refresh token into a new pair for the same subject.
// The refresh token used is revoked, so each one works once.
func (s *TokenServiceImpl) RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error) {
	subjectClaim, c, err := s.parseAny(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}
	if s.IsTokenRevoked(c.tokenID) {
		return "", "", fmt.Errorf("invalid refresh token: %w", ErrTokenRevoked)
	}
	if c.tokenType != TokenTypeRefresh {
		return "", "", fmt.Errorf("token is not a refresh token: %w", ErrTokenInvalid)
	}

	s.revoke(c.tokenID, c.expiresAt)
	if subjectClaim == claimAdminID {
		return s.GenerateAdminTokens(c.subjectID)
	}
	return s.GenerateTokens(c.subjectID)
}

// RevokeToken adds the token's id to the revocation list until the token would expire anyway.
// Both customer and admin tokens are accepted.
func (s *TokenServiceImpl) RevokeToken(token string) error {
	_, c, err := s.parseAny(token)
	if err != nil {
		return err
	}

	s.revoke(c.tokenID, c.expiresAt)
	return nil
}

// parseAny accepts either subject kind and reports which claim carried the subject
func (s *TokenServiceImpl) parseAny(token string) (string, *subjectClaims, error) {
	c, err := s.parse(token, claimCustomerID)
	if err == nil {
		return claimCustomerID, c, nil
	}
	if !errors.Is(err, ErrTokenInvalid) {
		return "", nil, err
	}
	c, err = s.parse(token, claimAdminID)
	if err != nil {
		return "", nil, err
	}
	return claimAdminID, c, nil
}

// IsTokenRevoked checks if a token id has been revoked
func (s *TokenServiceImpl) IsTokenRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[tokenID]
	return ok
}

func (s *TokenServiceImpl) revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := utils.UTCNow()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
}

func (s *TokenServiceImpl) issuePair(subjectClaim string, subjectID uint) (accessToken, refreshToken string, err error) {
	now := utils.UTCNow()

	accessToken, err = s.issue(subjectClaim, subjectID, TokenTypeAccess, now, s.accessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err = s.issue(subjectClaim, subjectID, TokenTypeRefresh, now, s.refreshTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *TokenServiceImpl) issue(subjectClaim string, subjectID uint, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	claims := jwt.MapClaims{
		subjectClaim: subjectID,
		"token_type": tokenType,
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	}
	return s.generateToken(claims)
}

// parse verifies signature, issuer, audience and expiry, then extracts the subject claim
func (s *TokenServiceImpl) parse(token, subjectClaim string) (*subjectClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsedToken, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		if s.useRSAKeys {
			return s.publicKey, nil
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	subjectID, ok := claims[subjectClaim].(float64)
	if !ok || subjectID <= 0 {
		return nil, ErrTokenInvalid
	}
	tokenType, ok := claims["token_type"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	tokenID, ok := claims["jti"].(string)
	if !ok || tokenID == "" {
		return nil, ErrTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return &subjectClaims{
		subjectID: uint(subjectID),
		tokenType: tokenType,
		tokenID:   tokenID,
		issuedAt:  time.Unix(int64(issuedAt), 0),
		expiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

func customerClaims(c *subjectClaims) *TokenClaims {
	return &TokenClaims{
		CustomerID: c.subjectID,
		IssuedAt:   c.issuedAt,
		ExpiresAt:  c.expiresAt,
		TokenType:  c.tokenType,
		TokenID:    c.tokenID,
	}
}

// generateToken creates a signed JWT token
func (s *TokenServiceImpl) generateToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(s.signingMethod, claims)
	if s.useRSAKeys {
		return token.SignedString(s.privateKey)
	}
	return token.SignedString(s.secretKey)
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
