package dto

// RefreshTokenRequest carries the refresh token to rotate
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest optionally names the refresh token to revoke together with the bearer access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenPairResponse is a freshly issued access/refresh pair
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
