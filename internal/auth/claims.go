package auth

import "github.com/golang-jwt/jwt/v5"

const tokenTypeAccess = "access"

// Claims is the dashboard access-token shape. Tokens are minted by the dashboard's
// session service; this process only verifies them.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
}
