package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "operator": true или "agent": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — учетная запись оператора/агента из конфига.
// Монитор не имеет обязательной БД, поэтому источник правды — config.yaml.
type Operator struct {
	Username     string          `json:"username" mapstructure:"username"`
	PasswordHash string          `json:"-" mapstructure:"password_hash"` // bcrypt, никогда не отдаем наружу
	Scopes       map[string]bool `json:"scopes" mapstructure:"scopes"`
}
