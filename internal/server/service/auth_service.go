package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
	"github.com/xela07ax/spaceai-agent-pulse/internal/infra/auth"
)

// AuthService выдает RS256-токены операторам и агентам.
// Проверка токенов приезжает через embedding BaseValidator, поэтому сервис
// напрямую реализует auth.TokenValidator для middleware.
//
// Источник учеток — config.yaml, не БД: обе внешние базы монитора
// опциональны, а вход в API обязан работать даже при полностью
// деградированной персистентности.
type AuthService struct {
	*auth.BaseValidator

	operators  map[string]domain.Operator
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
	logger     *zap.Logger
}

func NewAuthService(operators []domain.Operator, validator *auth.BaseValidator, privateKey *rsa.PrivateKey, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	// Индексируем по username один раз на старте
	index := make(map[string]domain.Operator, len(operators))
	for _, op := range operators {
		index[op.Username] = op
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		BaseValidator: validator,
		operators:     index,
		privateKey:    privateKey,
		tokenTTL:      tokenTTL,
		logger:        logger.Named("auth-service"),
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — конфиг)
	op, ok := s.operators[username]
	if !ok {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login rejected", zap.String("username", username))
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims (Scopes берем из учетки)
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: op.Username,
		Scopes: op.Scopes, // Напр. map[string]bool{"operator": true}
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("token issued", zap.String("username", username))
	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
