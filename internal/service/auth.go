// auth.go — вход администратора и выпуск HS256-токенов.
package service

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims — claims токена администратора.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// IssuedToken — выпущенный токен.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthConfig — параметры выпуска токенов.
type AuthConfig struct {
	Username    string
	Password    string
	Secret      string
	Issuer      string
	TTL         time.Duration
	RememberTTL time.Duration
}

// AuthService — проверка учётных данных администратора и выпуск токенов.
type AuthService struct {
	cfg    AuthConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(cfg AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// Login проверяет учётные данные и выпускает токен.
// remember выбирает длинное время жизни токена.
func (s *AuthService) Login(username, password string, remember bool) (*IssuedToken, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	if !userOK || !passOK {
		s.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}

	ttl := s.cfg.TTL
	if remember {
		ttl = s.cfg.RememberTTL
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("подпись токена: %w", err)
	}

	s.logger.Info("Администратор вошёл",
		slog.String("username", username),
		slog.Bool("remember_me", remember),
	)
	return &IssuedToken{AccessToken: signed, ExpiresAt: expiresAt}, nil
}
