// auth.go — JWT middleware для административных endpoints.
//
// Принимаются токены двух видов:
//   - HS256, выпущенные /api/v1/auth/token (секрет AM_JWT_SECRET)
//   - RS256 внешнего IdP, если задан AM_JWT_JWKS_URL (ключи из JWKS)
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyClaims — claims аутентифицированного администратора.
const ContextKeyClaims contextKey = "jwt_claims"

// AuthClaims — claims, помещаемые в контекст запроса.
type AuthClaims struct {
	// Subject — sub из JWT.
	Subject string
	// Username — username (или preferred_username для IdP).
	Username string
	// ExpiresAt — момент истечения токена.
	ExpiresAt time.Time
	// Algorithm — алгоритм подписи (HS256 или RS256).
	Algorithm string
}

// ClaimsFromContext возвращает claims из контекста или nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// tokenClaims — raw claims токена.
type tokenClaims struct {
	jwt.RegisteredClaims
	Username          string `json:"username,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	issuer string
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// jwksURL — опциональный URL JWKS внешнего IdP (пусто — только HS256).
// jwksRefreshInterval — интервал обновления ключей JWKS.
func NewJWTAuth(secret, issuer, jwksURL string, jwksRefreshInterval time.Duration, logger *slog.Logger) (*JWTAuth, error) {
	auth := &JWTAuth{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
	if jwksURL == "" {
		return auth, nil
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	auth.jwks = k
	return auth, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc (может быть nil).
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(secret, issuer string, kf keyfunc.Keyfunc, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
		jwks:   kf,
		issuer: issuer,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// keyFunc выбирает ключ проверки по алгоритму токена.
func (j *JWTAuth) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return j.secret, nil
		case *jwt.SigningMethodRSA:
			if j.jwks == nil {
				return nil, fmt.Errorf("RS256-токены не принимаются: JWKS не настроен")
			}
			return j.jwks.KeyfuncCtx(ctx)(token)
		default:
			return nil, fmt.Errorf("неподдерживаемый алгоритм %s", token.Method.Alg())
		}
	}
}

// Middleware возвращает HTTP middleware: извлекает Bearer token, проверяет
// подпись, срок и issuer, помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	methods := []string{"HS256"}
	if j.jwks != nil {
		methods = append(methods, "RS256")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			raw := &tokenClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods(methods),
				jwt.WithExpirationRequired(),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.keyFunc(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := raw.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := &AuthClaims{
				Subject:   subject,
				Username:  raw.Username,
				Algorithm: token.Method.Alg(),
			}
			if claims.Username == "" {
				claims.Username = raw.PreferredUsername
			}
			if raw.ExpiresAt != nil {
				claims.ExpiresAt = raw.ExpiresAt.Time
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
