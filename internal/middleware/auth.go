// Package middleware содержит HTTP middleware сервиса.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/taxflow/internal/model"
)

type actorKey struct{}

// AuthCookieName задаёт имя cookie с токеном доступа.
const AuthCookieName = "auth_token"

// DefaultTokenTTL задаёт срок жизни токена по умолчанию.
const DefaultTokenTTL = 8 * time.Hour

type claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// AuthMiddleware выпускает и проверяет JWT (HS256) с ролью сотрудника.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным,
// тогда токены не переживают перезапуск процесса.
func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("middleware: cannot generate jwt secret: " + err.Error())
		}
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthMiddleware{secretKey: key, ttl: ttl, now: time.Now}
}

// IssueToken подписывает токен для пользователя.
func (a *AuthMiddleware) IssueToken(u *model.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: u.Role,
	})
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// SetAuthCookie кладёт токен в cookie авторизации.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ParseToken проверяет подпись и срок действия токена и возвращает исполнителя.
func (a *AuthMiddleware) ParseToken(token string) (model.Actor, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	})
	if err != nil {
		return model.Actor{}, err
	}
	if !parsed.Valid {
		return model.Actor{}, errors.New("invalid token")
	}
	if c.Subject == "" {
		return model.Actor{}, errors.New("subject claim required")
	}
	if !c.Role.Valid() {
		return model.Actor{}, errors.New("unknown role claim")
	}
	return model.Actor{ID: c.Subject, Role: c.Role}, nil
}

// Middleware принимает токен из заголовка Authorization: Bearer или из cookie
// и кладёт исполнителя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := tokenFromRequest(r)
		if !ok {
			writeUnauthorized(w, "authentication required")
			return
		}

		actor, err := a.ParseToken(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		parts := strings.Fields(authz)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(model.KindUnauthorized),
		"message": msg,
	})
}

// ActorFromContext извлекает исполнителя из контекста запроса.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

// WithActor кладёт исполнителя в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}
