package middleware

import (
	"context"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"lms-progress/pkg/access"
	"lms-progress/pkg/apperr"
	"lms-progress/pkg/store"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Auth authenticates requests carrying an HMAC signed JWT whose "sub" claim is
// a user id. The token is read from the "token" cookie or a bearer header.
type Auth struct {
	secret []byte
	store  store.Store
	logger *slog.Logger
}

func NewAuth(secret string, s store.Store, logger *slog.Logger) *Auth {
	return &Auth{secret: []byte(secret), store: s, logger: logger}
}

func tokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (a *Auth) subject(raw string) (uint, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token")
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, errors.New("token has no subject")
	}
	return uint(sub), nil
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFrom(r)
		if raw == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id, err := a.subject(raw)
		if err != nil {
			a.logger.Debug("rejected token", "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := a.store.User(r.Context(), id)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				a.logger.Error("load user", "user_id", id, "error", err)
			}
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}
		ctx := WithPrincipal(r.Context(), access.Principal{ID: user.ID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(access.Principal)
	return p, ok
}
