package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-progress/pkg/access"
	"lms-progress/pkg/models"
	"lms-progress/pkg/store/storetest"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, a *Auth, req *http.Request) (*httptest.ResponseRecorder, *access.Principal) {
	t.Helper()
	var got *access.Principal
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		got = &p
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestAuthMiddleware(t *testing.T) {
	seed := storetest.New(t)
	teacher := seed.Teacher("Tina")
	a := NewAuth(secret, seed.Store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": teacher.ID, "exp": time.Now().Add(time.Hour).Unix()})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: valid})

		rec, p := serve(t, a, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, p)
		assert.Equal(t, access.Principal{ID: teacher.ID, Role: models.RoleTeacher}, *p)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+valid)

		rec, p := serve(t, a, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotNil(t, p)
	})

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": teacher.ID}),
		"expired":      sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": teacher.ID, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":   sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"name": "x"}),
		"unknown user": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 999}),
		"none alg":     sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": teacher.ID}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			rec, p := serve(t, a, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, p)
		})
	}
}
