package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func principalEcho(t *testing.T, got *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if ok {
			*got = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid bearer token injects the principal", func(t *testing.T) {
		token, err := GenerateToken("buyer-1", RoleBuyer)
		require.NoError(t, err)

		var got Principal
		handler := AuthMiddleware(principalEcho(t, &got))

		req := httptest.NewRequest("GET", "/negotiations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, Principal{ID: "buyer-1", Role: RoleBuyer}, got)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		handler := AuthMiddleware(principalEcho(t, &Principal{}))

		req := httptest.NewRequest("GET", "/negotiations", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		handler := AuthMiddleware(principalEcho(t, &Principal{}))

		req := httptest.NewRequest("GET", "/negotiations", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		handler := AuthMiddleware(principalEcho(t, &Principal{}))

		req := httptest.NewRequest("GET", "/negotiations", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health is public", func(t *testing.T) {
		handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("trans-7", RoleTransporter)
	require.NoError(t, err)

	claims, err := ValidToken(token)
	require.NoError(t, err)
	require.Equal(t, "trans-7", claims.ProfileID)
	require.Equal(t, RoleTransporter, claims.Role)
}

func TestValidToken_TamperedSignature(t *testing.T) {
	token, err := GenerateToken("buyer-1", RoleBuyer)
	require.NoError(t, err)

	_, err = ValidToken(token + "x")
	require.Error(t, err)
}
