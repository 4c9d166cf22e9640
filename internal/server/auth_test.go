package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyToken(t *testing.T) {
	a := AuthConfig{Secret: []byte("s3cret"), TokenTTL: time.Hour}

	tok, err := a.issueToken("user-42", RoleAdmin)
	require.NoError(t, err)

	claims, err := a.verifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestVerifyToken_Expired(t *testing.T) {
	a := AuthConfig{Secret: []byte("s3cret")}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleUser,
	})
	tok, err := expired.SignedString(a.Secret)
	require.NoError(t, err)

	_, err = a.verifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	signer := AuthConfig{Secret: []byte("one"), TokenTTL: time.Hour}
	verifier := AuthConfig{Secret: []byte("two")}

	tok, err := signer.issueToken("user-42", RoleUser)
	require.NoError(t, err)

	_, err = verifier.verifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyToken_Tampered(t *testing.T) {
	a := AuthConfig{Secret: []byte("s3cret"), TokenTTL: time.Hour}

	tok, err := a.issueToken("user-42", RoleUser)
	require.NoError(t, err)

	tampered := tok[:len(tok)-2] + "xx"
	_, err = a.verifyToken(tampered)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	a := AuthConfig{Secret: []byte("s3cret"), TokenTTL: time.Hour}

	var got identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = identityFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	})
	guard := a.requireAuth(next)

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		guard.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rr := httptest.NewRecorder()
		guard.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		guard.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		tok, err := a.issueToken("user-7", RoleAdmin)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		guard.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, identity{UserID: "user-7", Role: RoleAdmin}, got)
	})
}

func TestLoginHandler(t *testing.T) {
	cfg := newTestConfig(t)
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg.Users.(*fakeUsers).users["mira"] = &User{
		ID:           "user-1",
		Username:     "mira",
		PasswordHash: hash,
		Role:         RoleAdmin,
		CreatedAt:    created,
	}
	handler := cfg.handler()

	login := func(t *testing.T, username, password string) *httptest.ResponseRecorder {
		t.Helper()
		body, err := json.Marshal(loginRequest{Username: username, Password: password})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("success", func(t *testing.T) {
		rr := login(t, "mira", "correct horse")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp loginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "user-1", resp.User.ID)
		assert.Equal(t, "mira", resp.User.Username)
		assert.Equal(t, RoleAdmin, resp.User.Role)
		assert.True(t, resp.User.CreatedAt.Equal(created))

		claims, err := cfg.Auth.verifyToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		wrongPass := login(t, "mira", "nope")
		unknown := login(t, "ghost", "nope")

		assert.Equal(t, http.StatusBadRequest, wrongPass.Code)
		assert.Equal(t, http.StatusBadRequest, unknown.Code)
		assert.Equal(t, wrongPass.Body.String(), unknown.Body.String())
	})

	t.Run("bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{")))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
