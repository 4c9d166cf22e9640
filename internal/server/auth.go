// auth.go - Login handler, bearer-token issuing/verification, and the
// access-guard middleware that every /api/files route goes through.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig holds the token-signing secret and lifetime. It is part of
// server.Config and never read from ambient state.
type AuthConfig struct {
	Secret   []byte
	TokenTTL time.Duration
}

func (a AuthConfig) ttl() time.Duration {
	if a.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return a.TokenTTL
}

// Claims is the token payload: subject carries the user id, Role the
// authorization role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

var errInvalidToken = errors.New("invalid token")

// issueToken signs an HS256 token for the given user.
func (a AuthConfig) issueToken(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl())),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	})
	return token.SignedString(a.Secret)
}

// verifyToken parses and validates a token, rejecting wrong algorithms,
// bad signatures and expired tokens.
func (a AuthConfig) verifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// identity is the decoded token payload attached to the request context by
// requireAuth.
type identity struct {
	UserID string
	Role   string
}

const identityKey ctxKey = "identity"

func withIdentity(r *http.Request, id identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, id))
}

// identityFromRequest returns the identity placed on the context by
// requireAuth. The zero identity means the guard did not run.
func identityFromRequest(r *http.Request) identity {
	if id, ok := r.Context().Value(identityKey).(identity); ok {
		return id
	}
	return identity{}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// requireAuth rejects requests without a valid bearer token and attaches the
// decoded identity to the context. The response never says why the token was
// rejected. The subject is not re-checked against the user store; a token
// stays usable until it expires.
func (a AuthConfig) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := a.verifyToken(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, withIdentity(r, identity{UserID: claims.Subject, Role: claims.Role}))
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

// loginHandler verifies credentials and issues a token. Unknown usernames
// and wrong passwords produce the identical response so the endpoint cannot
// be used to enumerate accounts.
func (cfg Config) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := cfg.Users.ByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusBadRequest, "invalid username or password")
			return
		}
		cfg.Log.Error("login user lookup failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "invalid username or password")
		return
	}

	token, err := cfg.Auth.issueToken(user.ID, user.Role)
	if err != nil {
		cfg.Log.Error("token signing failed", map[string]any{
			"rid": RequestIDFromContext(r.Context()),
		}, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User: userSummary{
			ID:        user.ID,
			Username:  user.Username,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		},
	})
}
