package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for caller identity
type contextKey string

const callerContextKey contextKey = "caller"

// Roles carried in the JWT.
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

// JWTClaims represents the claims in the JWT token
type JWTClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Caller represents the authenticated caller in request context
type Caller struct {
	Role string
}

// IsAdmin reports whether the caller holds the admin role.
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

type issueTokenRequest struct {
	APIKey string `json:"api_key"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleIssueToken exchanges a configured API key for a short-lived
// JWT. Admin keys get the admin role, which implies service access.
func (r *Router) handleIssueToken(w http.ResponseWriter, req *http.Request) {
	var body issueTokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.APIKey == "" {
		http.Error(w, `{"error": "api_key required"}`, http.StatusBadRequest)
		return
	}

	var role string
	switch {
	case keyMatches(body.APIKey, r.cfg.AdminAPIKey):
		role = RoleAdmin
	case keyMatches(body.APIKey, r.cfg.ServiceAPIKey):
		role = RoleService
	default:
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := r.generateJWT(role)
	if err != nil {
		captureError(req, err, "auth: failed to sign token")
		http.Error(w, `{"error": "failed to issue token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, issueTokenResponse{Token: token, Role: role, ExpiresAt: expiresAt})
}

// keyMatches compares an offered key against a configured one in
// constant time. An unset configured key never matches.
func keyMatches(offered, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(offered), []byte(configured)) == 1
}

// generateJWT creates a new signed token for the given role.
func (r *Router) generateJWT(role string) (string, time.Time, error) {
	expiry := r.cfg.JWTExpiry
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	expiresAt := nowUTC().Add(expiry)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(nowUTC()),
			Issuer:    "veritas",
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// tokenFromRequest extracts the bearer token. Websocket clients can't
// set headers from browsers, so a token query parameter is accepted too.
func tokenFromRequest(req *http.Request) string {
	authHeader := req.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return req.URL.Query().Get("token")
}

// withAuth is middleware that requires a valid JWT.
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tokenString := tokenFromRequest(req)
		if tokenString == "" {
			http.Error(w, `{"error": "missing authorization"}`, http.StatusUnauthorized)
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
			return
		}

		caller := &Caller{Role: claims.Role}
		ctx := context.WithValue(req.Context(), callerContextKey, caller)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// withAdmin is middleware that requires the admin role.
func (r *Router) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		if !getCaller(req.Context()).IsAdmin() {
			http.Error(w, `{"error": "admin access required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// getCaller extracts the authenticated caller from context
func getCaller(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerContextKey).(*Caller)
	return caller
}
