package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cacheEntry stores cached JWT claims keyed by JTI (JWT ID)
type cacheEntry struct {
	claims jwt.MapClaims
	exp    int64
}

// AuthMiddleware handles JWT validation and RBAC enforcement.
// Tokens are RS256-signed by the Identity Service; verified claims are cached by JTI.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	// verified claims keyed by JTI
	cache       sync.Map
	janitorStop chan bool
}

const CacheCleanupInterval = 10 * time.Minute

// NewAuthMiddleware creates a new JWT authentication middleware
func NewAuthMiddleware(publicKey *rsa.PublicKey) *AuthMiddleware {
	m := &AuthMiddleware{
		publicKey:   publicKey,
		janitorStop: make(chan bool),
	}

	go m.startJanitor(CacheCleanupInterval)

	return m
}

// Context keys for storing user information
type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"
	TokenKey  contextKey = "token"
)

// Roles issued by the Identity Service
const (
	RolePatient   = "PATIENT"
	RoleCaregiver = "CAREGIVER"
	RoleAdmin     = "ADMIN"
)

// GetClaimsFromCacheOrParse returns verified claims and the cache key (JTI).
// The signature is only checked on a cache miss.
func (m *AuthMiddleware) GetClaimsFromCacheOrParse(tokenString string) (jwt.MapClaims, string, error) {
	parser := new(jwt.Parser)
	unverifiedToken, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, "", err
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("invalid token claims")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		// without a JTI the signature segment is the only unique part of the token
		jti = tokenString[strings.LastIndex(tokenString, ".")+1:]
	}

	var exp int64
	if expFloat, ok := claims["exp"].(float64); ok {
		exp = int64(expFloat)
	} else if expInt, ok := claims["exp"].(int64); ok {
		exp = expInt
	} else {
		return nil, "", errors.New("missing expiration claim")
	}

	if time.Now().Unix() > exp {
		return nil, "", errors.New("token expired")
	}

	if entry, ok := m.cache.Load(jti); ok {
		cached := entry.(cacheEntry)
		if time.Now().Unix() < cached.exp {
			return cached.claims, jti, nil
		}
		m.cache.Delete(jti)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))

	if err != nil {
		return nil, "", err
	}

	if !token.Valid {
		return nil, "", jwt.ErrSignatureInvalid
	}

	verifiedClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("invalid token claims")
	}

	m.cache.Store(jti, cacheEntry{claims: verifiedClaims, exp: exp})

	return verifiedClaims, jti, nil
}

// RequireAuth is middleware that validates JWT token from Authorization header
// Adds userID and role to request context
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Printf("Missing Authorization header")
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			log.Printf("Invalid Authorization header format")
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}
		tokenString := parts[1]

		claims, jti, err := m.GetClaimsFromCacheOrParse(tokenString)
		if err != nil {
			log.Printf("Token validation failed: %v", err)
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			log.Printf("Missing or invalid 'sub' claim")
			http.Error(w, "invalid token: missing user ID", http.StatusUnauthorized)
			return
		}

		userRole, ok := claims["role"].(string)
		if !ok || userRole == "" {
			log.Printf("Missing or invalid 'role' claim")
			http.Error(w, "invalid token: missing role", http.StatusUnauthorized)
			return
		}

		log.Printf("Token validated - UserID: %s, Role: %s, JTI: %s (processing time: %v)", userID, userRole, truncate(jti, 20), time.Since(start))

		next(w, r.WithContext(WithIdentity(r.Context(), userID, userRole, tokenString)))
	}
}

// WithIdentity stores the authenticated caller in ctx
func WithIdentity(ctx context.Context, userID, role, token string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, RoleKey, role)
	return context.WithValue(ctx, TokenKey, token)
}

// RequireRole only lets through callers holding one of roles; everyone else gets 403
func (m *AuthMiddleware) RequireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		role, _ := GetRole(r.Context())
		if !slices.Contains(roles, role) {
			log.Printf("Role %s not allowed, required one of %v", role, roles)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// startJanitor periodically cleans up expired cache entries
func (m *AuthMiddleware) startJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().Unix()
			deleted := 0
			m.cache.Range(func(key, value interface{}) bool {
				if entry, ok := value.(cacheEntry); ok && now >= entry.exp {
					m.cache.Delete(key)
					deleted++
				}
				return true
			})
			if deleted > 0 {
				log.Printf("L1 Cache Janitor: Purged %d expired entries", deleted)
			}
		case <-m.janitorStop:
			return
		}
	}
}

// Stop stops the background janitor (for graceful shutdown)
func (m *AuthMiddleware) Stop() {
	close(m.janitorStop)
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetRole extracts role from request context
func GetRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// GetToken extracts token string from request context
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// IsStaff reports whether the caller is a caregiver or an admin
func IsStaff(ctx context.Context) bool {
	role, ok := GetRole(ctx)
	return ok && (role == RoleCaregiver || role == RoleAdmin)
}

// CanAccessPatient reports whether the caller may read or change a patient's menus.
// Staff may access every patient; a patient only their own records.
func CanAccessPatient(ctx context.Context, patientID string) bool {
	if IsStaff(ctx) {
		return true
	}
	role, _ := GetRole(ctx)
	userID, ok := GetUserID(ctx)
	return ok && role == RolePatient && strings.EqualFold(userID, patientID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
