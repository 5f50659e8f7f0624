package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/northwind-labs/atlas/internal/logger"
)

// userKey is the gin context key holding the authenticated user.
const userKey = "atlas.user"

// User is the identity extracted from a valid bearer token.
type User struct {
	ID    string
	Name  string
	Email string
}

// devUser is returned when authentication is disabled.
var devUser = User{
	ID:    "dev-user",
	Name:  "Dev User",
	Email: "dev@northwind.com",
}

// AuthConfig configures the bearer-token middleware.
type AuthConfig struct {
	// Enabled turns JWT verification on. When false every request runs as
	// devUser.
	Enabled bool

	// Secret signs and verifies HS256 tokens.
	Secret string

	// Expiry is the lifetime of tokens issued by IssueToken.
	Expiry time.Duration
}

// tokenClaims are the JWT claims Atlas issues and verifies.
type tokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken creates a signed HS256 token for the user.
func IssueToken(cfg AuthConfig, user User) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("auth: JWT secret is required")
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = 72 * time.Hour
	}

	now := time.Now()
	claims := tokenClaims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// parseToken verifies the token and extracts the user.
func parseToken(cfg AuthConfig, tokenString string) (User, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return User{}, err
	}
	if !token.Valid {
		return User{}, fmt.Errorf("invalid token")
	}

	return User{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// authMiddleware resolves the request user from the Authorization header.
// Disabled auth yields the fixed development user.
func authMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Set(userKey, devUser)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": "missing or invalid Authorization header"})
			return
		}

		user, err := parseToken(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.Warn("Rejected bearer token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// currentUser reads the authenticated user from the gin context.
func currentUser(c *gin.Context) User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(User); ok {
			return user
		}
	}
	return devUser
}
