package app

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	hostIDKey = "host_id"

	oauthStateAudience = "google-calendar-connect"
	oauthStateTTL      = 10 * time.Minute
)

// Authenticator resolves the bearer token of a request to a host id. JWTs
// are HMAC signed and carry the host id as subject; static tokens are
// configured as "token:hostID" pairs, a bare token being its own host id.
type Authenticator struct {
	Secret []byte
	Static map[string]string
}

func NewAuthenticator(secret, staticTokens string) *Authenticator {
	au := &Authenticator{Static: map[string]string{}}
	if secret = strings.TrimSpace(secret); secret != "" {
		au.Secret = []byte(secret)
	}
	for _, entry := range strings.Split(staticTokens, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, hostID, ok := strings.Cut(entry, ":")
		if token = strings.TrimSpace(token); token == "" {
			continue
		}
		if hostID = strings.TrimSpace(hostID); !ok || hostID == "" {
			hostID = token
		}
		au.Static[token] = hostID
	}
	return au
}

// Middleware rejects requests without a valid bearer token and stores the
// host id in the gin context.
func (au *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		hostID, err := au.Resolve(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(hostIDKey, hostID)
		c.Next()
	}
}

// Resolve returns the host id a token authenticates.
func (au *Authenticator) Resolve(token string) (string, error) {
	if len(au.Secret) > 0 {
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(token, claims, au.keyFunc,
			jwt.WithLeeway(5*time.Second), jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		// OAuth state tokens are not session tokens
		if err == nil && claims.Subject != "" && !slices.Contains(claims.Audience, oauthStateAudience) {
			return claims.Subject, nil
		}
	}
	if hostID, ok := au.Static[token]; ok {
		return hostID, nil
	}
	return "", ErrUnauthenticated
}

func (au *Authenticator) keyFunc(*jwt.Token) (any, error) {
	return au.Secret, nil
}

// IssueToken signs a host token valid for ttl.
func (au *Authenticator) IssueToken(hostID string, ttl time.Duration) (string, error) {
	if len(au.Secret) == 0 {
		return "", errors.New("JWT_HMAC_SECRET not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   hostID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(au.Secret)
}

// signState binds an OAuth round trip to the host that started it.
func (au *Authenticator) signState(hostID string) (string, error) {
	if len(au.Secret) == 0 {
		return "", errors.New("JWT_HMAC_SECRET not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   hostID,
		Audience:  jwt.ClaimStrings{oauthStateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(au.Secret)
}

func (au *Authenticator) verifyState(state string) (string, error) {
	if len(au.Secret) == 0 {
		return "", ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, au.keyFunc,
		jwt.WithAudience(oauthStateAudience), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

// HostID is the authenticated host of the request.
func HostID(c *gin.Context) string {
	return c.GetString(hostIDKey)
}
