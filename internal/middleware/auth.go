package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userID"

// Claims identifies the user a token was issued to.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 tokens. With an empty secret it
// trusts the X-User-ID header or the userId query parameter instead.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewAuthenticator(secret string, ttl time.Duration, issuer string) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// Enabled reports whether tokens are required.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// IssueToken signs a token for userID. It returns "" when tokens are disabled.
func (a *Authenticator) IssueToken(userID int64, now time.Time) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates tokenString and returns its user id.
func (a *Authenticator) ParseToken(tokenString string) (int64, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	if claims.UserID != 0 {
		return claims.UserID, nil
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("token has no user")
	}
	return id, nil
}

// Required rejects requests without a resolvable user.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.resolve(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// Optional records the user when one is supplied and lets anonymous requests through.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := a.resolve(c); err == nil {
			c.Set(userIDKey, userID)
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context) (int64, error) {
	if !a.Enabled() {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			raw = c.Query("userId")
		}
		if raw == "" {
			return 0, errors.New("missing user")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, errors.New("invalid user id")
		}
		return id, nil
	}

	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return 0, errors.New("invalid authorization header")
		}
		token = parts[1]
	}
	if token == "" {
		return 0, errors.New("missing authorization")
	}
	id, err := a.ParseToken(token)
	if err != nil {
		return 0, errors.New("invalid token")
	}
	return id, nil
}

// UserID returns the authenticated user set by Required or Optional.
func UserID(c *gin.Context) (int64, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := id.(int64)
	return userID, ok && userID != 0
}
