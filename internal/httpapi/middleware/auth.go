package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/suPer8Hu/agent-squad/internal/common"
)

const SubjectKey = "subject"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// SignToken issues an HS256 token for subject. Used by ops tooling and tests.
func SignToken(subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and returns its subject.
func ParseToken(raw, secret string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// AuthRequired checks "Authorization: Bearer <jwt>". An empty secret
// disables the check.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			common.AbortFail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		sub, err := ParseToken(strings.TrimSpace(raw), secret)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				common.AbortFail(c, http.StatusUnauthorized, 40102, "token expired")
				return
			}
			common.AbortFail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		c.Set(SubjectKey, sub)
		c.Next()
	}
}

// RequireSubject lets through only tokens whose subject is listed. It runs
// after AuthRequired; with auth disabled there is no subject and it passes.
func RequireSubject(subjects ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.GetString(SubjectKey)
		if sub == "" || slices.Contains(subjects, sub) {
			c.Next()
			return
		}
		common.AbortFail(c, http.StatusForbidden, 40301, "forbidden")
	}
}
