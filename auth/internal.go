package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subjects accepted on internal tokens.
const (
	SubjectWorker = "worker"
	SubjectAdmin  = "admin"
)

// InternalSecretHeader carries the raw shared secret for callers that cannot sign tokens.
const InternalSecretHeader = "X-Internal-Secret"

var (
	ErrForbidden = errors.New("forbidden")
	ErrNoSecret  = errors.New("internal shared secret is not configured")
)

// InternalClaims is the payload of worker and admin tokens.
type InternalClaims struct {
	jwt.RegisteredClaims
}

// MintInternalToken signs an HS256 token for subject, valid for ttl from now.
func MintInternalToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if subject != SubjectWorker && subject != SubjectAdmin {
		return "", fmt.Errorf("unknown subject %q", subject)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := &InternalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseInternalToken verifies signature, expiry and subject.
func ParseInternalToken(secret, tokenStr string) (*InternalClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenStr, &InternalClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*InternalClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject != SubjectWorker && claims.Subject != SubjectAdmin {
		return nil, fmt.Errorf("%w: subject %q", jwt.ErrTokenInvalidClaims, claims.Subject)
	}
	return claims, nil
}

// Gate decides whether a request may reach the worker and admin endpoints.
type Gate struct {
	Secret        string
	AllowLoopback bool
}

// Check returns the accepted subject, or ErrForbidden.
// Accepted credentials, in order: a bearer token, the shared secret header, and
// a loopback peer when AllowLoopback is set.
func (g Gate) Check(r *http.Request) (string, error) {
	if g.Secret != "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			claims, err := ParseInternalToken(g.Secret, strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrForbidden, err)
			}
			return claims.Subject, nil
		}
		if h := r.Header.Get(InternalSecretHeader); h != "" {
			if subtle.ConstantTimeCompare([]byte(h), []byte(g.Secret)) == 1 {
				return SubjectAdmin, nil
			}
			return "", ErrForbidden
		}
	}
	if g.AllowLoopback && isLoopback(clientIP(r)) {
		return SubjectAdmin, nil
	}
	return "", ErrForbidden
}

// Authorize runs Check and then requires the subject to be one of allowed.
// Admin credentials satisfy every route; worker credentials only worker routes.
func (g Gate) Authorize(r *http.Request, allowed ...string) (string, error) {
	subject, err := g.Check(r)
	if err != nil {
		return "", err
	}
	if subject == SubjectAdmin || slices.Contains(allowed, subject) {
		return subject, nil
	}
	return "", fmt.Errorf("%w: subject %q may not call %s %s", ErrForbidden, subject, r.Method, r.URL.Path)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func isLoopback(ipStr string) bool {
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
