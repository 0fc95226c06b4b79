// Package authn issues and verifies the broker's session JWTs and hashes
// user passwords. Grounded on the teacher's use of golang-jwt/jwt (pulled
// in transitively for VAPID signing) and golang.org/x/crypto/bcrypt,
// promoted here to the broker's direct login/register path.
package authn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer   = "cloudide-broker"
	audience = "cloudide-client"
)

// Claims is the JWT payload issued on register/login. Both fields are
// mandatory; VerifyToken rejects a token missing either.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Issuer signs and verifies session tokens with a single HMAC secret.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewIssuer builds an Issuer. lifetime is how long issued tokens remain
// valid.
func NewIssuer(secret string, lifetime time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), lifetime: lifetime}
}

// IssueToken mints a signed JWT for (userID, email).
func (iss *Issuer) IssueToken(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.lifetime)),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(iss.secret)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates tok, checking signature, issuer,
// audience, expiry, and that both sub and email claims are present.
func (iss *Issuer) VerifyToken(tok string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method %v", t.Header["alg"])
		}
		return iss.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return nil, fmt.Errorf("authn: verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("authn: token not valid")
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("authn: token missing sub or email")
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("authn: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
