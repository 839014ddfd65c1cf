// Package userauth verifies the bearer tokens issued by the identity service
// and exposes the caller to the HTTP handlers.
package userauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Aidin1998/talabin/pkg/errors"
)

// Claims carried by an access token. Subject is the user id.
type Claims struct {
	Staff bool `json:"staff"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Staff  bool
}

// Verifier validates HS256 tokens against a shared secret
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify checks signature, expiry and issuer and returns the caller.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, errors.Unauthorized.Explain("missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, v.signingKey, opts...)
	if err != nil {
		return nil, errors.Unauthorized.Explain("invalid token").Wrap(err)
	}
	if !token.Valid {
		return nil, errors.Unauthorized.Explain("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Unauthorized.Explain("token subject is not a user id")
	}
	return &Principal{UserID: userID, Staff: claims.Staff}, nil
}

// Issue signs a token for a user. The identity service owns real logins;
// this is used by the CLI and tests.
func (v *Verifier) Issue(userID uuid.UUID, staff bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Staff: staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (v *Verifier) signingKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}
