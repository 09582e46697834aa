package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by the identity provider's session tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrMissingSubject = errors.New("token has no subject")
	ErrAnonymousRole  = errors.New("anonymous tokens are not accepted")
)

func parsePublicKey(pemKey string) (any, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}

var (
	hmacMethods  = []string{"HS256", "HS384", "HS512"}
	rsaMethods   = []string{"RS256", "RS384", "RS512"}
	ecdsaMethods = []string{"ES256", "ES384", "ES512"}
)

// verifierFor picks the verification key and the accepted algorithms from the configured key
// material. A PEM public key admits only its own RSA or ECDSA family; anything else is an HMAC
// secret. The token's alg header never selects the family.
func verifierFor(keyMaterial string) (any, []string, error) {
	if !strings.Contains(keyMaterial, "-----BEGIN") {
		return []byte(keyMaterial), hmacMethods, nil
	}
	pub, err := parsePublicKey(keyMaterial)
	if err != nil {
		return nil, nil, err
	}
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return key, rsaMethods, nil
	case *ecdsa.PublicKey:
		return key, ecdsaMethods, nil
	}
	return nil, nil, fmt.Errorf("unsupported public key type %T", pub)
}

// ValidateJWT verifies a session token and returns its claims. The token must name a
// subject (the user id) and must not be an anonymous-role token.
func ValidateJWT(tokenString string, keyMaterial string) (*Claims, error) {
	key, methods, err := verifierFor(keyMaterial)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods(methods))
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.Role == "anon" {
		return nil, ErrAnonymousRole
	}
	return claims, nil
}
