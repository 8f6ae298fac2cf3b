// Package util holds small helpers shared across handlers and middleware.
package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims issued by the auth provider. Subject carries the
// user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateJWT verifies an access token and returns its claims. keyMaterial
// is either the shared HMAC secret or a PEM-encoded public key; the signing
// algorithm is read from the token header so projects can rotate from HS256
// to asymmetric signing keys without a config change.
func ValidateJWT(tokenString, keyMaterial string) (*Claims, error) {
	alg, err := tokenAlgorithm(tokenString)
	if err != nil {
		return nil, err
	}

	keyFunc, err := keyFuncFor(alg, keyMaterial)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// tokenAlgorithm reads the alg header without verifying the signature.
func tokenAlgorithm(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", fmt.Errorf("parse token header: %w", err)
	}
	alg, ok := token.Header["alg"].(string)
	if !ok {
		return "", errors.New("token header missing alg")
	}
	return alg, nil
}

func keyFuncFor(alg, keyMaterial string) (jwt.Keyfunc, error) {
	switch alg {
	case "HS256", "HS384", "HS512":
		secret := []byte(keyMaterial)
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, nil

	case "RS256", "RS384", "RS512":
		pub, err := parsePublicKey(keyMaterial)
		if err != nil {
			return nil, err
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("key material is not an RSA public key")
		}
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return rsaPub, nil
		}, nil

	case "ES256", "ES384", "ES512":
		pub, err := parsePublicKey(keyMaterial)
		if err != nil {
			return nil, err
		}
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("key material is not an ECDSA public key")
		}
		return func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ecdsaPub, nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
}

func parsePublicKey(pemKey string) (interface{}, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("key material is not PEM encoded")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return pub, nil
}
