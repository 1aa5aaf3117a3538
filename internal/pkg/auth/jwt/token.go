package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenIssuer identifies the issuer of the token.
const TokenIssuer = "RoomChat-Server"

// GenerateToken creates and signs a new JWT Token string based on the provided Payload struct.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
		Subject:   payload.UID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates the JWT Token string using the provided secretKey.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	return parse(tokenString, secretKey, false)
}

// ParseExpiredToken is ParseToken that also accepts a token whose only defect is its
// expiry. The signature, subject and kind are still checked.
func ParseExpiredToken(tokenString string, secretKey string) (*Payload, error) {
	return parse(tokenString, secretKey, true)
}

func parse(tokenString, secretKey string, allowExpired bool) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		var ve *jwt.ValidationError
		if !allowExpired || !errors.As(err, &ve) || ve.Errors != jwt.ValidationErrorExpired {
			return nil, err
		}
	} else if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	if claims.UID == "" || (claims.Kind != KindUser && claims.Kind != KindAnonymous) {
		return nil, errors.New("token is missing subject or kind")
	}

	return claims, nil
}

// Validator verifies bearer credentials with a shared HMAC secret.
type Validator struct {
	secret string
}

// NewValidator returns a Validator for tokens signed with secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: secret}
}

// Validate returns the token claims, or nil when the token is not acceptable.
func (v *Validator) Validate(token string) *Payload {
	payload, err := ParseToken(token, v.secret)
	if err != nil {
		return nil
	}
	return payload
}

// ValidateSignature returns the claims of a token this server signed, expired or not,
// or nil.
func (v *Validator) ValidateSignature(token string) *Payload {
	payload, err := ParseExpiredToken(token, v.secret)
	if err != nil {
		return nil
	}
	return payload
}
