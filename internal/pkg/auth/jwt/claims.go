package jwt

import "github.com/golang-jwt/jwt"

// Principal kinds carried in the token.
const (
	KindUser      = "user"
	KindAnonymous = "anonymous"
)

// Payload defines the structure of the JSON Web Token (JWT) claims.
// Only the subject and its kind are trusted; everything else about the principal
// is re-read from the durable store on every connection.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UID is the unified identifier for the principal, either a registered user id
	// or an anonymous id.
	UID string `json:"uid"`

	// Kind is either "user" or "anonymous".
	Kind string `json:"kind"`

	// Nickname is informational only and never used for authorization.
	Nickname string `json:"nickname,omitempty"`
}
