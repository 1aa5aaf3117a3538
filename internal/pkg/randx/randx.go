/*
Package randx provides functions for generating cryptographically secure random numbers and unique identifiers.

It is used to generate fixed-length room codes, anonymous principal ids, guest nicknames and
time-ordered message ids.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// RoomCodeChars defines the character set used for room codes (0-9, A-Z).
	RoomCodeChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// RoomCodeLength is the fixed length required for the generated room code.
	RoomCodeLength = 8

	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// AnonymousIDPrefix is the required prefix for anonymous principal ids.
	AnonymousIDPrefix = "anon_"

	// AnonymousIDRawLength is the fixed length of the random part of an anonymous id.
	AnonymousIDRawLength = 12
)

// randomString draws length characters from charset using crypto/rand.
func randomString(charset string, length int) (string, error) {
	result := make([]byte, length)
	max := big.NewInt(int64(len(charset)))

	for i := range length {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = charset[num.Int64()]
	}

	return string(result), nil
}

// RoomCode generates an upper-case alphanumeric room code of length RoomCodeLength.
func RoomCode() (string, error) {
	return randomString(RoomCodeChars, RoomCodeLength)
}

// IsValidRoomCode checks if the given string is a valid room code.
func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}

	for _, char := range code {
		if !strings.ContainsRune(RoomCodeChars, char) {
			return false
		}
	}

	return true
}

// AnonymousID generates a new anonymous principal id such as "anon_3fZk91QaLm0B".
func AnonymousID() (string, error) {
	raw, err := randomString(Base62Chars, AnonymousIDRawLength)
	if err != nil {
		return "", err
	}
	return AnonymousIDPrefix + raw, nil
}

// IsValidAnonymousID checks if the given string is a well-formed anonymous id.
func IsValidAnonymousID(id string) bool {
	rawID, ok := strings.CutPrefix(id, AnonymousIDPrefix)
	if !ok || len(rawID) != AnonymousIDRawLength {
		return false
	}

	for _, char := range rawID {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

// GuestNickname generates a random nickname with a "Guest_" prefix and 6 random Base62 characters.
func GuestNickname() (string, error) {
	raw, err := randomString(Base62Chars, 6)
	if err != nil {
		return "", err
	}
	return "Guest_" + raw, nil
}

// MessageID generates a time-ordered UUIDv7 so that ids sort with their creation time.
func MessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	return id.String(), nil
}

// ID generates a random UUIDv4 string for rows without ordering requirements.
func ID() string {
	return uuid.NewString()
}
