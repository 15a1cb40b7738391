package battle

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CodeLength is the exact length of a room code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// bytes at or above this are rejected so every symbol is equally likely
const codeCutoff = 256 - 256%len(codeAlphabet)

var ErrInvalidRoomCode = errors.New("room code must be 6 characters")

// NewCode returns a random room code.
func NewCode() (string, error) {
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, 2*CodeLength)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeCutoff {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeCode upper-cases a user supplied code and checks its length.
// Surrounding whitespace counts towards the length.
func NormalizeCode(code string) (string, error) {
	if utf8.RuneCountInString(code) != CodeLength {
		return "", ErrInvalidRoomCode
	}
	return strings.ToUpper(code), nil
}
