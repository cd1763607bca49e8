package app

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// AccessCodeLength is the number of characters in a join code.
const AccessCodeLength = 6

// Letters and digits that cannot be confused when read aloud or typed.
const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MaxCodeAttempts bounds collision retries when reserving a code.
const MaxCodeAttempts = 16

// ErrCodeSpaceExhausted is returned when no free code was found.
var ErrCodeSpaceExhausted = errors.New("could not reserve a unique access code")

// GenerateAccessCode returns a random code; uniqueness is the registry's job.
func GenerateAccessCode() (string, error) {
	size := big.NewInt(int64(len(accessCodeAlphabet)))
	b := make([]byte, AccessCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
