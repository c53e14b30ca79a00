// Package otp generates, hashes and matches the numeric one-time passcodes
// mailed to signers. Plaintext codes exist only in memory between generation
// and delivery; storage sees the bcrypt hash.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MaxPerRequest caps SignatureOtp rows per signature request.
const MaxPerRequest = 3

// MaxAttempts locks an OTP after this many failed matches.
const MaxAttempts = 5

const (
	TTL          = 10 * time.Minute
	CodeLength   = 6
	ChannelEmail = "email"

	hashCost = 10
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a zero-padded 6 digit code drawn from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Hash returns the salted bcrypt hash of code.
func Hash(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), hashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Matches compares code against hash with bcrypt's constant-time comparison.
func Matches(code, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	return err == nil
}

// ValidCode reports whether s has the shape of an issued code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var errNoAt = errors.New("otp: address has no domain")

// MaskRecipient hides the local part of an address, e.g. ab***@domain.com.
// At most two leading characters survive; the full address never does.
func MaskRecipient(email string) string {
	masked, err := mask(strings.TrimSpace(email))
	if err != nil {
		return "***"
	}
	return masked
}

func mask(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", errNoAt
	}
	local, domain := []rune(email[:at]), email[at:]

	keep := 2
	if len(local) <= 2 {
		// Short local parts would otherwise be shown whole.
		keep = len(local) - 1
	}
	if keep < 0 {
		keep = 0
	}
	return string(local[:keep]) + "***" + domain, nil
}
