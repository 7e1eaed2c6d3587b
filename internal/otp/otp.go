// Package otp issues and checks short numeric one-time codes.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// MaxLength keeps 10^length inside an int64.
const MaxLength = 18

var (
	ErrInvalidLength = errors.New("otp length out of range")
	ErrMissingInput  = errors.New("otp missing")
	ErrExpired       = errors.New("otp expired")
	ErrMismatch      = errors.New("otp mismatch")
)

// Record is a code together with the instant it stops being valid.
type Record struct {
	Code      string    `json:"code" dynamodbav:"code"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

// NewRecord generates a code of the given length valid for ttl.
func NewRecord(length int, ttl time.Duration) (*Record, error) {
	code, err := Generate(length)
	if err != nil {
		return nil, err
	}
	return &Record{Code: code, ExpiresAt: ExpiresIn(ttl)}, nil
}

// Generate returns a uniformly distributed decimal code of exactly length
// digits. rand.Int samples by rejection over [0, 10^length), so there is no
// modulo bias; leading zeros are kept.
func Generate(length int) (string, error) {
	if length < 1 || length > MaxLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// ExpiresIn returns the absolute expiry d from now.
func ExpiresIn(d time.Duration) time.Time {
	return time.Now().Add(d)
}

// ExpiryTimestamp is ExpiresIn expressed in whole minutes.
func ExpiryTimestamp(minutes int) time.Time {
	return ExpiresIn(time.Duration(minutes) * time.Minute)
}

// IsExpired reports whether t lies strictly in the past.
func IsExpired(t time.Time) bool {
	return time.Now().After(t)
}

// Verify checks provided against stored. Missing input is reported before
// expiry, expiry before mismatch.
func Verify(provided, stored string, expiry time.Time) error {
	if provided == "" || stored == "" {
		return ErrMissingInput
	}
	if IsExpired(expiry) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Verify checks provided against the record.
func (r *Record) Verify(provided string) error {
	if r == nil {
		return ErrMissingInput
	}
	return Verify(provided, r.Code, r.ExpiresAt)
}
