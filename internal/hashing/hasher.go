package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	otpDigits   = 6
	tokenBytes  = 32
	otpPurpose  = "otp"
	maxOTPValue = 1000000
)

// Hasher produces keyed hashes for identities, OTPs and tokens. Raw values
// never leave this package in logs or errors; callers only ever see the
// base64url digest.
type Hasher struct {
	secret []byte
}

func NewHasher(secret string) *Hasher {
	return &Hasher{secret: []byte(secret)}
}

// NormalizeIdentity canonicalizes an email-like identity before hashing:
// trim, lowercase, Unicode NFKC.
func NormalizeIdentity(value string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(value)))
}

// KeyedHash returns the HMAC-SHA256 of value under the shared secret,
// base64url without padding.
func (h *Hasher) KeyedHash(value string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Derive namespaces a keyed hash by purpose ("email", "ip", "ua", ...) so the
// same secret cannot be replayed to correlate values across purposes.
func (h *Hasher) Derive(purpose, value string) string {
	return h.KeyedHash(purpose + ":" + value)
}

// OTPHash binds an OTP to a single challenge. A stolen hash cannot be
// replayed against a different challenge id.
func (h *Hasher) OTPHash(otp, challengeID string) string {
	return h.Derive(otpPurpose, otp+"|"+challengeID)
}

// VerifyOTPHash compares the challenge-bound hash of the presented OTP
// against the stored digest in constant time.
func (h *Hasher) VerifyOTPHash(otp, challengeID, expected string) bool {
	computed := h.OTPHash(otp, challengeID)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}

// RandomOTP returns exactly six ASCII digits with uniform distribution,
// leading zeros included.
func RandomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxOTPValue))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// RandomToken returns a URL-safe bearer token carrying 32 bytes of entropy.
func RandomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
