package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// OTPDigits is the length of every generated code.
const OTPDigits = 6

var digitRange = big.NewInt(10)

// GenerateOTP returns a numeric OTP of OTPDigits digits (e.g. "042917") drawn from crypto/rand
// without modulo bias.
func GenerateOTP() (string, error) {
	s := make([]byte, OTPDigits)
	for i := range s {
		n, err := rand.Int(rand.Reader, digitRange)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// HashOTP returns the hex-encoded SHA-256 of otp. Only hashes are ever stored.
func HashOTP(otp string) string {
	h := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(h[:])
}

// OTPEqual compares the hash of providedOTP with storedHash in constant time.
// An empty code never matches.
func OTPEqual(providedOTP, storedHash string) bool {
	if providedOTP == "" || storedHash == "" {
		return false
	}
	providedHash := HashOTP(providedOTP)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// WellFormed reports whether code looks like an OTP (exactly OTPDigits ASCII digits).
func WellFormed(code string) bool {
	if len(code) != OTPDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
