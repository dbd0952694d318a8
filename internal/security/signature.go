package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// freshnessWindow bounds |now - ts| for signed requests, in both
	// directions so future-dated timestamps are rejected too.
	freshnessWindow = 60 * time.Second

	// minSecretLen is the minimum HMAC secret length; anything shorter
	// fails closed.
	minSecretLen = 16
)

var (
	ErrWeakSecret     = errors.New("hmac secret missing or too short")
	ErrStaleTimestamp = errors.New("timestamp outside freshness window")
	ErrBadSignature   = errors.New("signature mismatch")
)

// SignatureValidator verifies HMAC-SHA256 request signatures over
// pipe-joined canonical messages.
type SignatureValidator struct {
	secret []byte
	now    func() time.Time
}

// NewSignatureValidator creates a validator for the given shared secret.
func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// MintMessage canonical message for mint and mint_via_minter requests
func MintMessage(to, amount string, ts int64) string {
	return fmt.Sprintf("%s|%s|%d", to, amount, ts)
}

// AwardMessage canonical message for award requests
func AwardMessage(to, rewardID, amount string, ts int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", to, rewardID, amount, ts)
}

// RedeemMessage canonical message for redeem and redeem_permit requests
func RedeemMessage(from, amount, rewardID string, ts int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", from, amount, rewardID, ts)
}

// Sign computes the hex-encoded HMAC-SHA256 of the message. Used by the
// operator tooling and by tests.
func (v *SignatureValidator) Sign(message string) (string, error) {
	if len(v.secret) < minSecretLen {
		return "", ErrWeakSecret
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks signature and timestamp freshness for the canonical message.
func (v *SignatureValidator) Verify(message string, ts int64, sig string) error {
	if len(v.secret) < minSecretLen {
		return ErrWeakSecret
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(freshnessWindow/time.Second) {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(message))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(sig), "0x"))
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(expected, got) {
		return ErrBadSignature
	}
	return nil
}
