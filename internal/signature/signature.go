package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrTimestampOutsideWindow = errors.New("timestamp outside allowed window")
	ErrInvalidSignature       = errors.New("invalid signature")
)

const (
	// Prefix tags the signature scheme so it can be rotated later.
	Prefix = "v1="

	// MaxAge / MaxSkew bound the replay window: signed requests older
	// than MaxAge or more than MaxSkew in the future are rejected.
	MaxAge  = 5 * time.Minute
	MaxSkew = 1 * time.Minute

	secretBytes  = 32
	secretPrefix = "whsec_"
)

// Header names emitted with every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
)

// Sign computes the hex HMAC-SHA256 of "<millis>.<body>" with the
// subscription secret, prefixed with the scheme tag.
func Sign(secret string, tsMillis int64, body []byte) string {
	return Prefix + hex.EncodeToString(digest(secret, strconv.FormatInt(tsMillis, 10), body))
}

// Verify recomputes the signature from the presented raw body and
// timestamp header, enforces the replay window, and compares in
// constant time.
func Verify(secret, sigHeader, tsHeader string, body []byte, now time.Time) error {
	tsMillis, err := strconv.ParseInt(strings.TrimSpace(tsHeader), 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	ts := time.UnixMilli(tsMillis)
	if ts.Before(now.Add(-MaxAge)) || ts.After(now.Add(MaxSkew)) {
		return ErrTimestampOutsideWindow
	}

	raw, ok := strings.CutPrefix(strings.TrimSpace(sigHeader), Prefix)
	if !ok {
		return ErrInvalidSignature
	}
	provided, err := hex.DecodeString(raw)
	if err != nil {
		return ErrInvalidSignature
	}

	expected := digest(secret, strconv.FormatInt(tsMillis, 10), body)
	if !hmac.Equal(provided, expected) {
		return ErrInvalidSignature
	}
	return nil
}

// NewSecret generates a subscription secret from crypto/rand. The value
// is shown to the owner exactly once, at creation; only callers decide
// where it goes after that.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

func digest(secret, ts string, body []byte) []byte {
	msg := make([]byte, 0, len(ts)+1+len(body))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	msg = append(msg, body...)

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(msg)
	return mac.Sum(nil)
}
