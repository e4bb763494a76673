package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived signing keys to this protocol so a leaked digest
// cannot be replayed against another service using the same device token.
const hkdfInfo = "handlink-device-auth"

// newNonce returns a 16-byte random nonce, base64url-encoded without padding.
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("gateway: nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// deriveSigningKey derives a 32-byte HMAC key from the device token with
// HKDF-SHA256.
func deriveSigningKey(deviceToken string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(deviceToken), nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("gateway: derive signing key: %w", err)
	}
	return key, nil
}

// signConnectPayload signs the canonical connect string
// "deviceID|nonce|signedAtMs" with HMAC-SHA256 under the key derived from
// the device token, returning the base64url digest.
func signConnectPayload(deviceID, deviceToken, nonce string, signedAtMs int64) (string, error) {
	key, err := deriveSigningKey(deviceToken)
	if err != nil {
		return "", err
	}

	canonical := deviceID + "|" + nonce + "|" + strconv.FormatInt(signedAtMs, 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
