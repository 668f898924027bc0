package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// NormalizePublicKey converts VAPID public key material into the single wire
// format PushManager.subscribe() wants: the uncompressed P-256 point,
// base64url without padding. Accepts raw base64 (url or std alphabet, padded
// or not), PEM, or DER-encoded PKIX input.
func NormalizePublicKey(material string) (string, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return "", fmt.Errorf("empty public key")
	}

	if block, _ := pem.Decode([]byte(material)); block != nil {
		return pointFromDER(block.Bytes)
	}

	raw, err := decodeBase64(material)
	if err != nil {
		return "", fmt.Errorf("public key is neither PEM nor base64: %w", err)
	}

	// Already a raw uncompressed point?
	if len(raw) == 65 && raw[0] == 0x04 {
		return base64.RawURLEncoding.EncodeToString(raw), nil
	}

	return pointFromDER(raw)
}

func pointFromDER(der []byte) (string, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("parsing DER public key: %w", err)
	}
	ec, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("public key is not an EC key")
	}
	if ec.Curve != elliptic.P256() {
		return "", fmt.Errorf("public key must be on curve P-256, got %s", ec.Curve.Params().Name)
	}
	ecdhKey, err := ec.ECDH()
	if err != nil {
		return "", fmt.Errorf("converting public key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(ecdhKey.Bytes()), nil
}

// decodeBase64 tries the url and std alphabets, padded and raw.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("invalid base64")
}
