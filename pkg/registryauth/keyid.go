package registryauth

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base32"
	"fmt"
	"strings"
)

// KeyID derives a libtrust-compatible key fingerprint for pub, used as the
// JWT "kid" header (spec §4.4): SHA-256 the DER-encoded PKIX public key,
// take the leading 30 bytes, base32-encode (no padding), then group into
// 12 groups of 4 characters separated by colons.
func KeyID(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}

	sum := sha256.Sum256(der)
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:30])

	var groups []string
	for i := 0; i < len(encoded); i += 4 {
		end := i + 4
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}
	return strings.Join(groups, ":"), nil
}
