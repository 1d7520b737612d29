package cryptoengines

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// GetKeyID returns the engine key id of a public key: the hex encoded SHA-256
// of its PKIX encoding.
func GetKeyID(pub any) (string, error) {
	pubkeyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("could not marshal public key: %w", err)
	}

	digest := sha256.Sum256(pubkeyBytes)
	return hex.EncodeToString(digest[:]), nil
}
