package helpers

import (
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// SubjectKeyIdentifier computes the RFC 5280 method 1 key identifier: the SHA-1
// of the subjectPublicKey bit string.
func SubjectKeyIdentifier(publicKeyDER []byte) ([]byte, error) {
	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(publicKeyDER, &spki)
	if err != nil {
		return nil, fmt.Errorf("could not parse subject public key info: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing data after subject public key info")
	}

	sum := sha1.Sum(spki.PublicKey.RightAlign())
	return sum[:], nil
}

// SubjectKeyIdentifierHex is SubjectKeyIdentifier in the form stored with
// keys and certificates.
func SubjectKeyIdentifierHex(publicKeyDER []byte) (string, error) {
	ski, err := SubjectKeyIdentifier(publicKeyDER)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ski), nil
}

func PublicKeySKI(pub crypto.PublicKey) (string, []byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", nil, fmt.Errorf("could not marshal public key: %w", err)
	}
	ski, err := SubjectKeyIdentifierHex(der)
	if err != nil {
		return "", nil, err
	}
	return ski, der, nil
}

// SKIFilename returns the repository filename used for objects named after a
// key: base64url without padding of the raw identifier.
func SKIFilename(skiHex string, extension string) (string, error) {
	raw, err := hex.DecodeString(skiHex)
	if err != nil {
		return "", fmt.Errorf("invalid subject key identifier %q: %w", skiHex, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw) + extension, nil
}
