package helpers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// serialNumberLimit keeps serials within the 20 octets RFC 5280 allows,
// positive and with the sign bit clear.
var serialNumberLimit = new(big.Int).Lsh(big.NewInt(1), 159)

// GenerateSerialNumber returns a random, non-zero certificate serial number.
func GenerateSerialNumber() (*big.Int, error) {
	for {
		sn, err := rand.Int(rand.Reader, serialNumberLimit)
		if err != nil {
			return nil, fmt.Errorf("could not generate serial number: %w", err)
		}
		if sn.Sign() > 0 {
			return sn, nil
		}
	}
}

// SerialNumberToHexString converts a big.Int serial number to its hexadecimal string representation.
// It ensures that the output is in lowercase and has an even length by padding with a leading zero if necessary.
func SerialNumberToHexString(n *big.Int) string {
	n = new(big.Int).Abs(n)
	if n.Sign() == 0 {
		return "00"
	}
	return hex.EncodeToString(n.Bytes())
}

// ParseSerialNumberHex is the inverse of SerialNumberToHexString.
func ParseSerialNumberHex(s string) (*big.Int, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid serial number %q: %w", s, err)
	}
	return new(big.Int).SetBytes(raw), nil
}

// SerialNumberToString formats a serial number the way it is shown to
// operators, dash separated octets.
func SerialNumberToString(n *big.Int) string {
	return insertNth(toHexInt(new(big.Int).Abs(n)), 2, '-')
}

func toHexInt(n *big.Int) string {
	return fmt.Sprintf("%x", n)
}

func insertNth(s string, n int, sep rune) string {
	if len(s)%2 != 0 {
		s = "0" + s
	}

	var buffer strings.Builder
	for i, r := range s {
		if i > 0 && i%n == 0 {
			buffer.WriteRune(sep)
		}
		buffer.WriteRune(r)
	}
	return buffer.String()
}
