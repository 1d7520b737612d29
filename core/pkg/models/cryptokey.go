package models

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
)

type KeyType x509.PublicKeyAlgorithm

const (
	KeyTypeRSA   = KeyType(x509.RSA)
	KeyTypeECDSA = KeyType(x509.ECDSA)
)

func (kt KeyType) String() string {
	publicKeyAlg := x509.PublicKeyAlgorithm(kt)
	return publicKeyAlg.String()
}

func (kt KeyType) MarshalText() ([]byte, error) {
	return []byte(kt.String()), nil
}

func (kt *KeyType) UnmarshalText(text []byte) error {
	k, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}

	*kt = *k
	return nil
}

func (kt KeyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(kt.String())
}

func (kt *KeyType) UnmarshalJSON(data []byte) error {
	var t string
	err := json.Unmarshal(data, &t)
	if err != nil {
		return err
	}

	return kt.UnmarshalText([]byte(t))
}

func ParseKeyType(s string) (*KeyType, error) {
	var nkt KeyType

	switch s {
	case "RSA":
		nkt = KeyTypeRSA
	case "ECDSA":
		nkt = KeyTypeECDSA
	default:
		return nil, fmt.Errorf("unsupported key type %q", s)
	}

	return &nkt, nil
}
