package cryptoengines

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
)

type SupportedKeyTypeInfo struct {
	Type  models.KeyType `json:"type"`
	Sizes []int          `json:"sizes"`
}

type CryptoEngineInfo struct {
	ID                string                      `json:"id"`
	Type              config.CryptoEngineProvider `json:"type"`
	Provider          string                      `json:"provider"`
	Name              string                      `json:"name"`
	Metadata          map[string]interface{}      `json:"metadata"`
	SupportedKeyTypes []SupportedKeyTypeInfo      `json:"supported_key_types"`
}

// CryptoEngine stores private key material. Keys are addressed by the id
// returned when they are created, see GetKeyID.
type CryptoEngine interface {
	GetEngineConfig() CryptoEngineInfo

	ListPrivateKeyIDs() ([]string, error)
	GetPrivateKeyByID(keyID string) (crypto.Signer, error)

	CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error)
	CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error)

	ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error)
	ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error)

	DeleteKey(keyID string) error
}

var cryptoEngineBuilders = make(map[config.CryptoEngineProvider]func(*logrus.Entry, config.CryptoEngineConfig) (CryptoEngine, error))

func RegisterCryptoEngine(name config.CryptoEngineProvider, builder func(*logrus.Entry, config.CryptoEngineConfig) (CryptoEngine, error)) {
	cryptoEngineBuilders[name] = builder
}

func GetEngineBuilder(name config.CryptoEngineProvider) func(*logrus.Entry, config.CryptoEngineConfig) (CryptoEngine, error) {
	return cryptoEngineBuilders[name]
}
