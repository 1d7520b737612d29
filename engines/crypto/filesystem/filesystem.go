package filesystem

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/engines/crypto/software"
	"github.com/sirupsen/logrus"
)

type FilesystemCryptoEngine struct {
	config           cryptoengines.CryptoEngineInfo
	storageDirectory string
	logger           *logrus.Entry
	soft             *software.SoftwareCryptoEngine
}

func NewFilesystemPEMEngine(logger *logrus.Entry, conf config.CryptoEngineConfigAdapter[config.FilesystemCryptoEngineConfig]) (cryptoengines.CryptoEngine, error) {
	lGo := logger.WithField("subsystem-provider", "GoSoft")

	err := checkAndCreateStorageDir(lGo, conf.Config.StorageDirectory)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"rpki/cryptoengine.filesystem.storage-path": conf.Config.StorageDirectory,
	}
	for k, v := range conf.Metadata {
		meta[k] = v
	}

	return &FilesystemCryptoEngine{
		logger:           lGo,
		storageDirectory: conf.Config.StorageDirectory,
		soft:             software.NewSoftwareCryptoEngine(lGo),
		config: cryptoengines.CryptoEngineInfo{
			ID:       conf.ID,
			Type:     config.FilesystemProvider,
			Provider: "Golang",
			Name:     runtime.Version(),
			Metadata: meta,
			SupportedKeyTypes: []cryptoengines.SupportedKeyTypeInfo{
				{
					Type: models.KeyType(x509.RSA),
					Sizes: []int{
						2048,
						3072,
						4096,
					},
				},
				{
					Type: models.KeyType(x509.ECDSA),
					Sizes: []int{
						256,
						384,
						521,
					},
				},
			},
		},
	}, nil
}

func (engine *FilesystemCryptoEngine) GetEngineConfig() cryptoengines.CryptoEngineInfo {
	return engine.config
}

func (engine *FilesystemCryptoEngine) ListPrivateKeyIDs() ([]string, error) {
	entries, err := os.ReadDir(engine.storageDirectory)
	if err != nil {
		engine.logger.Errorf("could not list storage directory: %s", err)
		return nil, err
	}

	keyIDs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		keyIDs = append(keyIDs, entry.Name())
	}

	return keyIDs, nil
}

func (engine *FilesystemCryptoEngine) GetPrivateKeyByID(keyID string) (crypto.Signer, error) {
	engine.logger.Debugf("reading %s Key", keyID)
	file := filepath.Join(engine.storageDirectory, filepath.Base(keyID))

	pemBytes, err := os.ReadFile(file)
	if err != nil {
		engine.logger.Errorf("could not read %s Key: %s", keyID, err)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrKeyNotFound, keyID)
		}
		return nil, err
	}

	return engine.soft.ParsePrivateKey(pemBytes)
}

func (engine *FilesystemCryptoEngine) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	engine.logger.Debugf("creating RSA private key")

	_, key, err := engine.soft.CreateRSAPrivateKey(keySize)
	if err != nil {
		engine.logger.Errorf("could not create RSA private key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("RSA key successfully generated")
	return engine.importKey(key)
}

func (engine *FilesystemCryptoEngine) CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error) {
	engine.logger.Debugf("creating ECDSA private key")

	_, key, err := engine.soft.CreateECDSAPrivateKey(curve)
	if err != nil {
		engine.logger.Errorf("could not create ECDSA private key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("ECDSA key successfully generated")
	return engine.importKey(key)
}

func (engine *FilesystemCryptoEngine) DeleteKey(keyID string) error {
	err := os.Remove(filepath.Join(engine.storageDirectory, filepath.Base(keyID)))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", errs.ErrKeyNotFound, keyID)
	}
	return err
}

func (engine *FilesystemCryptoEngine) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	engine.logger.Debugf("importing RSA private key")

	keyID, signer, err := engine.importKey(key)
	if err != nil {
		engine.logger.Errorf("could not import RSA key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("RSA key successfully imported")
	return keyID, signer, nil
}

func (engine *FilesystemCryptoEngine) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	engine.logger.Debugf("importing ECDSA private key")

	keyID, signer, err := engine.importKey(key)
	if err != nil {
		engine.logger.Errorf("could not import ECDSA key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("ECDSA key successfully imported")
	return keyID, signer, nil
}

func (engine *FilesystemCryptoEngine) importKey(key interface{}) (string, crypto.Signer, error) {
	pubKey, err := software.PublicKeyOf(key)
	if err != nil {
		return "", nil, err
	}

	keyID, err := engine.soft.EncodePKIXPublicKeyDigest(pubKey)
	if err != nil {
		engine.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	b64PemKey, err := engine.soft.MarshalAndEncodePKIXPrivateKey(key)
	if err != nil {
		engine.logger.Errorf("could not marshal and encode private key: %s", err)
		return "", nil, err
	}

	pemKey, err := base64.StdEncoding.DecodeString(b64PemKey)
	if err != nil {
		engine.logger.Errorf("could not decode private key: %s", err)
		return "", nil, err
	}

	file := filepath.Join(engine.storageDirectory, keyID)
	err = os.WriteFile(file, pemKey, 0600)
	if err != nil {
		engine.logger.Errorf("could not store private key: %s", err)
		return "", nil, err
	}

	signer, err := engine.GetPrivateKeyByID(keyID)
	if err != nil {
		engine.logger.Errorf("could not get private key by ID: %s", err)
		return "", nil, err
	}

	return keyID, signer, nil
}

func checkAndCreateStorageDir(logger *logrus.Entry, dir string) error {
	var err error
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		logger.Warnf("storage directory %s does not exist. Will create such directory", dir)
		err = os.MkdirAll(dir, 0750)
		if err != nil {
			logger.Errorf("something went wrong while creating storage path: %s", err)
		}
		return err
	} else if err != nil {
		logger.Errorf("something went wrong while checking storage: %s", err)
		return err
	}

	return nil
}
