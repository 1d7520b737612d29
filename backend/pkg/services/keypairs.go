package services

import (
	"context"
	"crypto"
	"crypto/elliptic"
	"fmt"
	"sync"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
)

// KeyPairServiceBackend creates key pair entities and hands out their signers.
// Key material lives in the crypto engines; only the handle is stored with
// the key pair.
type KeyPairServiceBackend struct {
	logger        *logrus.Entry
	cryptoEngines map[string]cryptoengines.CryptoEngine
	defaultEngine string
	keyType       models.KeyType
	keySize       int
	cache         *KeyMaterialCache
	now           func() time.Time
}

type KeyPairServiceBuilder struct {
	Logger          *logrus.Entry
	CryptoEngines   map[string]cryptoengines.CryptoEngine
	DefaultEngineID string
	KeyType         models.KeyType
	KeySize         int
	Clock           func() time.Time
}

func NewKeyPairService(builder KeyPairServiceBuilder) (*KeyPairServiceBackend, error) {
	if _, ok := builder.CryptoEngines[builder.DefaultEngineID]; !ok {
		return nil, fmt.Errorf("%w: default engine %q", errs.ErrCryptoEngineNotFound, builder.DefaultEngineID)
	}

	keyType, keySize := builder.KeyType, builder.KeySize
	if keyType == 0 {
		keyType, keySize = models.KeyTypeRSA, 2048
	}

	clock := builder.Clock
	if clock == nil {
		clock = time.Now
	}

	return &KeyPairServiceBackend{
		logger:        builder.Logger,
		cryptoEngines: builder.CryptoEngines,
		defaultEngine: builder.DefaultEngineID,
		keyType:       keyType,
		keySize:       keySize,
		cache:         NewKeyMaterialCache(builder.Logger, builder.CryptoEngines),
		now:           clock,
	}, nil
}

// CreateKeyPairEntity generates new key material in the default engine and
// returns the NEW key pair describing it. The caller persists it.
func (svc *KeyPairServiceBackend) CreateKeyPairEntity(ctx context.Context, caID uint, name string) (*models.KeyPair, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)
	engine := svc.cryptoEngines[svc.defaultEngine]

	var (
		keyID  string
		signer crypto.Signer
		err    error
	)
	switch svc.keyType {
	case models.KeyTypeECDSA:
		curve := elliptic.P256()
		if svc.keySize == 384 {
			curve = elliptic.P384()
		}
		lFunc.Debugf("creating ECDSA %d key for key pair %s", svc.keySize, name)
		keyID, signer, err = engine.CreateECDSAPrivateKey(curve)
	default:
		lFunc.Debugf("creating RSA %d key for key pair %s", svc.keySize, name)
		keyID, signer, err = engine.CreateRSAPrivateKey(svc.keySize)
	}
	if err != nil {
		lFunc.Errorf("could not create key material for key pair %s: %s", name, err)
		return nil, err
	}

	ski, pubDER, err := chelpers.PublicKeySKI(signer.Public())
	if err != nil {
		lFunc.Errorf("could not compute subject key identifier: %s", err)
		return nil, err
	}

	crlName, err := chelpers.SKIFilename(ski, ".crl")
	if err != nil {
		return nil, err
	}
	mftName, err := chelpers.SKIFilename(ski, ".mft")
	if err != nil {
		return nil, err
	}

	now := svc.now().UTC()
	kp := &models.KeyPair{
		CAID:             caID,
		Name:             name,
		Algorithm:        svc.keyType,
		Size:             svc.keySize,
		EngineID:         svc.defaultEngine,
		KeyID:            keyID,
		PublicKey:        pubDER,
		SubjectKeyID:     ski,
		Status:           models.KeyPairNew,
		StatusHistory:    map[models.KeyPairStatus]time.Time{models.KeyPairNew: now},
		CRLFilename:      crlName,
		ManifestFilename: mftName,
	}

	svc.cache.put(kp, signer)
	lFunc.Infof("created key pair %s with SKI %s in engine %s", name, ski, svc.defaultEngine)

	return kp, nil
}

// Signer returns the private key of the key pair, loading it from its engine
// when it is not cached.
func (svc *KeyPairServiceBackend) Signer(ctx context.Context, kp *models.KeyPair) (crypto.Signer, error) {
	return svc.cache.Get(ctx, kp)
}

// Unload drops the cached key material of the key pair.
func (svc *KeyPairServiceBackend) Unload(kp *models.KeyPair) {
	svc.cache.Unload(kp)
}

// KeyMaterialCache keeps loaded signers by engine and key id. Nothing assumes
// an entry is present: a miss reloads the key from its engine.
type KeyMaterialCache struct {
	logger  *logrus.Entry
	engines map[string]cryptoengines.CryptoEngine

	mu      sync.RWMutex
	signers map[string]crypto.Signer
}

func NewKeyMaterialCache(logger *logrus.Entry, engines map[string]cryptoengines.CryptoEngine) *KeyMaterialCache {
	return &KeyMaterialCache{
		logger:  logger,
		engines: engines,
		signers: map[string]crypto.Signer{},
	}
}

func cacheKey(kp *models.KeyPair) string {
	return kp.EngineID + "/" + kp.KeyID
}

func (c *KeyMaterialCache) Get(ctx context.Context, kp *models.KeyPair) (crypto.Signer, error) {
	c.mu.RLock()
	signer, ok := c.signers[cacheKey(kp)]
	c.mu.RUnlock()
	if ok {
		return signer, nil
	}

	lFunc := chelpers.ConfigureLogger(ctx, c.logger)
	engine, ok := c.engines[kp.EngineID]
	if !ok {
		lFunc.Errorf("key pair %s references unknown engine %s", kp.Name, kp.EngineID)
		return nil, fmt.Errorf("%w: %s", errs.ErrCryptoEngineNotFound, kp.EngineID)
	}

	lFunc.Debugf("loading key material of key pair %s from engine %s", kp.Name, kp.EngineID)
	signer, err := engine.GetPrivateKeyByID(kp.KeyID)
	if err != nil {
		lFunc.Errorf("could not load key material of key pair %s: %s", kp.Name, err)
		return nil, err
	}

	c.put(kp, signer)
	return signer, nil
}

func (c *KeyMaterialCache) put(kp *models.KeyPair, signer crypto.Signer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signers[cacheKey(kp)] = signer
}

func (c *KeyMaterialCache) Unload(kp *models.KeyPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.signers, cacheKey(kp))
}

func (c *KeyMaterialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.signers)
}
