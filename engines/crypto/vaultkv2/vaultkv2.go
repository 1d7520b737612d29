package vaultkv2

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/vault/api"
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/lamassuiot/rpki-core/engines/crypto/software"
	"github.com/sirupsen/logrus"
)

type VaultKV2Engine struct {
	softCryptoEngine *software.SoftwareCryptoEngine
	kvv2Client       *api.KVv2
	mountPath        string
	vaultClient      *api.Client
	logger           *logrus.Entry
	id               string
	metadata         map[string]interface{}
}

func NewVaultKV2Engine(logger *logrus.Entry, conf config.CryptoEngineConfigAdapter[config.HashicorpVaultSDK]) (cryptoengines.CryptoEngine, error) {
	var err error
	lVault := logger.WithField("subsystem-provider", "Vault-KV2")
	address := fmt.Sprintf("%s://%s:%d", conf.Config.Protocol, conf.Config.Hostname, conf.Config.Port)

	lVault.Debugf("configuring VaultKV2 Engine")

	vaultClientConf := api.DefaultConfig()
	httpClient, err := helpers.BuildHTTPClientWithTLSOptions(&http.Client{}, conf.Config.TLSConfig)
	if err != nil {
		return nil, err
	}

	httpClient, err = helpers.BuildHTTPClientWithTracerLogger(httpClient, lVault)
	if err != nil {
		return nil, err
	}

	vaultClientConf.HttpClient = httpClient
	vaultClientConf.Address = address
	vaultClient, err := api.NewClient(vaultClientConf)
	if err != nil {
		lVault.Errorf("could not create Vault API client: %s", err)
		return nil, errors.New("could not create Vault API client: " + err.Error())
	}

	if conf.Config.AutoUnsealEnabled {
		err = Unseal(vaultClient, conf.Config.AutoUnsealKeys, lVault)
		if err != nil {
			lVault.Errorf("could not unseal Vault: %s", err)
			return nil, errors.New("could not unseal Vault: " + err.Error())
		}
	}

	err = Login(vaultClient, conf.Config.RoleID, string(conf.Config.SecretID))
	if err != nil {
		lVault.Errorf("could not login into Vault: %s", err)
		return nil, errors.New("could not login into Vault: " + err.Error())
	}

	mounts, err := vaultClient.Sys().ListMounts()
	if err != nil {
		return nil, err
	}

	// listed mount paths carry a trailing slash
	if _, hasMount := mounts[conf.Config.MountPath+"/"]; !hasMount {
		lVault.Infof("mounting kv-v2 secrets engine at %s", conf.Config.MountPath)
		err = vaultClient.Sys().Mount(conf.Config.MountPath, &api.MountInput{
			Type: "kv-v2",
		})
		if err != nil {
			return nil, err
		}
	}

	metadata := map[string]interface{}{}
	for k, v := range conf.Metadata {
		metadata[k] = v
	}

	return &VaultKV2Engine{
		logger:           lVault,
		softCryptoEngine: software.NewSoftwareCryptoEngine(lVault),
		mountPath:        conf.Config.MountPath,
		vaultClient:      vaultClient,
		kvv2Client:       vaultClient.KVv2(conf.Config.MountPath),
		id:               conf.ID,
		metadata:         metadata,
	}, nil
}

func (engine *VaultKV2Engine) GetEngineConfig() cryptoengines.CryptoEngineInfo {
	return cryptoengines.CryptoEngineInfo{
		ID:       engine.id,
		Type:     config.HashicorpVaultProvider,
		Provider: "Hashicorp",
		Name:     "Key Value - V2",
		Metadata: engine.metadata,
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
	}
}

func (engine *VaultKV2Engine) GetPrivateKeyByID(keyID string) (crypto.Signer, error) {
	engine.logger.Debugf("requesting private key with ID [%s]", keyID)
	key, err := engine.kvv2Client.Get(context.Background(), keyID)
	if err != nil {
		engine.logger.Errorf("could not get private key: %s", err)
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", errs.ErrKeyNotFound, keyID)
		}
		return nil, errors.New("could not get private key")
	}
	engine.logger.Debugf("successfully retrieved private key")

	var b64Key string
	mapValue, ok := key.Data["key"]
	if !ok {
		return nil, fmt.Errorf("'key' not found in secret")
	}

	if b64Key, ok = mapValue.(string); !ok {
		return nil, fmt.Errorf("'key' not in string format")
	}

	pemBytes, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, err
	}

	return engine.softCryptoEngine.ParsePrivateKey(pemBytes)
}

func (engine *VaultKV2Engine) ListPrivateKeyIDs() ([]string, error) {
	engine.logger.Debugf("listing private keys")

	resp, err := engine.vaultClient.Logical().List(fmt.Sprintf("%s/metadata", engine.mountPath))
	if err != nil {
		return nil, fmt.Errorf("error making request to vault: %w", err)
	}

	if resp == nil {
		return []string{}, nil
	}

	if resp.Data == nil {
		return nil, errors.New("no data in response from vault")
	}

	rawKeys, ok := resp.Data["keys"].([]any)
	if !ok {
		return nil, errors.New("no keys in response from vault")
	}

	keys := make([]string, 0, len(rawKeys))
	for _, key := range rawKeys {
		if s, ok := key.(string); ok {
			keys = append(keys, s)
		}
	}

	engine.logger.Debugf("successfully retrieved %d private keys", len(keys))
	return keys, nil
}

func (engine *VaultKV2Engine) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	engine.logger.Debugf("creating RSA private key")

	_, key, err := engine.softCryptoEngine.CreateRSAPrivateKey(keySize)
	if err != nil {
		engine.logger.Errorf("could not create RSA private key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("RSA key successfully generated")
	return engine.importKey(key)
}

func (engine *VaultKV2Engine) CreateECDSAPrivateKey(c elliptic.Curve) (string, crypto.Signer, error) {
	engine.logger.Debugf("creating ECDSA private key")

	_, key, err := engine.softCryptoEngine.CreateECDSAPrivateKey(c)
	if err != nil {
		engine.logger.Errorf("could not create ECDSA private key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("ECDSA key successfully generated")
	return engine.importKey(key)
}

func (engine *VaultKV2Engine) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	engine.logger.Debugf("importing RSA private key")

	keyID, signer, err := engine.importKey(key)
	if err != nil {
		engine.logger.Errorf("could not import RSA key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("RSA key successfully imported")
	return keyID, signer, nil
}

func (engine *VaultKV2Engine) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	engine.logger.Debugf("importing ECDSA private key")

	keyID, signer, err := engine.importKey(key)
	if err != nil {
		engine.logger.Errorf("could not import ECDSA key: %s", err)
		return "", nil, err
	}

	engine.logger.Debugf("ECDSA key successfully imported")
	return keyID, signer, nil
}

func (engine *VaultKV2Engine) importKey(key any) (string, crypto.Signer, error) {
	pubKey, err := software.PublicKeyOf(key)
	if err != nil {
		return "", nil, err
	}

	keyID, err := engine.softCryptoEngine.EncodePKIXPublicKeyDigest(pubKey)
	if err != nil {
		engine.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	b64PemKey, err := engine.softCryptoEngine.MarshalAndEncodePKIXPrivateKey(key)
	if err != nil {
		engine.logger.Errorf("could not marshal and encode private key: %s", err)
		return "", nil, err
	}

	var keyMap = map[string]interface{}{
		"key": b64PemKey,
	}

	_, err = engine.kvv2Client.Put(context.Background(), keyID, keyMap)
	if err != nil {
		engine.logger.Errorf("could not save the private key in vault: %s", err)
		return "", nil, err
	}

	signer, err := engine.GetPrivateKeyByID(keyID)
	if err != nil {
		engine.logger.Errorf("could not retrieve the private key from vault: %s", err)
		return "", nil, err
	}

	return keyID, signer, nil
}

func (engine *VaultKV2Engine) DeleteKey(keyID string) error {
	return engine.kvv2Client.DeleteMetadata(context.Background(), keyID)
}

func Unseal(client *api.Client, unsealKeys []config.Password, logger *logrus.Entry) error {
	for providedSharesCount := 0; ; providedSharesCount++ {
		if providedSharesCount >= len(unsealKeys) {
			return fmt.Errorf("vault still sealed after %d unseal keys", len(unsealKeys))
		}

		unsealStatusProgress, err := client.Sys().Unseal(string(unsealKeys[providedSharesCount]))
		if err != nil {
			logger.Error("Error while unsealing vault: ", err)
			return err
		}
		logger.Info("Unseal progress shares=" + strconv.Itoa(unsealStatusProgress.N) + " threshold=" + strconv.Itoa(unsealStatusProgress.T) + " remaining_shares=" + strconv.Itoa(unsealStatusProgress.Progress))

		if !unsealStatusProgress.Sealed {
			logger.Info("Vault is unsealed")
			return nil
		}
	}
}

func Login(client *api.Client, roleID string, secretID string) error {
	loginPath := "auth/approle/login"
	options := map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	}
	resp, err := client.Logical().Write(loginPath, options)
	if err != nil {
		return err
	}
	if resp == nil || resp.Auth == nil {
		return errors.New("approle login returned no auth information")
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}
