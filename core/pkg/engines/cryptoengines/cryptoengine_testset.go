package cryptoengines

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func SharedTestCreateRSAPrivateKey(t *testing.T, engine CryptoEngine) {
	keyID, signer, err := engine.CreateRSAPrivateKey(2048)
	require.NoError(t, err)

	signer2, err := engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)

	assert.Equal(t, signer.Public(), signer2.Public())

	expectedID, err := GetKeyID(signer.Public())
	require.NoError(t, err)
	assert.Equal(t, expectedID, keyID)
}

func SharedTestCreateECDSAPrivateKey(t *testing.T, engine CryptoEngine) {
	keyID, signer, err := engine.CreateECDSAPrivateKey(elliptic.P256())
	require.NoError(t, err)

	signer2, err := engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)

	assert.Equal(t, signer.Public(), signer2.Public())
}

func SharedTestDeleteKey(t *testing.T, engine CryptoEngine) {
	keyID, _, err := engine.CreateECDSAPrivateKey(elliptic.P256())
	require.NoError(t, err)

	_, err = engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)

	err = engine.DeleteKey(keyID)
	require.NoError(t, err)

	_, err = engine.GetPrivateKeyByID(keyID)
	assert.Error(t, err)
}

func SharedListKeys(t *testing.T, engine CryptoEngine) {
	keys, err := engine.ListPrivateKeyIDs()
	require.NoError(t, err)
	assert.Len(t, keys, 0)

	keyID1, _, err := engine.CreateECDSAPrivateKey(elliptic.P256())
	require.NoError(t, err)

	keyID2, _, err := engine.CreateECDSAPrivateKey(elliptic.P256())
	require.NoError(t, err)

	keys, err = engine.ListPrivateKeyIDs()
	require.NoError(t, err)

	assert.Contains(t, keys, keyID1)
	assert.Contains(t, keys, keyID2)
	assert.Len(t, keys, 2)
}

func SharedGetKeyNotFound(t *testing.T, engine CryptoEngine) {
	_, err := engine.GetPrivateKeyByID("non-existing-key")
	assert.Error(t, err)
}

func SharedTestRSAPKCS1v15Signature(t *testing.T, engine CryptoEngine) {
	keyID, signer, err := engine.CreateRSAPrivateKey(2048)
	require.NoError(t, err)

	h := sha256.Sum256([]byte("rpki manifest"))
	signature, err := signer.Sign(rand.Reader, h[:], crypto.SHA256)
	require.NoError(t, err)

	loaded, err := engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)

	err = rsa.VerifyPKCS1v15(loaded.Public().(*rsa.PublicKey), crypto.SHA256, h[:], signature)
	assert.NoError(t, err)
}

func SharedTestImportRSAPrivateKey(t *testing.T, engine CryptoEngine) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyID, signer, err := engine.ImportRSAPrivateKey(key)
	require.NoError(t, err)
	assert.Equal(t, &key.PublicKey, signer.Public())

	loaded, err := engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(loaded.Public()))
}

func SharedTestImportECDSAPrivateKey(t *testing.T, engine CryptoEngine) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	keyID, _, err := engine.ImportECDSAPrivateKey(key)
	require.NoError(t, err)

	loaded, err := engine.GetPrivateKeyByID(keyID)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(loaded.Public()))
}
