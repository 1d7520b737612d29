package software

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *SoftwareCryptoEngine {
	return NewSoftwareCryptoEngine(logrus.StandardLogger().WithField("test", t.Name()))
}

func TestParsePrivateKeyFormats(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	testcases := []struct {
		name  string
		block func(t *testing.T) *pem.Block
	}{
		{
			name: "RSAInPKCS1",
			block: func(t *testing.T) *pem.Block {
				return &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)}
			},
		},
		{
			name: "RSAInPKCS8",
			block: func(t *testing.T) *pem.Block {
				der, err := x509.MarshalPKCS8PrivateKey(rsaKey)
				require.NoError(t, err)
				return &pem.Block{Type: "PRIVATE KEY", Bytes: der}
			},
		},
		{
			name: "ECDSAInPKCS8",
			block: func(t *testing.T) *pem.Block {
				der, err := x509.MarshalPKCS8PrivateKey(ecKey)
				require.NoError(t, err)
				return &pem.Block{Type: "PRIVATE KEY", Bytes: der}
			},
		},
		{
			name: "ECDSAInSec1",
			block: func(t *testing.T) *pem.Block {
				der, err := x509.MarshalECPrivateKey(ecKey)
				require.NoError(t, err)
				return &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestEngine(t).ParsePrivateKey(pem.EncodeToMemory(tc.block(t)))
			assert.NoError(t, err)
		})
	}
}

func TestParsePrivateKeyGarbage(t *testing.T) {
	_, err := newTestEngine(t).ParsePrivateKey([]byte("not a pem"))
	assert.Error(t, err)
}

func TestMarshalAndEncodeRoundTrip(t *testing.T) {
	engine := newTestEngine(t)

	keyID, key, err := engine.CreateRSAPrivateKey(2048)
	require.NoError(t, err)
	assert.Len(t, keyID, 64)

	encoded, err := engine.MarshalAndEncodePKIXPrivateKey(key)
	require.NoError(t, err)

	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	parsed, err := engine.ParsePrivateKey(pemBytes)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed.Public()))
}
