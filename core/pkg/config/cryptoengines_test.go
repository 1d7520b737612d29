package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoEngineConfigAdapter(t *testing.T) {
	ce := CryptoEngineConfig{
		ID:       "fs-1",
		Metadata: map[string]interface{}{"purpose": "rpki"},
		Type:     FilesystemProvider,
		Config:   map[string]interface{}{"storage_directory": "/var/lib/rpki/keys"},
	}

	adapter, err := CryptoEngineConfigAdapter[FilesystemCryptoEngineConfig]{}.Marshal(ce)
	require.NoError(t, err)
	assert.Equal(t, "fs-1", adapter.ID)
	assert.Equal(t, FilesystemProvider, adapter.Type)
	assert.Equal(t, "/var/lib/rpki/keys", adapter.Config.StorageDirectory)

	back, err := adapter.Unmarshal()
	require.NoError(t, err)
	assert.Equal(t, ce.ID, back.ID)
	assert.Equal(t, ce.Metadata, back.Metadata)
	assert.Equal(t, "/var/lib/rpki/keys", back.Config["storage_directory"])
}

func TestCryptoEngineConfigAdapterInvalidConfig(t *testing.T) {
	ce := CryptoEngineConfig{
		ID:     "vault-1",
		Type:   HashicorpVaultProvider,
		Config: map[string]interface{}{"port": "not a number"},
	}

	_, err := CryptoEngineConfigAdapter[HashicorpVaultSDK]{}.Marshal(ce)
	assert.Error(t, err)
}
