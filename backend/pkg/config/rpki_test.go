package config

import (
	"testing"
	"time"

	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadRPKIConfig(t *testing.T) {
	t.Setenv(cconfig.ConfigFileEnvVar, "testdata/rpki-config.yml")

	defaults := DefaultRPKIConfig()
	conf, err := cconfig.LoadConfig[RPKIConfig](&defaults)
	require.NoError(t, err)

	var testcases = []struct {
		name  string
		check func(t *testing.T, conf *RPKIConfig)
	}{
		{
			name: "Storage",
			check: func(t *testing.T, conf *RPKIConfig) {
				assert.Equal(t, cconfig.Postgres, conf.Storage.Provider)
				assert.Equal(t, "db.internal", conf.Storage.Postgres.Hostname)
				assert.Equal(t, cconfig.Password("s3cret"), conf.Storage.Postgres.Password)
			},
		},
		{
			name: "CryptoEngines",
			check: func(t *testing.T, conf *RPKIConfig) {
				assert.Equal(t, "vault-1", conf.CryptoEngineConfig.DefaultEngine)
				assert.Equal(t, models.KeyTypeECDSA, conf.CryptoEngineConfig.KeyType)
				assert.Equal(t, 256, conf.CryptoEngineConfig.KeySize)
				require.Len(t, conf.CryptoEngineConfig.CryptoEngines.CryptoEngines, 1)

				vault, err := cconfig.CryptoEngineConfigAdapter[cconfig.HashicorpVaultSDK]{}.Marshal(conf.CryptoEngineConfig.CryptoEngines.CryptoEngines[0])
				require.NoError(t, err)
				assert.Equal(t, "rpki-keys", vault.Config.MountPath)
				assert.Equal(t, "vault.internal", vault.Config.Hostname)
			},
		},
		{
			name: "EventBus",
			check: func(t *testing.T, conf *RPKIConfig) {
				assert.True(t, conf.PublisherEventBus.Enabled)
				assert.Equal(t, cconfig.Amqp, conf.PublisherEventBus.Provider)

				amqp, err := cconfig.DecodeStruct[cconfig.AMQPConnection](conf.PublisherEventBus.Config)
				require.NoError(t, err)
				assert.Equal(t, "rpki", amqp.Exchange)
			},
		},
		{
			name: "Publication",
			check: func(t *testing.T, conf *RPKIConfig) {
				assert.Equal(t, "rsync://rpki.example.net/repo/", conf.Publication.BaseURI)
				assert.Equal(t, cconfig.LocalFilesystem, conf.Publication.Repository.Type)
				assert.Equal(t, 2*24*time.Hour, conf.Publication.RetentionPeriod.Duration())
				assert.Equal(t, 24*time.Hour, conf.Publication.ManifestValidity)
			},
		},
		{
			name: "DefaultsKeptWhereUnset",
			check: func(t *testing.T, conf *RPKIConfig) {
				assert.Equal(t, 180, conf.KeyRoll.MaxAgeDays)
				assert.Equal(t, 24*time.Hour, conf.KeyRoll.MinStagingTime.Duration())
				assert.Equal(t, 5, conf.Limits.NonHostedPublicKeys)
				assert.Zero(t, conf.Limits.IssuedCertificatesPerSignedKey)
				assert.Equal(t, "*/2 * * * *", conf.Jobs.Publication.Frequency)
				assert.Equal(t, "0 3 * * *", conf.Jobs.KeyRoll.Frequency)
				assert.True(t, conf.Metrics.Enabled)
			},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, conf)
		})
	}
}

func TestPasswordsAreRedacted(t *testing.T) {
	conf := DefaultRPKIConfig()
	conf.Storage.Postgres.Password = "s3cret"

	out, err := yaml.Marshal(conf.Storage.Postgres)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
}
