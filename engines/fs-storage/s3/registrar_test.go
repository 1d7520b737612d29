package s3

import (
	"context"
	"testing"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	fsstorage "github.com/lamassuiot/rpki-core/core/pkg/engines/fs-storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAwsSdkConfigStatic(t *testing.T) {
	cfg, err := GetAwsSdkConfig(config.AWSSDKConfig{
		AWSAuthenticationMethod: config.Static,
		AccessKeyID:             "AKIDEXAMPLE",
		SecretAccessKey:         "secret",
		Region:                  "eu-west-1",
		EndpointURL:             "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

func TestRegisterS3(t *testing.T) {
	Register()

	builder := fsstorage.GetEngineBuilder(config.AWSS3)
	require.NotNil(t, builder)

	bucket, err := builder(logrus.NewEntry(logrus.New()), config.FSStorageConfig{
		ID:   "repo",
		Type: config.AWSS3,
		Config: map[string]interface{}{
			"auth_method":       "static",
			"access_key_id":     "AKIDEXAMPLE",
			"secret_access_key": "secret",
			"region":            "eu-west-1",
			"endpoint_url":      "http://localhost:4566",
			"bucket_name":       "rpki-repository",
		},
	})
	require.NoError(t, err)
	assert.NoError(t, bucket.Close())
}
