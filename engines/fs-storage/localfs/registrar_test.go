package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	fsstorage "github.com/lamassuiot/rpki-core/core/pkg/engines/fs-storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFSBucket(t *testing.T) {
	Register()
	dir := filepath.Join(t.TempDir(), "repo")

	builder := fsstorage.GetEngineBuilder(config.LocalFilesystem)
	require.NotNil(t, builder)

	bucket, err := builder(logrus.NewEntry(logrus.New()), config.FSStorageConfig{
		ID:     "repo",
		Type:   config.LocalFilesystem,
		Config: map[string]interface{}{"storage_directory": dir},
	})
	require.NoError(t, err)
	defer bucket.Close()

	require.NoError(t, bucket.WriteAll(context.Background(), "ca/abc.mft", []byte("manifest"), nil))

	content, err := os.ReadFile(filepath.Join(dir, "ca", "abc.mft"))
	require.NoError(t, err)
	assert.Equal(t, "manifest", string(content))
}

func TestLocalFSBucketRequiresDirectory(t *testing.T) {
	_, err := NewLocalFSBucket(logrus.NewEntry(logrus.New()), config.FSStorageConfig{Type: config.LocalFilesystem})
	assert.Error(t, err)
}
