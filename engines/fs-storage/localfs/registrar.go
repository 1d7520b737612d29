package localfs

import (
	"context"
	"fmt"
	"os"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	fsstorage "github.com/lamassuiot/rpki-core/core/pkg/engines/fs-storage"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
)

func Register() {
	fsstorage.RegisterFSStorageEngine(config.LocalFilesystem, NewLocalFSBucket)
}

func NewLocalFSBucket(logger *log.Entry, conf config.FSStorageConfig) (*blob.Bucket, error) {
	engineConfig, err := config.FSStorageConfigAdapter[config.LocalFSConfig]{}.Marshal(conf)
	if err != nil {
		return nil, err
	}

	dir := engineConfig.Config.StorageDirectory
	if dir == "" {
		return nil, fmt.Errorf("local repository storage requires a storage_directory")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		logger.Errorf("could not create repository directory %s: %s", dir, err)
		return nil, err
	}

	uri := fmt.Sprintf("file://%s?no_tmp_dir=1", dir)
	bucket, err := blob.OpenBucket(context.Background(), uri)
	if err != nil {
		logger.Errorf("could not open repository bucket %s: %s", uri, err)
		return nil, err
	}

	logger.Debugf("repository bucket opened at %s", dir)
	return bucket, nil
}
