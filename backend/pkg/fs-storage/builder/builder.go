package builder

import (
	"fmt"

	"github.com/lamassuiot/rpki-core/core/pkg/config"
	fsstorage "github.com/lamassuiot/rpki-core/core/pkg/engines/fs-storage"
	"github.com/lamassuiot/rpki-core/engines/fs-storage/localfs"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// BuildFSStorageEngine opens the bucket the repository is published to.
func BuildFSStorageEngine(logger *logrus.Entry, conf config.FSStorageConfig) (*blob.Bucket, error) {
	builder := fsstorage.GetEngineBuilder(config.FSStorageProvider(conf.Type))
	if builder == nil {
		return nil, fmt.Errorf("no filesystem storage engine of type %s", conf.Type)
	}

	return builder(logger, conf)
}

func init() {
	localfs.Register()
}
