package fsstorage

import (
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// FSStorageBuilder opens the bucket published repository objects are written to.
type FSStorageBuilder func(*logrus.Entry, config.FSStorageConfig) (*blob.Bucket, error)

var fsStorageBuilders = make(map[config.FSStorageProvider]FSStorageBuilder)

func RegisterFSStorageEngine(name config.FSStorageProvider, builder FSStorageBuilder) {
	fsStorageBuilders[name] = builder
}

func GetEngineBuilder(name config.FSStorageProvider) FSStorageBuilder {
	return fsStorageBuilders[name]
}
