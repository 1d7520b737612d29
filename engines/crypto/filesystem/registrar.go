package filesystem

import (
	"github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	log "github.com/sirupsen/logrus"
)

func Register() {
	cryptoengines.RegisterCryptoEngine(config.FilesystemProvider, func(logger *log.Entry, conf config.CryptoEngineConfig) (cryptoengines.CryptoEngine, error) {
		ceConfig, err := config.CryptoEngineConfigAdapter[config.FilesystemCryptoEngineConfig]{}.Marshal(conf)
		if err != nil {
			return nil, err
		}

		return NewFilesystemPEMEngine(logger, *ceConfig)
	})
}
