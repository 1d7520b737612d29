package builder

import (
	"fmt"

	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/engines/cryptoengines"
	"github.com/lamassuiot/rpki-core/engines/crypto/filesystem"
	log "github.com/sirupsen/logrus"
)

func BuildCryptoEngine(logger *log.Entry, conf cconfig.CryptoEngineConfig) (cryptoengines.CryptoEngine, error) {
	builder := cryptoengines.GetEngineBuilder(cconfig.CryptoEngineProvider(conf.Type))
	if builder == nil {
		return nil, fmt.Errorf("no crypto engine of type %s", conf.Type)
	}
	return builder(logger, conf)
}

// BuildCryptoEngines builds every configured engine keyed by its id. The
// default engine must be one of them.
func BuildCryptoEngines(logger *log.Entry, conf cconfig.CryptoEngines) (map[string]cryptoengines.CryptoEngine, error) {
	engines := map[string]cryptoengines.CryptoEngine{}
	for _, ceConf := range conf.CryptoEngines {
		if _, ok := engines[ceConf.ID]; ok {
			return nil, fmt.Errorf("duplicate crypto engine id %s", ceConf.ID)
		}

		engine, err := BuildCryptoEngine(logger.WithField("engine", ceConf.ID), ceConf)
		if err != nil {
			logger.Errorf("could not build crypto engine %s: %s", ceConf.ID, err)
			return nil, err
		}
		engines[ceConf.ID] = engine
	}

	if _, ok := engines[conf.DefaultEngine]; !ok {
		return nil, fmt.Errorf("default crypto engine %s is not configured", conf.DefaultEngine)
	}

	return engines, nil
}

func init() {
	filesystem.Register()
}
