package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lamassuiot/rpki-core/backend/pkg/assemblers"
	"github.com/lamassuiot/rpki-core/backend/pkg/config"
	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/helpers"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	version   string = "v0"    // api version
	sha1ver   string = "-"     // sha1 revision used to build the program
	buildTime string = "devTS" // when the executable was built
)

func main() {
	log.SetFormatter(helpers.LogFormatter)
	log.Infof("starting rpki ca: version=%s buildTime=%s sha1ver=%s", version, buildTime, sha1ver)

	defaults := config.DefaultRPKIConfig()
	conf, err := cconfig.LoadConfig[config.RPKIConfig](&defaults)
	if err != nil {
		log.Fatalf("something went wrong while loading config. Exiting: %s", err)
	}

	globalLogLevel, err := log.ParseLevel(string(conf.Logs.Level))
	if err != nil {
		log.Warn("unknown log level. defaulting to 'info' log level")
		globalLogLevel = log.InfoLevel
	}
	log.SetLevel(globalLogLevel)

	log.Infof("global log level set to '%s'", globalLogLevel)

	confBytes, err := yaml.Marshal(conf)
	if err != nil {
		log.Fatalf("could not dump yaml config: %s", err)
	}

	log.Debugf("===================================================")
	log.Debugf("%s", confBytes)
	log.Debugf("===================================================")

	svc, port, err := assemblers.AssembleRPKIServiceWithMetricsServer(*conf)
	if err != nil {
		log.Fatalf("could not run RPKI CA. Exiting: %s", err)
	}
	if port > 0 {
		log.Infof("metrics server listening on port %d", port)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Infof("received %s. stopping scheduled jobs", sig)
	if err := svc.Close(); err != nil {
		log.Errorf("could not close RPKI CA cleanly: %s", err)
	}
}
