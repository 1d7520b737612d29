package main

import (
	"fmt"
	"os"

	"github.com/lamassuiot/rpki-core/backend/pkg/assemblers"
	"github.com/lamassuiot/rpki-core/backend/pkg/config"
	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	svc        *assemblers.RPKIService
)

// rootCmd assembles the engine once per invocation. Scheduled jobs and the
// metrics server are left to the rpki-ca daemon.
var rootCmd = &cobra.Command{
	Use:   "rpkictl",
	Short: "Operate the RPKI CA engine",
	Long: `Operate the RPKI CA engine against its configured storage, crypto engines and
repository.

Examples:
  # Create the All Resources CA and a Root CA below it
  rpkictl ca create-aca "CN=ACA"
  rpkictl ca create "CN=Root" --type root --parent "CN=ACA"

  # Certify every CA and publish the repository
  rpkictl job run reconciliation
  rpkictl job run publication`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv(cconfig.ConfigFileEnvVar, configFile); err != nil {
				return err
			}
		}

		defaults := config.DefaultRPKIConfig()
		conf, err := cconfig.LoadConfig[config.RPKIConfig](&defaults)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}

		conf.Metrics.Enabled = false
		conf.Jobs.Reconciliation.Enabled = false
		conf.Jobs.KeyRoll.Enabled = false
		conf.Jobs.Expiry.Enabled = false
		conf.Jobs.Publication.Enabled = false

		svc, err = assemblers.AssembleRPKIService(*conf)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if svc == nil {
			return nil
		}
		return svc.Close()
	},
}

func main() {
	log.SetFormatter(chelpers.LogFormatter)
	log.SetLevel(log.WarnLevel)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (defaults to $"+cconfig.ConfigFileEnvVar+" or "+cconfig.DefaultConfigPath+")")
	rootCmd.AddCommand(caCmd, keysCmd, jobCmd, publishCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
