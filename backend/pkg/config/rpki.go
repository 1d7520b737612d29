package config

import (
	"time"

	cconfig "github.com/lamassuiot/rpki-core/core/pkg/config"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
)

type RPKIConfig struct {
	Logs               cconfig.Logging                `mapstructure:"logs"`
	Storage            cconfig.PluggableStorageEngine `mapstructure:"storage"`
	CryptoEngineConfig CryptoEngines                  `mapstructure:"crypto_engines"`
	PublisherEventBus  cconfig.EventBusEngine         `mapstructure:"publisher_event_bus"`
	Publication        Publication                    `mapstructure:"publication"`
	ResourceLookup     ResourceLookup                 `mapstructure:"resource_lookup"`
	Limits             Limits                         `mapstructure:"limits"`
	KeyRoll            KeyRoll                        `mapstructure:"key_roll"`
	Jobs               Jobs                           `mapstructure:"jobs"`
	Metrics            Metrics                        `mapstructure:"metrics"`
}

type CryptoEngines struct {
	cconfig.CryptoEngines `mapstructure:",squash"`
	KeyType               models.KeyType `mapstructure:"key_type"`
	KeySize               int            `mapstructure:"key_size"`
}

type Publication struct {
	BaseURI          string                  `mapstructure:"base_uri"`
	NotifyURI        string                  `mapstructure:"notify_uri"`
	Repository       cconfig.FSStorageConfig `mapstructure:"repository"`
	ManifestValidity time.Duration           `mapstructure:"manifest_validity"`
	RetentionPeriod  models.TimeDuration     `mapstructure:"retention_period"`
	// PublishOnEvents runs a publication whenever a command changes repository
	// content. It needs the publisher event bus.
	PublishOnEvents  bool                    `mapstructure:"publish_on_events"`
}

type ResourceLookup struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// Limits left at zero keep the built-in limit.
type Limits struct {
	IssuedCertificatesPerSignedKey int `mapstructure:"issued_certificates_per_signed_key"`
	NonHostedPublicKeys            int `mapstructure:"non_hosted_public_keys"`
	CertificatesPerNonHostedKey    int `mapstructure:"certificates_per_non_hosted_key"`
}

type KeyRoll struct {
	MaxAgeDays     int           `mapstructure:"max_age_days"`
	MinStagingTime models.TimeDuration `mapstructure:"min_staging_time"`
}

type Jobs struct {
	Reconciliation cconfig.MonitoringJob `mapstructure:"reconciliation"`
	KeyRoll        cconfig.MonitoringJob `mapstructure:"key_roll"`
	Expiry         cconfig.MonitoringJob `mapstructure:"expiry"`
	Publication    cconfig.MonitoringJob `mapstructure:"publication"`
}

type Metrics struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

func DefaultRPKIConfig() RPKIConfig {
	return RPKIConfig{
		Logs: cconfig.Logging{Level: cconfig.Info},
		Storage: cconfig.PluggableStorageEngine{
			LogLevel: cconfig.Info,
			Provider: cconfig.SQLite,
			SQLite:   cconfig.SQLitePSEConfig{DatabasePath: "/var/lib/rpki/rpki.db"},
		},
		CryptoEngineConfig: CryptoEngines{
			KeyType: models.KeyTypeRSA,
			KeySize: 2048,
		},
		PublisherEventBus: cconfig.EventBusEngine{
			Enabled:  false,
			Provider: cconfig.Channel,
		},
		Publication: Publication{
			ManifestValidity: 24 * time.Hour,
			RetentionPeriod:  models.TimeDuration(7 * 24 * time.Hour),
		},
		KeyRoll: KeyRoll{
			MaxAgeDays:     365,
			MinStagingTime: models.TimeDuration(24 * time.Hour),
		},
		Jobs: Jobs{
			Reconciliation: cconfig.MonitoringJob{Enabled: true, Frequency: "*/10 * * * *"},
			KeyRoll:        cconfig.MonitoringJob{Enabled: true, Frequency: "0 3 * * *"},
			Expiry:         cconfig.MonitoringJob{Enabled: true, Frequency: "0 * * * *"},
			Publication:    cconfig.MonitoringJob{Enabled: true, Frequency: "*/5 * * * *"},
		},
		Metrics: Metrics{
			Enabled:       true,
			ListenAddress: ":9090",
		},
	}
}
