package config

type EventBusEngine struct {
	LogLevel LogLevel               `mapstructure:"log_level"`
	Enabled  bool                   `mapstructure:"enabled"`
	Provider EventBusProvider       `mapstructure:"provider"`
	Config   map[string]interface{} `mapstructure:",remain"`
}

type EventBusProvider string

const (
	Amqp    EventBusProvider = "amqp"
	Channel EventBusProvider = "channel"
)

type AMQPConnection struct {
	BasicConnection `mapstructure:",squash"`
	Exchange        string                  `mapstructure:"exchange"`
	Protocol        AMQPProtocol            `mapstructure:"protocol"`
	BasicAuth       AMQPConnectionBasicAuth `mapstructure:"basic_auth"`
	ClientTLSAuth   AMQPClientTLSAuth       `mapstructure:"client_tls_auth"`
}

type AMQPConnectionBasicAuth struct {
	Enabled  bool     `mapstructure:"enabled"`
	Username string   `mapstructure:"username"`
	Password Password `mapstructure:"password"`
}

type AMQPClientTLSAuth struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type AMQPProtocol string

const (
	AMQP  AMQPProtocol = "amqp"
	AMQPS AMQPProtocol = "amqps"
)
