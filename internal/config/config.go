package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workbook   WorkbookConfig   `yaml:"workbook" mapstructure:"workbook"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	Sweep      SweepConfig      `yaml:"sweep" mapstructure:"sweep"`
	Devices    DevicesConfig    `yaml:"devices" mapstructure:"devices"`
	MQTT       MQTTConfig       `yaml:"mqtt" mapstructure:"mqtt"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// WorkbookConfig locates the spreadsheet and its sheets.
type WorkbookConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	LogsSheet      string `yaml:"logs_sheet" mapstructure:"logs_sheet"`
	ReferenceSheet string `yaml:"reference_sheet" mapstructure:"reference_sheet"`
}

// LockConfig selects the mutual-exclusion backend shared by sweeps and resolves.
type LockConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres
	Name         string `yaml:"name" mapstructure:"name"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	LeaseTTLSecs int    `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
}

// Timeout returns the lock wait bound.
func (c LockConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// StoreConfig configures the sweep history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MailConfig configures notification delivery.
type MailConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"` // smtp or log
	Host        string      `yaml:"host" mapstructure:"host"`
	Port        int         `yaml:"port" mapstructure:"port"`
	Username    string      `yaml:"username" mapstructure:"username"`
	Password    string      `yaml:"password" mapstructure:"password"`
	TLS         string      `yaml:"tls" mapstructure:"tls"` // mandatory, opportunistic, none
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FromName    string      `yaml:"from_name" mapstructure:"from_name"`
	FromAddress string      `yaml:"from_address" mapstructure:"from_address"`
	Recipient   string      `yaml:"recipient" mapstructure:"recipient"`
	TemplateDir string      `yaml:"template_dir" mapstructure:"template_dir"`
	RatePerSec  float64     `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries  int         `yaml:"max_retries" mapstructure:"max_retries"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig controls in-sweep retries of transient send failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// SweepConfig configures the scheduler in serve mode.
type SweepConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// Interval returns the scheduler period. Zero disables scheduled sweeps.
func (c SweepConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// DevicesConfig points at the device registry used by the activity guard.
type DevicesConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// MQTTConfig is the printer broker used by the watch command.
type MQTTConfig struct {
	Broker      string `yaml:"broker" mapstructure:"broker"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures sweep-health alerting in serve mode.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DeadLetterThreshold  int     `yaml:"dead_letter_threshold" mapstructure:"dead_letter_threshold"`
	StaleAfterMins       int     `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads ./config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the named YAML file, or ./config.yaml when path is empty,
// and overlays PRINTLOG_* environment variables. An explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PRINTLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workbook.path", "printlog.xlsx")
	v.SetDefault("workbook.logs_sheet", "Logs")
	v.SetDefault("workbook.reference_sheet", "Authorized People")
	v.SetDefault("lock.driver", "sqlite")
	v.SetDefault("lock.name", "printlog-sweep")
	v.SetDefault("lock.timeout_secs", 30)
	v.SetDefault("lock.database_url", "printlog.db")
	v.SetDefault("lock.lease_ttl_secs", 600)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "printlog.db")
	v.SetDefault("mail.driver", "smtp")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.tls", "mandatory")
	v.SetDefault("mail.timeout_secs", 15)
	v.SetDefault("mail.from_name", "Organization 3D Printer")
	v.SetDefault("mail.rate_per_sec", 2.0)
	v.SetDefault("mail.max_retries", 3)
	v.SetDefault("mail.retry.max_attempts", 3)
	v.SetDefault("mail.retry.initial_backoff_ms", 500)
	v.SetDefault("mail.retry.max_backoff_ms", 5000)
	v.SetDefault("sweep.interval_secs", 300)
	v.SetDefault("devices.path", "")
	v.SetDefault("devices.timezone", "Local")
	v.SetDefault("mqtt.broker", "tls://us.mqtt.bambulab.com:8883")
	v.SetDefault("mqtt.client_id", "printlog-guard")
	v.SetDefault("mqtt.timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dead_letter_threshold", 5)
	v.SetDefault("monitoring.stale_after_mins", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrapf(err, "config: read %s", v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "sweep",
// "resolve", "read", "history", "retry", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	workbook := func() {
		if c.Workbook.Path == "" {
			add("workbook.path is required")
		}
		if c.Workbook.LogsSheet == "" {
			add("workbook.logs_sheet is required")
		}
	}
	locking := func() {
		switch c.Lock.Driver {
		case "memory":
		case "sqlite", "postgres":
			if c.Lock.DatabaseURL == "" {
				add("lock.database_url is required for %s locks", c.Lock.Driver)
			}
		default:
			add("lock.driver must be memory, sqlite or postgres, got %q", c.Lock.Driver)
		}
		if c.Lock.TimeoutSecs <= 0 {
			add("lock.timeout_secs must be > 0")
		}
	}
	history := func() {
		if c.Store.Driver != "sqlite" {
			add("store.driver must be sqlite, got %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	}
	mail := func() {
		switch c.Mail.Driver {
		case "log":
		case "smtp":
			if c.Mail.Host == "" {
				add("mail.host is required for smtp")
			}
			if c.Mail.Port <= 0 {
				add("mail.port must be > 0")
			}
			if c.Mail.FromAddress == "" {
				add("mail.from_address is required for smtp")
			}
			switch c.Mail.TLS {
			case "mandatory", "opportunistic", "none":
			default:
				add("mail.tls must be mandatory, opportunistic or none, got %q", c.Mail.TLS)
			}
		default:
			add("mail.driver must be smtp or log, got %q", c.Mail.Driver)
		}
		if c.Mail.Recipient == "" {
			add("mail.recipient is required")
		}
		if c.Mail.RatePerSec < 0 {
			add("mail.rate_per_sec must be >= 0")
		}
	}

	switch mode {
	case "sweep":
		workbook()
		locking()
		history()
		mail()
	case "resolve":
		workbook()
		locking()
	case "read":
		workbook()
	case "watch":
		workbook()
		if c.Devices.Path == "" {
			add("devices.path is required to know which printers to watch")
		}
		if c.MQTT.Broker == "" {
			add("mqtt.broker is required")
		}
		if c.MQTT.Username == "" || c.MQTT.Password == "" {
			add("mqtt.username and mqtt.password are required")
		}
	case "history":
		history()
	case "retry":
		history()
		mail()
	case "serve":
		workbook()
		locking()
		history()
		mail()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Sweep.IntervalSecs < 0 {
			add("sweep.interval_secs must be >= 0")
		}
		if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
			add("monitoring.failure_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
