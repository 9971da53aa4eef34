package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
)

const DefaultConfigPath = "config/default.yaml"

type Config struct {
	Queue                QueueConfig                   `mapstructure:"queue"`
	AWS                  AWSConfig                     `mapstructure:"aws"`
	Runner               RunnerConfig                  `mapstructure:"runner"`
	DaysToKeepTestResult int                           `mapstructure:"days_to_keep_test_result"`
	Notifications        map[string]NotificationConfig `mapstructure:"notifications"`
	Metrics              MetricsConfig                 `mapstructure:"metrics"`
	Telemetry            TelemetryConfig               `mapstructure:"telemetry"`
	Debug                DebugConfig                   `mapstructure:"debug"`
}

type QueueConfig struct {
	Backend string `mapstructure:"backend"`
	Name    string `mapstructure:"name"`
	// URL is the broker address for the amqp backend.
	URL string `mapstructure:"url"`
}

type AWSConfig struct {
	Region         string         `mapstructure:"region"`
	Endpoint       string         `mapstructure:"endpoint"`
	ForcePathStyle bool           `mapstructure:"force_path_style"`
	TestResultPath TestResultPath `mapstructure:"test_result_path"`
}

type TestResultPath struct {
	Bucket string `mapstructure:"bucket"`
	Key    string `mapstructure:"key"`
}

type RunnerConfig struct {
	Mode             string        `mapstructure:"mode"`
	Binary           string        `mapstructure:"binary"`
	IridiumPath      string        `mapstructure:"iridium_path"`
	LaunchParameters []string      `mapstructure:"launch_parameters"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	Docker           DockerConfig  `mapstructure:"docker"`
}

type DockerConfig struct {
	Image       string `mapstructure:"image"`
	MemoryLimit int64  `mapstructure:"memory_limit"`
}

// NotificationConfig mirrors the per-code channel block of the worker config,
// e.g. notifications.infra.victorOps.isEnabled.
type NotificationConfig struct {
	VictorOps  *VictorOpsConfig  `mapstructure:"victorOps"`
	Clickatell *ClickatellConfig `mapstructure:"clickatell"`
}

type VictorOpsConfig struct {
	IsEnabled   bool          `mapstructure:"isEnabled"`
	URL         string        `mapstructure:"url"`
	MessageType string        `mapstructure:"messageType"`
	Entity      string        `mapstructure:"entity"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ClickatellConfig struct {
	IsEnabled                bool          `mapstructure:"isEnabled"`
	URL                      string        `mapstructure:"url"`
	AuthorizationToken       string        `mapstructure:"authorizationToken"`
	AuthorizationTokenSecret string        `mapstructure:"authorizationTokenSecret"`
	Recipients               []string      `mapstructure:"recipients"`
	From                     string        `mapstructure:"from"`
	Timeout                  time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Backend        string `mapstructure:"backend"`
	Namespace      string `mapstructure:"namespace"`
	PushGatewayURL string `mapstructure:"push_gateway_url"`
	InstanceID     string `mapstructure:"instance_id"`
}

type TelemetryConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"service_name"`
	OTELCollector   OTELCollectorConfig `mapstructure:"otel_collector"`
	MetricsInterval time.Duration       `mapstructure:"metrics_interval"`
}

type OTELCollectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DebugConfig struct {
	UseMockedQueueMessage      bool `mapstructure:"use_mocked_queue_message"`
	DoNotDeleteMessagesInQueue bool `mapstructure:"do_not_delete_messages_in_queue"`
}

// Enabled lists the debug options that are switched on.
func (d DebugConfig) Enabled() []string {
	var opts []string
	if d.UseMockedQueueMessage {
		opts = append(opts, "use_mocked_queue_message")
	}
	if d.DoNotDeleteMessagesInQueue {
		opts = append(opts, "do_not_delete_messages_in_queue")
	}
	return opts
}

type ConfigManager struct {
	config     *Config
	configPath string
	mutex      sync.RWMutex
}

var (
	instance *ConfigManager
	once     sync.Once
)

func GetConfigManager() *ConfigManager {
	once.Do(func() {
		instance = &ConfigManager{
			configPath: DefaultConfigPath,
		}
	})
	return instance
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.configPath = path
	cm.config = nil
}

func (cm *ConfigManager) GetConfig() (*Config, error) {
	cm.mutex.RLock()
	if cm.config != nil {
		defer cm.mutex.RUnlock()
		return cm.config, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	cfg, err := LoadConfig(cm.configPath)
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm.config, nil
}

// LoadConfig reads and validates the worker configuration. Environment variables
// prefixed with ZEMOG_ override file values (ZEMOG_QUEUE_NAME, ZEMOG_AWS_REGION, ...).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetEnvPrefix("ZEMOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
			fmt.Sprintf("can't read config file %q", path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err, "unable to decode into config struct")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.backend", "sqs")
	v.SetDefault("aws.region", "ap-southeast-2")
	v.SetDefault("aws.test_result_path.bucket", "zemog-bucket")
	v.SetDefault("aws.test_result_path.key", "tests/result/")
	v.SetDefault("runner.mode", "process")
	v.SetDefault("runner.binary", "java")
	v.SetDefault("days_to_keep_test_result", 7)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.namespace", "Zemog")
	v.SetDefault("telemetry.service_name", "zemog-worker")
	v.SetDefault("telemetry.otel_collector.host", "localhost")
	v.SetDefault("telemetry.otel_collector.port", 4317)
	v.SetDefault("telemetry.metrics_interval", "10s")
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errorutil.Newf(errorutil.KindConfigurationParse, format, args...)
	}

	switch c.Queue.Backend {
	case "sqs", "amqp":
	default:
		return invalid("queue.backend must be one of sqs, amqp (got %q)", c.Queue.Backend)
	}
	if c.Queue.Backend == "amqp" && c.Queue.URL == "" {
		return invalid("queue.url is required for the amqp backend")
	}

	switch c.Runner.Mode {
	case "process":
	case "docker":
		if c.Runner.Docker.Image == "" {
			return invalid("runner.docker.image is required when runner.mode is docker")
		}
	default:
		return invalid("runner.mode must be one of process, docker (got %q)", c.Runner.Mode)
	}
	if c.Runner.IridiumPath == "" {
		return invalid("runner.iridium_path must be specified")
	}
	if c.Runner.ExecutionTimeout < 0 {
		return invalid("runner.execution_timeout must not be negative")
	}

	switch c.Metrics.Backend {
	case "none", "prometheus", "otel":
	default:
		return invalid("metrics.backend must be one of none, prometheus, otel (got %q)", c.Metrics.Backend)
	}
	if c.Metrics.Backend == "prometheus" && c.Metrics.PushGatewayURL == "" {
		return invalid("metrics.push_gateway_url is required for the prometheus backend")
	}
	if c.Metrics.Backend == "otel" && !c.Telemetry.Enabled {
		return invalid("metrics.backend otel requires telemetry.enabled")
	}

	if c.DaysToKeepTestResult <= 0 {
		return invalid("days_to_keep_test_result must be positive")
	}
	if c.AWS.TestResultPath.Bucket == "" {
		return invalid("aws.test_result_path.bucket must be specified")
	}

	return nil
}

// Notification looks up the channel block for a notification code. Codes are
// matched case-insensitively because viper lower-cases map keys.
func (c *Config) Notification(code string) (NotificationConfig, bool) {
	if n, ok := c.Notifications[strings.ToLower(code)]; ok {
		return n, true
	}
	for key, n := range c.Notifications {
		if strings.EqualFold(key, code) {
			return n, true
		}
	}
	return NotificationConfig{}, false
}
