package eventing

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerConfig defines the broker connection and the producer delivery
// contract. Retry, ack and breaker behavior live here, not in constants,
// so the contract stays visible and testable.
type BrokerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AckTimeout     time.Duration `yaml:"ack_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`

	DedupTTL time.Duration `yaml:"dedup_ttl"`
	DedupMax int           `yaml:"dedup_max"`
}

// LoadBrokerConfig loads broker configuration from env, with an optional
// yaml file (BROKER_CONFIG) overriding the env values.
func LoadBrokerConfig() (BrokerConfig, error) {
	cfg := BrokerConfig{
		Host:            getenvDefault("BROKER_HOST", "localhost"),
		Port:            getenvIntDefault("BROKER_PORT", 1883),
		Username:        os.Getenv("BROKER_USERNAME"),
		Password:        os.Getenv("BROKER_PASSWORD"),
		ClientID:        getenvDefault("BROKER_CLIENT_ID", "farmgate-ingest"),
		TopicPrefix:     getenvDefault("BROKER_TOPIC_PREFIX", "telemetry/resolved"),
		QoS:             getenvIntDefault("BROKER_QOS", 1),
		ConnectTimeout:  getenvDuration("BROKER_CONNECT_TIMEOUT", 10*time.Second),
		AckTimeout:      getenvDuration("BROKER_ACK_TIMEOUT", 5*time.Second),
		MaxRetries:      getenvIntDefault("BROKER_MAX_RETRIES", 4),
		InitialBackoff:  getenvDuration("BROKER_INITIAL_BACKOFF", 200*time.Millisecond),
		BreakerFailures: getenvIntDefault("BROKER_BREAKER_FAILURES", 5),
		BreakerOpenFor:  getenvDuration("BROKER_BREAKER_OPEN_FOR", 15*time.Second),
		DedupTTL:        getenvDuration("BROKER_DEDUP_TTL", 10*time.Minute),
		DedupMax:        getenvIntDefault("BROKER_DEDUP_MAX", 10000),
	}

	if path := os.Getenv("BROKER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the delivery contract bounds.
func (c BrokerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("broker config: empty host")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return errors.New("broker config: qos must be 0, 1 or 2")
	}
	if c.TopicPrefix == "" {
		return errors.New("broker config: empty topic prefix")
	}
	if c.MaxRetries < 0 {
		return errors.New("broker config: negative max retries")
	}
	if c.AckTimeout <= 0 {
		return errors.New("broker config: ack timeout must be positive")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
