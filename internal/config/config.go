package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DeviceTokenEnv    = "DEVICE_TOKEN"
	APIBaseURLEnv     = "API_BASE_URL"
	SolarLogIPEnv     = "SOLARLOG_IP"
	SolarLogPortEnv   = "SOLARLOG_PORT"
	SolarLogTZEnv     = "SOLARLOG_TIMEZONE"
	ReadIntervalEnv   = "READ_INTERVAL"
	DefaultAPIBaseURL = "https://api.logreposit.com/v1/"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Device      DeviceConfig
	API         APIConfig
	Polling     PollingConfig
	RabbitMQ    RabbitMQConfig
	MQTT        MQTTConfig
}

// DeviceConfig holds the Solar-Log connection settings
type DeviceConfig struct {
	IP       string
	Port     int
	Timezone string
	Timeout  time.Duration
}

// APIConfig holds the ingestion API settings
type APIConfig struct {
	BaseURL     string
	DeviceToken string
	Timeout     time.Duration
}

// PollingConfig holds the scheduler settings
type PollingConfig struct {
	IntervalMillis int
}

// RabbitMQConfig holds the optional reading fan-out exchange. Empty URL disables it.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// MQTTConfig holds the optional MQTT broker settings. Empty Host disables it.
type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string
}

// ConfigurationError reports a missing or unusable mandatory setting.
type ConfigurationError struct {
	Variable string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s environment variable is not set", e.Variable)
	}
	return fmt.Sprintf("%s environment variable is invalid: %s", e.Variable, e.Reason)
}

// Interval returns the polling interval as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Polling.IntervalMillis) * time.Millisecond
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var parseErr error
	intEnv := func(key string, defaultValue int) int {
		value, err := getEnvAsInt(key, defaultValue)
		if err != nil && parseErr == nil {
			parseErr = err
		}
		return value
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "solarlog-reader-service"),
		ServicePort: intEnv("SERVICE_PORT", 8081),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Device: DeviceConfig{
			IP:       getEnv(SolarLogIPEnv, ""),
			Port:     intEnv(SolarLogPortEnv, 80),
			Timezone: getEnv(SolarLogTZEnv, ""),
			Timeout:  time.Duration(intEnv("SOLARLOG_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		API: APIConfig{
			BaseURL:     getEnv(APIBaseURLEnv, DefaultAPIBaseURL),
			DeviceToken: getEnv(DeviceTokenEnv, ""),
			Timeout:     time.Duration(intEnv("API_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Polling: PollingConfig{
			IntervalMillis: intEnv(ReadIntervalEnv, 30000),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        getEnv("RABBITMQ_URL", ""),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "logreposit.readings.exchange"),
			RoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "solarlog.reading.published"),
		},
		MQTT: MQTTConfig{
			Host:      getEnv("MQTT_HOST", ""),
			Port:      intEnv("MQTT_PORT", 1883),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
			BaseTopic: getEnv("MQTT_BASE_TOPIC", "solarlog"),
		},
	}
	if parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the mandatory settings in the order the service needs them.
func (c *Config) Validate() error {
	if c.API.DeviceToken == "" {
		return &ConfigurationError{Variable: DeviceTokenEnv}
	}
	if c.API.BaseURL == "" {
		return &ConfigurationError{Variable: APIBaseURLEnv}
	}
	if c.Device.IP == "" {
		return &ConfigurationError{Variable: SolarLogIPEnv}
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return &ConfigurationError{Variable: SolarLogPortEnv, Reason: fmt.Sprintf("port %d out of range", c.Device.Port)}
	}
	if c.Device.Timezone == "" {
		return &ConfigurationError{Variable: SolarLogTZEnv}
	}
	if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
		return &ConfigurationError{Variable: SolarLogTZEnv, Reason: err.Error()}
	}
	if c.Polling.IntervalMillis <= 0 {
		return &ConfigurationError{Variable: ReadIntervalEnv, Reason: "interval must be positive"}
	}
	if c.ServicePort < 0 || c.ServicePort > 65535 {
		return &ConfigurationError{Variable: "SERVICE_PORT", Reason: fmt.Sprintf("port %d out of range", c.ServicePort)}
	}
	if c.MQTT.Host != "" {
		topic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			return &ConfigurationError{Variable: "MQTT_BASE_TOPIC", Reason: err.Error()}
		}
		c.MQTT.BaseTopic = topic
	}
	return nil
}

// MissingVariables lists every mandatory variable that is unset and has no default
func MissingVariables() []string {
	var missing []string
	for _, key := range []string{DeviceTokenEnv, SolarLogIPEnv, SolarLogTZEnv} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

var topicPattern = regexp.MustCompile("^[a-z0-9_]+$")

// CheckMQTTTopic lower-cases the topic and checks it only holds letters, numbers and underscores
func CheckMQTTTopic(topic string) (string, error) {
	lower := strings.ToLower(topic)
	if !topicPattern.MatchString(lower) {
		return "", fmt.Errorf("invalid topic %q: can only contain letters, numbers and underscores", topic)
	}
	return lower, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue, &ConfigurationError{Variable: key, Reason: fmt.Sprintf("%q is not an integer", valueStr)}
	}
	return value, nil
}
