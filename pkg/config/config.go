package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the immutable per-process configuration. It is constructed once
// at startup and passed to each component; nothing mutates it afterwards.
type Config struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	QueueCreated   string `yaml:"queueCreated"`
	QueueSubmitted string `yaml:"queueSubmitted"`

	PeerURL            string `yaml:"peerUrl"`
	PeerTimeoutSeconds int    `yaml:"peerTimeoutSeconds"`

	GatewayURL            string `yaml:"gatewayUrl"`
	GatewayAPIKey         string `yaml:"gatewayApiKey"`
	GatewayTimeoutSeconds int    `yaml:"gatewayTimeoutSeconds"`
	ServiceRole           string `yaml:"serviceRole"`

	HealthPort int `yaml:"healthPort"`
	PeerPort   int `yaml:"peerPort"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	TracingEnabled   bool    `yaml:"tracingEnabled"`
	OTLPEndpoint     string  `yaml:"otlpEndpoint"`
	OTLPInsecure     bool    `yaml:"otlpInsecure"`
	TraceSampleRatio float64 `yaml:"traceSampleRatio"`
}

// Load reads an optional YAML file, applies environment overrides, then
// defaults. An empty path means environment and defaults only.
func Load(filePath string) (*Config, error) {
	var c Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("QUEUE_CREATED"); v != "" {
		c.QueueCreated = v
	}
	if v := os.Getenv("QUEUE_SUBMITTED"); v != "" {
		c.QueueSubmitted = v
	}
	if v := os.Getenv("PEER_URL"); v != "" {
		c.PeerURL = v
	}
	if v := os.Getenv("PEER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PeerTimeoutSeconds = n
		}
	}
	if v := os.Getenv("API_GATEWAY_URL"); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.GatewayAPIKey = v
	}
	if v := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GatewayTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SERVICE_ROLE"); v != "" {
		c.ServiceRole = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HealthPort = n
		}
	}
	if v := os.Getenv("PEER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PeerPort = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		c.OTLPInsecure = parseBool(v)
	}
	if v := os.Getenv("TRACE_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TraceSampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.QueueCreated == "" {
		c.QueueCreated = "artifact.created.queue"
	}
	if c.QueueSubmitted == "" {
		c.QueueSubmitted = "artifact.submitted.queue"
	}
	if c.PeerURL == "" {
		c.PeerURL = "http://localhost:8080"
	}
	if c.PeerTimeoutSeconds <= 0 {
		c.PeerTimeoutSeconds = 30
	}
	if c.GatewayURL == "" {
		c.GatewayURL = "http://api-gateway:3000/api/artifacts"
	}
	if c.GatewayTimeoutSeconds <= 0 {
		c.GatewayTimeoutSeconds = 10
	}
	if c.ServiceRole == "" {
		c.ServiceRole = "submitter_listener"
	}
	if c.HealthPort <= 0 {
		c.HealthPort = 8000
	}
	if c.PeerPort <= 0 {
		c.PeerPort = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.TraceSampleRatio <= 0 || c.TraceSampleRatio > 1 {
		c.TraceSampleRatio = 1
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if _, err := parseHTTPURL(c.PeerURL); err != nil {
		errs = append(errs, "peerUrl must be a valid http(s) URL")
	}
	if _, err := parseHTTPURL(c.GatewayURL); err != nil {
		errs = append(errs, "gatewayUrl must be a valid http(s) URL")
	}
	if strings.TrimSpace(c.GatewayAPIKey) == "" && !dev {
		errs = append(errs, "gatewayApiKey is required in non-dev")
	}
	if c.QueueCreated == c.QueueSubmitted {
		errs = append(errs, "queueCreated and queueSubmitted must differ")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger builds the process logger the way every component does:
// JSON or text per config, scoped with service and env attributes, and
// installed as the slog default.
func (c *Config) NewLogger(service string) *slog.Logger {
	level := new(slog.LevelVar)
	switch c.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", service, "env", c.Env)
	slog.SetDefault(logger)
	return logger
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("not an http(s) URL: %s", raw)
	}
	return u, nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
