// Package config loads the Redis and task queue settings from the environment.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds Redis connection and worker pool parameters
type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	RetentionPeriod time.Duration
	TaskTimeout     time.Duration
	QueueName       string
	UseTLS          bool
	CertFile        string
	KeyFile         string
	CAFile          string
	QueuePriorities map[string]int
}

const (
	defaultHost          = "localhost"
	defaultPort          = 6379
	defaultDB            = 0
	defaultWorkers       = 10
	defaultRetryInterval = 5 * time.Second
	defaultMaxRetries    = 3
	defaultTaskTimeout   = 10 * time.Minute
	DefaultQueueName     = "parse"
	minPort              = 1
	maxPort              = 65535
	minDB                = 0
	maxDB                = 15
	minWorkers           = 1
	maxWorkers           = 100
	minRetryInterval     = time.Second
	maxRetryInterval     = time.Hour
	minMaxRetries        = 0
	maxMaxRetries        = 10
	minRetentionDays     = 1
	maxRetentionDays     = 365
	minTaskTimeout       = 10 * time.Second
	maxTaskTimeout       = 6 * time.Hour
)

// Priorities weights the parse queue above housekeeping tasks on "default".
func Priorities(queue string) map[string]int {
	return map[string]int{
		queue:     6,
		"default": 1,
	}
}

// NewRedisConfig creates a new Redis configuration from environment variables.
// REDIS_URL, when set, overrides host, port, password and database.
func NewRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{
		Host:      getEnvOrDefault("REDIS_HOST", defaultHost),
		Password:  os.Getenv("REDIS_PASSWORD"),
		QueueName: getEnvOrDefault("REDIS_QUEUE", DefaultQueueName),
		UseTLS:    getEnvBool("REDIS_USE_TLS"),
		CertFile:  os.Getenv("REDIS_CERT_FILE"),
		KeyFile:   os.Getenv("REDIS_KEY_FILE"),
		CAFile:    os.Getenv("REDIS_CA_FILE"),
	}

	cfg.QueuePriorities = Priorities(cfg.QueueName)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := applyURL(cfg, redisURL); err != nil {
			return nil, err
		}
	} else {
		port, err := validatePort(getEnvOrDefault("REDIS_PORT", strconv.Itoa(defaultPort)))
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		cfg.Port = port

		db, err := validateDB(getEnvOrDefault("REDIS_DB", strconv.Itoa(defaultDB)))
		if err != nil {
			return nil, fmt.Errorf("invalid DB: %w", err)
		}
		cfg.DB = db
	}

	workers, err := validateWorkers(getEnvOrDefault("REDIS_WORKERS", strconv.Itoa(defaultWorkers)))
	if err != nil {
		return nil, fmt.Errorf("invalid workers: %w", err)
	}
	cfg.Workers = workers

	interval, err := validateRetryInterval(getEnvOrDefault("REDIS_RETRY_INTERVAL", defaultRetryInterval.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid retry interval: %w", err)
	}
	cfg.RetryInterval = interval

	retries, err := validateMaxRetries(getEnvOrDefault("REDIS_MAX_RETRIES", strconv.Itoa(defaultMaxRetries)))
	if err != nil {
		return nil, fmt.Errorf("invalid max retries: %w", err)
	}
	cfg.MaxRetries = retries

	days, err := validateRetentionDays(getEnvOrDefault("REDIS_RETENTION_DAYS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid retention days: %w", err)
	}
	cfg.RetentionPeriod = time.Duration(days) * 24 * time.Hour

	timeout, err := validateTaskTimeout(getEnvOrDefault("TASK_TIMEOUT", defaultTaskTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid task timeout: %w", err)
	}
	cfg.TaskTimeout = timeout

	if cfg.UseTLS && !isTestMode() {
		if err := validateTLSConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid TLS configuration: %w", err)
		}
	}

	return cfg, nil
}

func applyURL(cfg *RedisConfig, raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid Redis URL: %w", err)
	}

	if parsedURL.Scheme == "rediss" {
		cfg.UseTLS = true
	}

	if host := parsedURL.Hostname(); host != "" {
		cfg.Host = host
	}

	cfg.Port = defaultPort

	if port := parsedURL.Port(); port != "" {
		p, err := validatePort(port)
		if err != nil {
			return fmt.Errorf("invalid port in Redis URL: %w", err)
		}
		cfg.Port = p
	}

	if password, ok := parsedURL.User.Password(); ok {
		cfg.Password = password
	}

	if path := strings.TrimPrefix(parsedURL.Path, "/"); path != "" {
		db, err := validateDB(path)
		if err != nil {
			return fmt.Errorf("invalid database number in Redis URL: %w", err)
		}
		cfg.DB = db
	}

	return nil
}

// GetRedisAddr returns the formatted Redis address
func (c *RedisConfig) GetRedisAddr() string {
	host := c.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// TLSConfig returns nil when TLS is disabled. A client certificate is loaded
// when both CertFile and KeyFile are set; CAFile replaces the system roots.
func (c *RedisConfig) TLSConfig() (*tls.Config, error) {
	if !c.UseTLS {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.Host,
	}

	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

func validatePort(port string) (int, error) {
	p, err := strconv.Atoi(port)
	if err != nil {
		return 0, fmt.Errorf("port must be a number: %w", err)
	}
	if p < minPort || p > maxPort {
		return 0, fmt.Errorf("port must be between %d and %d", minPort, maxPort)
	}
	return p, nil
}

func validateDB(db string) (int, error) {
	d, err := strconv.Atoi(db)
	if err != nil {
		return 0, fmt.Errorf("DB must be a number: %w", err)
	}
	if d < minDB || d > maxDB {
		return 0, fmt.Errorf("DB must be between %d and %d", minDB, maxDB)
	}
	return d, nil
}

func validateWorkers(workers string) (int, error) {
	w, err := strconv.Atoi(workers)
	if err != nil {
		return 0, fmt.Errorf("workers must be a number: %w", err)
	}
	if w < minWorkers || w > maxWorkers {
		return 0, fmt.Errorf("workers must be between %d and %d", minWorkers, maxWorkers)
	}
	return w, nil
}

func validateRetryInterval(interval string) (time.Duration, error) {
	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d < minRetryInterval || d > maxRetryInterval {
		return 0, fmt.Errorf("retry interval must be between %v and %v", minRetryInterval, maxRetryInterval)
	}
	return d, nil
}

func validateMaxRetries(retries string) (int, error) {
	r, err := strconv.Atoi(retries)
	if err != nil {
		return 0, fmt.Errorf("max retries must be a number: %w", err)
	}
	if r < minMaxRetries || r > maxMaxRetries {
		return 0, fmt.Errorf("max retries must be between %d and %d", minMaxRetries, maxMaxRetries)
	}
	return r, nil
}

func validateRetentionDays(days string) (int, error) {
	d, err := strconv.Atoi(days)
	if err != nil {
		return 0, fmt.Errorf("retention days must be a number: %w", err)
	}
	if d < minRetentionDays || d > maxRetentionDays {
		return 0, fmt.Errorf("retention days must be between %d and %d", minRetentionDays, maxRetentionDays)
	}
	return d, nil
}

func validateTaskTimeout(timeout string) (time.Duration, error) {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d < minTaskTimeout || d > maxTaskTimeout {
		return 0, fmt.Errorf("task timeout must be between %v and %v", minTaskTimeout, maxTaskTimeout)
	}
	return d, nil
}

func validateTLSConfig(cfg *RedisConfig) error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return fmt.Errorf("TLS certificate and key files must be set together")
	}

	for _, f := range []struct{ label, path string }{
		{"certificate", cfg.CertFile},
		{"key", cfg.KeyFile},
		{"CA", cfg.CAFile},
	} {
		if f.path == "" {
			continue
		}
		if err := checkFileReadable(f.path); err != nil {
			return fmt.Errorf("%s file error: %w", f.label, err)
		}
	}

	return nil
}

func checkFileReadable(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file: %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	value := strings.ToLower(os.Getenv(key))
	return value == "true" || value == "1" || value == "yes"
}

// isTestMode returns true if the code is running in test mode
func isTestMode() bool {
	return strings.HasSuffix(os.Args[0], ".test") || os.Getenv("GO_TEST") == "1"
}
