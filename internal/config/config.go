package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLedgerEndpoint     = "wss://rpc.polkadot.io"
	DefaultIdentityEndpoint   = "wss://polkadot-people-rpc.polkadot.io"
	DefaultCollectiveEndpoint = "wss://polkadot-collectives-rpc.polkadot.io"
)

const (
	CacheNone   = "none"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheMySQL  = "mysql"
)

type Config struct {
	LedgerEndpoint       string
	IdentityEndpoint     string
	CollectiveEndpoint   string
	MembershipPallet     string
	SS58Prefix           uint16
	IdentityLegacyLayout bool

	ConnectTimeout    time.Duration
	ProbeTimeout      time.Duration
	QueryTimeout      time.Duration
	EnumerateTimeout  time.Duration
	EnumeratePageSize int
	MaxInFlight       int
	JoinWorkers       int

	CacheBackend string
	CacheDSN     string
	RedisAddr    string
	CacheTTL     time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OtelEndpoint  string
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	cfg := Config{
		LedgerEndpoint:     stringEnv(source, "LEDGER_ENDPOINT", DefaultLedgerEndpoint),
		IdentityEndpoint:   stringEnv(source, "IDENTITY_ENDPOINT", DefaultIdentityEndpoint),
		CollectiveEndpoint: stringEnv(source, "COLLECTIVE_ENDPOINT", DefaultCollectiveEndpoint),
		MembershipPallet:   stringEnv(source, "MEMBERSHIP_PALLET", "FellowshipCollective"),
		CacheDSN:           stringEnv(source, "CACHE_DSN", ""),
		RedisAddr:          stringEnv(source, "REDIS_ADDR", "127.0.0.1:6379"),
		KafkaTopic:         stringEnv(source, "KAFKA_TOPIC", "chainreport-reports"),
		OtelEndpoint:       stringEnv(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:           stringEnv(source, "LOG_LEVEL", "info"),
		LogFormat:          stringEnv(source, "LOG_FORMAT", "text"),
		LogFile:            stringEnv(source, "LOG_FILE", ""),
	}

	var err error
	if cfg.SS58Prefix, err = parseUint16Env(source, "SS58_PREFIX", 0); err != nil {
		return Config{}, err
	}
	if cfg.IdentityLegacyLayout, err = parseBoolEnv(source, "IDENTITY_LEGACY_LAYOUT", false); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = parseDurationEnv(source, "CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ProbeTimeout, err = parseDurationEnv(source, "PROBE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.QueryTimeout, err = parseDurationEnv(source, "QUERY_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.EnumerateTimeout, err = parseDurationEnv(source, "ENUMERATE_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = parseDurationEnv(source, "CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.EnumeratePageSize, err = parseIntEnv(source, "ENUMERATE_PAGE_SIZE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.MaxInFlight, err = parseIntEnv(source, "MAX_IN_FLIGHT", 8); err != nil {
		return Config{}, err
	}
	if cfg.JoinWorkers, err = parseIntEnv(source, "JOIN_WORKERS", 16); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxSizeMB, err = parseIntEnv(source, "LOG_MAX_SIZE_MB", 100); err != nil {
		return Config{}, err
	}
	if cfg.LogMaxBackups, err = parseIntEnv(source, "LOG_MAX_BACKUPS", 3); err != nil {
		return Config{}, err
	}
	if cfg.KafkaBrokers, err = parseList(source, "KAFKA_BROKERS"); err != nil {
		return Config{}, err
	}

	cfg.CacheBackend = strings.ToLower(stringEnv(source, "CACHE_BACKEND", CacheNone))
	switch cfg.CacheBackend {
	case CacheNone, CacheRedis:
	case CacheSQLite, CacheMySQL:
		if cfg.CacheDSN == "" {
			return Config{}, fmt.Errorf("CACHE_DSN is required for CACHE_BACKEND=%s", cfg.CacheBackend)
		}
	default:
		return Config{}, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}

	for key, value := range map[string]string{
		"LEDGER_ENDPOINT":     cfg.LedgerEndpoint,
		"IDENTITY_ENDPOINT":   cfg.IdentityEndpoint,
		"COLLECTIVE_ENDPOINT": cfg.CollectiveEndpoint,
	} {
		if !hasRPCScheme(value) {
			return Config{}, fmt.Errorf("invalid %s %q: want ws, wss, http or https", key, value)
		}
	}
	return cfg, nil
}

func hasRPCScheme(endpoint string) bool {
	for _, scheme := range []string{"ws://", "wss://", "http://", "https://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return true
		}
	}
	return false
}

func stringEnv(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int(value), nil
}

func parseUint16Env(source EnvSource, key string, defaultValue uint16) (uint16, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint16(value), nil
}

func parseBoolEnv(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

// parseList splits a comma separated value. Unset yields nil.
func parseList(source EnvSource, key string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("invalid %s: no entries", key)
	}
	return values, nil
}
