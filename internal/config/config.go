// Package config provides environment-variable configuration helpers and the
// concrete Config structs for the plater and automat binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment, if present.
// It is optional: a missing file is not an error, only a parse failure is
// reported (callers typically just log it and continue).
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// =============================================================================
// Environment variable helpers
// =============================================================================

// GetEnv retrieves an environment variable with a default.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable with a default.
// Accepts "true", "1", "yes", "y" (case-insensitive) as true.
func GetEnvBool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	return ParseBoolOrDefault(val, defaultValue)
}

// GetEnvInt retrieves an integer environment variable with a default.
func GetEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseEnvDuration parses a duration from the given environment variable.
func ParseEnvDuration(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// SplitAndTrimCSV splits a CSV string and trims each part, dropping empties.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseByteSize parses a size string like "1GB", "512MiB" into bytes.
func ParseByteSize(raw string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty size")
	}

	type suffix struct {
		value      string
		multiplier int64
	}
	suffixes := []suffix{
		{"gib", 1024 * 1024 * 1024}, {"gb", 1024 * 1024 * 1024}, {"g", 1024 * 1024 * 1024},
		{"mib", 1024 * 1024}, {"mb", 1024 * 1024}, {"m", 1024 * 1024},
		{"kib", 1024}, {"kb", 1024}, {"k", 1024},
		{"b", 1},
	}

	const maxInt64 = int64(^uint64(0) >> 1)

	for _, entry := range suffixes {
		if !strings.HasSuffix(value, entry.value) {
			continue
		}
		num := strings.TrimSpace(strings.TrimSuffix(value, entry.value))
		if num == "" {
			return 0, fmt.Errorf("missing size value")
		}
		parsed, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, err
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("size must be positive")
		}
		if parsed > maxInt64/entry.multiplier {
			return 0, fmt.Errorf("size too large")
		}
		return parsed * entry.multiplier, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return parsed, nil
}

// ParseDurationOrDefault parses a duration string or returns the default.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	return defaultDuration
}

// ParseBoolOrDefault parses a boolean string or returns the default.
func ParseBoolOrDefault(raw string, defaultValue bool) bool {
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "y"
}

// ParseIntOrDefault parses an integer string or returns the default.
func ParseIntOrDefault(raw string, defaultValue int) int {
	if raw == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return defaultValue
}

// =============================================================================
// Timeouts
// =============================================================================

// DefaultTimeouts holds standard timeout values for different operation kinds.
type DefaultTimeouts struct {
	GraphConnect time.Duration
	BackendFetch time.Duration
	Heartbeat    time.Duration
}

// GetDefaultTimeouts returns the default timeout values.
func GetDefaultTimeouts() DefaultTimeouts {
	return DefaultTimeouts{
		GraphConnect: 30 * time.Second,
		BackendFetch: 30 * time.Second,
		Heartbeat:    500 * time.Millisecond,
	}
}

// =============================================================================
// PLATER configuration
// =============================================================================

// PlaterConfig holds all process-wide configuration for a PLATER instance.
type PlaterConfig struct {
	BuildTag string

	Neo4jHost     string
	Neo4jPort     int
	Neo4jUsername string
	Neo4jPassword string

	WebHost string
	WebPort int

	AutomatHost string // set when PLATER announces itself via heartbeat ("-a" flag)
	HeartRate   time.Duration

	EdgeIndexName string
	BiolinkURL    string

	ResetSummary bool
	Validate     bool

	LogLevel  string
	LogFormat string

	Timeouts DefaultTimeouts
}

// LoadPlaterConfig reads a PlaterConfig from the environment. buildTag and
// automatHost are supplied by the CLI layer (see cmd/plater).
func LoadPlaterConfig(buildTag, automatHost string, validate, resetSummary bool) (*PlaterConfig, error) {
	host := GetEnv("NEO4J_HOST", "")
	if host == "" {
		return nil, fmt.Errorf("NEO4J_HOST is required")
	}
	username := GetEnv("NEO4J_USERNAME", "")
	if username == "" {
		return nil, fmt.Errorf("NEO4J_USERNAME is required")
	}
	password := GetEnv("NEO4J_PASSWORD", "")
	if password == "" {
		return nil, fmt.Errorf("NEO4J_PASSWORD is required")
	}

	heartRateSeconds := GetEnvInt("heart_rate", 30)

	return &PlaterConfig{
		BuildTag:      buildTag,
		Neo4jHost:     host,
		Neo4jPort:     GetEnvInt("NEO4J_HTTP_PORT", 7474),
		Neo4jUsername: username,
		Neo4jPassword: password,
		WebHost:       GetEnv("WEB_HOST", "127.0.0.1"),
		WebPort:       GetEnvInt("WEB_PORT", 8080),
		AutomatHost:   automatHost,
		HeartRate:     time.Duration(heartRateSeconds) * time.Second,
		EdgeIndexName: GetEnv("edge_index_name", "edge_id_index"),
		BiolinkURL:    GetEnv("bl_url", ""),
		ResetSummary:  resetSummary,
		Validate:      validate,
		LogLevel:      GetEnv("LOG_LEVEL", "info"),
		LogFormat:     GetEnv("LOG_FORMAT", "json"),
		Timeouts:      GetDefaultTimeouts(),
	}, nil
}

// =============================================================================
// AUTOMAT configuration
// =============================================================================

// AutomatConfig holds all process-wide configuration for an AUTOMAT instance.
type AutomatConfig struct {
	WebHost string
	WebPort int

	RegistryAge              time.Duration
	RegistryWarnThreshold    time.Duration
	RegistryOfflineThreshold time.Duration
	RegistryDeleteThreshold  time.Duration

	SpecFetchTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// LoadAutomatConfig reads an AutomatConfig from the environment.
func LoadAutomatConfig() *AutomatConfig {
	return &AutomatConfig{
		WebHost:                  GetEnv("WEB_HOST", "127.0.0.1"),
		WebPort:                  GetEnvInt("WEB_PORT", 8081),
		RegistryAge:              ParseDurationOrDefault(GetEnv("REGISTRY_AGE", ""), time.Second),
		RegistryWarnThreshold:    ParseDurationOrDefault(GetEnv("REGISTRY_WARN_THRESHOLD", ""), 2*time.Second),
		RegistryOfflineThreshold: ParseDurationOrDefault(GetEnv("REGISTRY_OFFLINE_THRESHOLD", ""), 3*time.Second),
		RegistryDeleteThreshold:  ParseDurationOrDefault(GetEnv("REGISTRY_DELETE_THRESHOLD", ""), 600*time.Second),
		SpecFetchTimeout:         ParseDurationOrDefault(GetEnv("SPEC_FETCH_TIMEOUT", ""), 30*time.Second),
		LogLevel:                 GetEnv("LOG_LEVEL", "info"),
		LogFormat:                GetEnv("LOG_FORMAT", "json"),
	}
}
