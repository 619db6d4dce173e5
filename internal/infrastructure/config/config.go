// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the ambient configuration every engine host reads at startup.
type Config struct {
	LogLevel             string
	DefaultMaxIterations int
	NodeExecutionTimeout time.Duration
}

// Load reads Config from the environment, applying the same defaults
// SPEC_FULL.md names for a host that sets nothing.
func Load() *Config {
	return &Config{
		LogLevel:             getEnv("STEPFLOW_LOG_LEVEL", "info"),
		DefaultMaxIterations: getEnvInt("STEPFLOW_DEFAULT_MAX_ITERATIONS", 100),
		NodeExecutionTimeout: getEnvDuration("STEPFLOW_NODE_EXECUTION_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
