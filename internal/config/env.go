package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnv overrides file values with JURYWATCH_* environment variables.
func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("JURYWATCH_API_BASE_URL", c.API.BaseURL)
	c.API.StreamPath = getEnv("JURYWATCH_API_STREAM_PATH", c.API.StreamPath)
	c.API.ResultsPath = getEnv("JURYWATCH_API_RESULTS_PATH", c.API.ResultsPath)
	c.API.FinalizePath = getEnv("JURYWATCH_API_FINALIZE_PATH", c.API.FinalizePath)
	c.API.CorePath = getEnv("JURYWATCH_API_CORE_PATH", c.API.CorePath)
	c.API.Timeout = getEnvDuration("JURYWATCH_API_TIMEOUT", c.API.Timeout)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.Server.HTTPPort = getEnvInt("HTTP_PORT", c.Server.HTTPPort)
	c.Server.PingInterval = getEnvDuration("JURYWATCH_WS_PING_INTERVAL", c.Server.PingInterval)
	c.Server.WriteTimeout = getEnvDuration("JURYWATCH_WS_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Session.CatchupInterval = getEnvDuration("JURYWATCH_CATCHUP_INTERVAL", c.Session.CatchupInterval)
	c.Session.PollFallbackDelay = getEnvDuration("JURYWATCH_POLL_FALLBACK_DELAY", c.Session.PollFallbackDelay)
	c.Session.StrictAgents = getEnvBool("JURYWATCH_STRICT_AGENTS", c.Session.StrictAgents)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("JURYWATCH_NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("800ms") or plain milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
