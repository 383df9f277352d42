package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agentcore orchestrator.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Loops     LoopConfig
	Fusion    FusionConfig
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type LoopConfig struct {
	TickPeriod          time.Duration
	MaxRunsPerAgentHour int
	ExecutionTimeout    time.Duration
}

type FusionConfig struct {
	DrainPeriod            time.Duration
	MinDelayPerPersona     time.Duration
	MaxPerPersonaPerMinute int
	QueueCap               int
	ConsensusThreshold     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTCORE_PORT", 8080),
		Version: envStr("AGENTCORE_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentcore"),
		},
		Loops: LoopConfig{
			TickPeriod:          envDuration("LOOP_TICK_PERIOD", time.Minute),
			MaxRunsPerAgentHour: envInt("LOOP_MAX_RUNS_PER_AGENT_HOUR", 3),
			ExecutionTimeout:    envDuration("LOOP_EXECUTION_TIMEOUT", 2*time.Minute),
		},
		Fusion: FusionConfig{
			DrainPeriod:            envDuration("FUSION_DRAIN_PERIOD", 5*time.Second),
			MinDelayPerPersona:     envDuration("FUSION_MIN_DELAY_PER_PERSONA", 10*time.Second),
			MaxPerPersonaPerMinute: envInt("FUSION_MAX_PER_PERSONA_PER_MINUTE", 4),
			QueueCap:               envInt("FUSION_QUEUE_CAP", 50),
			ConsensusThreshold:     envInt("FUSION_CONSENSUS_THRESHOLD", 3),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
