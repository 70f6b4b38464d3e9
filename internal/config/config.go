package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultStreamAddr is the default TCP address the STREAM transport listens on.
	DefaultStreamAddr = ":43127"
	// DefaultDgramAddr is the default UDP address the DGRAM transport listens on.
	DefaultDgramAddr = ":43128"
	// DefaultHTTPAddr is the default address for the shared HTTP mux: DUPLEX-MSG's
	// /ws, REQ-RESP's /cmd, and the ops surface (/healthz, /readyz, /metrics, /api/stats).
	DefaultHTTPAddr = ":43129"
	// DefaultGRPCAddr is the default address for the telemetry/ops gRPC channel.
	DefaultGRPCAddr = ":43130"

	// DefaultPingInterval controls the keepalive cadence for DUPLEX-MSG connections.
	DefaultPingInterval = 5 * time.Second
	// DefaultMaxPayloadBytes limits inbound DUPLEX-MSG frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent connections across transports. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultEDFMaxWait bounds the track/ultra worker's blocking interrupt poll
	// (§4.F: "it blocks on interrupt poll for min(interval to next ultra event, MAX_WAIT)").
	DefaultEDFMaxWait = 200 * time.Millisecond

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "roblibd.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the server.
type Config struct {
	StreamAddr      string
	DgramAddr       string
	HTTPAddr        string
	GRPCAddr        string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string
	AdminToken      string
	EDFMaxWait      time.Duration
	Logging         LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		StreamAddr:      getString("ROBLIBD_STREAM_ADDR", DefaultStreamAddr),
		DgramAddr:       getString("ROBLIBD_DGRAM_ADDR", DefaultDgramAddr),
		HTTPAddr:        getString("ROBLIBD_HTTP_ADDR", DefaultHTTPAddr),
		GRPCAddr:        getString("ROBLIBD_GRPC_ADDR", DefaultGRPCAddr),
		AllowedOrigins:  parseList(os.Getenv("ROBLIBD_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		MaxClients:      DefaultMaxClients,
		TLSCertPath:     strings.TrimSpace(os.Getenv("ROBLIBD_TLS_CERT")),
		TLSKeyPath:      strings.TrimSpace(os.Getenv("ROBLIBD_TLS_KEY")),
		AdminToken:      strings.TrimSpace(os.Getenv("ROBLIBD_ADMIN_TOKEN")),
		EDFMaxWait:      DefaultEDFMaxWait,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("ROBLIBD_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("ROBLIBD_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_EDF_MAX_WAIT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_EDF_MAX_WAIT must be a positive duration, got %q", raw))
		} else {
			cfg.EDFMaxWait = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ROBLIBD_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ROBLIBD_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ROBLIBD_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "ROBLIBD_TLS_CERT and ROBLIBD_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
