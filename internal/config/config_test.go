package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROBLIBD_STREAM_ADDR", "")
	t.Setenv("ROBLIBD_DGRAM_ADDR", "")
	t.Setenv("ROBLIBD_HTTP_ADDR", "")
	t.Setenv("ROBLIBD_GRPC_ADDR", "")
	t.Setenv("ROBLIBD_ALLOWED_ORIGINS", "")
	t.Setenv("ROBLIBD_MAX_PAYLOAD_BYTES", "")
	t.Setenv("ROBLIBD_PING_INTERVAL", "")
	t.Setenv("ROBLIBD_MAX_CLIENTS", "")
	t.Setenv("ROBLIBD_TLS_CERT", "")
	t.Setenv("ROBLIBD_TLS_KEY", "")
	t.Setenv("ROBLIBD_ADMIN_TOKEN", "")
	t.Setenv("ROBLIBD_EDF_MAX_WAIT", "")
	t.Setenv("ROBLIBD_LOG_LEVEL", "")
	t.Setenv("ROBLIBD_LOG_PATH", "")
	t.Setenv("ROBLIBD_LOG_MAX_SIZE_MB", "")
	t.Setenv("ROBLIBD_LOG_MAX_BACKUPS", "")
	t.Setenv("ROBLIBD_LOG_MAX_AGE_DAYS", "")
	t.Setenv("ROBLIBD_LOG_COMPRESS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.StreamAddr != DefaultStreamAddr {
		t.Fatalf("expected default stream addr %q, got %q", DefaultStreamAddr, cfg.StreamAddr)
	}
	if cfg.DgramAddr != DefaultDgramAddr {
		t.Fatalf("expected default dgram addr %q, got %q", DefaultDgramAddr, cfg.DgramAddr)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("expected default http addr %q, got %q", DefaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != DefaultGRPCAddr {
		t.Fatalf("expected default grpc addr %q, got %q", DefaultGRPCAddr, cfg.GRPCAddr)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("expected default ping interval %v, got %v", DefaultPingInterval, cfg.PingInterval)
	}
	if cfg.MaxClients != DefaultMaxClients {
		t.Fatalf("expected default max clients %d, got %d", DefaultMaxClients, cfg.MaxClients)
	}
	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		t.Fatalf("expected TLS paths to be empty, got cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.AdminToken != "" {
		t.Fatalf("expected admin token to be empty by default")
	}
	if cfg.EDFMaxWait != DefaultEDFMaxWait {
		t.Fatalf("expected default EDF max wait %v, got %v", DefaultEDFMaxWait, cfg.EDFMaxWait)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("expected default log path %q, got %q", DefaultLogPath, cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("expected default log max size %d, got %d", DefaultLogMaxSizeMB, cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != DefaultLogMaxBackups {
		t.Fatalf("expected default log max backups %d, got %d", DefaultLogMaxBackups, cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != DefaultLogMaxAgeDays {
		t.Fatalf("expected default log max age %d, got %d", DefaultLogMaxAgeDays, cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress != DefaultLogCompress {
		t.Fatalf("expected default log compress %t, got %t", DefaultLogCompress, cfg.Logging.Compress)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROBLIBD_STREAM_ADDR", "127.0.0.1:9000")
	t.Setenv("ROBLIBD_DGRAM_ADDR", "127.0.0.1:9001")
	t.Setenv("ROBLIBD_HTTP_ADDR", "127.0.0.1:9002")
	t.Setenv("ROBLIBD_GRPC_ADDR", "127.0.0.1:9003")
	t.Setenv("ROBLIBD_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("ROBLIBD_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("ROBLIBD_PING_INTERVAL", "45s")
	t.Setenv("ROBLIBD_MAX_CLIENTS", "12")
	t.Setenv("ROBLIBD_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("ROBLIBD_TLS_KEY", "/tmp/key.pem")
	t.Setenv("ROBLIBD_ADMIN_TOKEN", "s3cret")
	t.Setenv("ROBLIBD_EDF_MAX_WAIT", "50ms")
	t.Setenv("ROBLIBD_LOG_LEVEL", "debug")
	t.Setenv("ROBLIBD_LOG_PATH", "/var/log/roblibd.log")
	t.Setenv("ROBLIBD_LOG_MAX_SIZE_MB", "512")
	t.Setenv("ROBLIBD_LOG_MAX_BACKUPS", "4")
	t.Setenv("ROBLIBD_LOG_MAX_AGE_DAYS", "2")
	t.Setenv("ROBLIBD_LOG_COMPRESS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.StreamAddr != "127.0.0.1:9000" {
		t.Fatalf("unexpected stream addr: %q", cfg.StreamAddr)
	}
	if cfg.DgramAddr != "127.0.0.1:9001" {
		t.Fatalf("unexpected dgram addr: %q", cfg.DgramAddr)
	}
	if cfg.HTTPAddr != "127.0.0.1:9002" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != "127.0.0.1:9003" {
		t.Fatalf("unexpected grpc addr: %q", cfg.GRPCAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Fatalf("expected overridden max payload, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval.String() != "45s" {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.MaxClients != 12 {
		t.Fatalf("expected max clients 12, got %d", cfg.MaxClients)
	}
	if cfg.TLSCertPath != "/tmp/cert.pem" || cfg.TLSKeyPath != "/tmp/key.pem" {
		t.Fatalf("unexpected TLS paths cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.AdminToken != "s3cret" {
		t.Fatalf("expected overridden admin token, got %q", cfg.AdminToken)
	}
	if cfg.EDFMaxWait != 50*time.Millisecond {
		t.Fatalf("expected EDF max wait 50ms, got %v", cfg.EDFMaxWait)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected overridden log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Path != "/var/log/roblibd.log" {
		t.Fatalf("unexpected log path %q", cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != 512 {
		t.Fatalf("expected log max size 512, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != 4 {
		t.Fatalf("expected log max backups 4, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != 2 {
		t.Fatalf("expected log max age 2, got %d", cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress {
		t.Fatalf("expected log compression disabled")
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("ROBLIBD_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("ROBLIBD_PING_INTERVAL", "abc")
	t.Setenv("ROBLIBD_MAX_CLIENTS", "-1")
	t.Setenv("ROBLIBD_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("ROBLIBD_TLS_KEY", "")
	t.Setenv("ROBLIBD_EDF_MAX_WAIT", "-1s")
	t.Setenv("ROBLIBD_LOG_MAX_SIZE_MB", "-1")
	t.Setenv("ROBLIBD_LOG_MAX_BACKUPS", "-2")
	t.Setenv("ROBLIBD_LOG_MAX_AGE_DAYS", "-3")
	t.Setenv("ROBLIBD_LOG_COMPRESS", "notabool")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"ROBLIBD_MAX_PAYLOAD_BYTES",
		"ROBLIBD_PING_INTERVAL",
		"ROBLIBD_MAX_CLIENTS",
		"ROBLIBD_TLS_CERT",
		"ROBLIBD_EDF_MAX_WAIT",
		"ROBLIBD_LOG_MAX_SIZE_MB",
		"ROBLIBD_LOG_MAX_BACKUPS",
		"ROBLIBD_LOG_MAX_AGE_DAYS",
		"ROBLIBD_LOG_COMPRESS",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("ROBLIBD_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsUnlimitedClients(t *testing.T) {
	t.Setenv("ROBLIBD_MAX_CLIENTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MaxClients != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxClients)
	}
}
