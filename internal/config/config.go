// Package config handles configuration for the driftguard daemon,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the daemon.
//
// Fields:
//   - DatabaseDriver: storage backend, one of postgres, sqlite, memory.
//   - DatabaseDSN: DSN for the chosen driver.
//   - ScanInterval: how often the detector sweeps all resources.
//   - SandboxTimeout: wall-clock limit for custom merge procedures.
//   - RulesFile: optional YAML file with initial resolution/override rules.
//   - LogLevel: debug, info, warn or error.
//   - Offline: start without a transport, ForceSync refuses until restart.
//   - ArchiveAfter: payload age before archival; zero disables the archiver.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	DatabaseDriver string
	DatabaseDSN    string
	ScanInterval   time.Duration
	SandboxTimeout time.Duration
	RulesFile      string
	LogLevel       string
	Offline        bool
	ArchiveAfter   time.Duration
	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:driftguard/driftguard.db"
	c.ScanInterval = 30 * time.Second
	c.SandboxTimeout = 2 * time.Second
	c.LogLevel = "info"
	c.ArchiveAfter = 0
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "driftguard-archive"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
