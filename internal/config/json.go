package config

import (
	"encoding/json"
	"os"

	"github.com/driftguard/driftguard/internal/flagx"
	"github.com/driftguard/driftguard/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDriver string         `json:"database_driver"`
	DatabaseDSN    string         `json:"database_dsn"`
	ScanInterval   timex.Duration `json:"scan_interval"`
	SandboxTimeout timex.Duration `json:"sandbox_timeout"`
	RulesFile      string         `json:"rules_file"`
	LogLevel       string         `json:"log_level"`
	Offline        bool           `json:"offline"`
	ArchiveAfter   timex.Duration `json:"archive_after"`
	S3RootUser     string         `json:"s3_root_user"`
	S3RootPassword string         `json:"s3_root_password"`
	S3Bucket       string         `json:"s3_bucket"`
	S3Region       string         `json:"s3_region"`
	S3BaseEndpoint string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; without them no JSON file is loaded. A file that cannot be read or
// parsed panics, matching flag handling.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDriver = c.DatabaseDriver
	config.DatabaseDSN = c.DatabaseDSN
	config.ScanInterval = c.ScanInterval.Duration
	config.SandboxTimeout = c.SandboxTimeout.Duration
	config.RulesFile = c.RulesFile
	config.LogLevel = c.LogLevel
	config.Offline = c.Offline
	config.ArchiveAfter = c.ArchiveAfter.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
