package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.DatabaseDriver, "sqlite")
	assert.Equal(t, c.DatabaseDSN, "file:driftguard/driftguard.db")
	assert.Equal(t, c.ScanInterval, 30*time.Second)
	assert.Equal(t, c.SandboxTimeout, 2*time.Second)
	assert.Equal(t, c.LogLevel, "info")
	assert.False(t, c.Offline)
	assert.Equal(t, c.ArchiveAfter, time.Duration(0))
	assert.Equal(t, c.S3RootUser, "admin")
	assert.Equal(t, c.S3RootPassword, "secretpassword")
	assert.Equal(t, c.S3Bucket, "driftguard-archive")
	assert.Equal(t, c.S3Region, "us-east-1")
	assert.Equal(t, c.S3BaseEndpoint, "http://127.0.0.1:9000/")
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.DatabaseDriver, "sqlite")
	assert.Equal(t, c.DatabaseDSN, "file:driftguard/driftguard.db")
	assert.Equal(t, c.ScanInterval, 30*time.Second)
	assert.Equal(t, c.SandboxTimeout, 2*time.Second)
	assert.Equal(t, c.LogLevel, "info")
}
