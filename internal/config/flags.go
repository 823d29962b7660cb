package config

import (
	"flag"
	"os"
	"time"

	"github.com/driftguard/driftguard/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-r string   database driver (postgres|sqlite|memory)
//	-d string   database DSN
//	-i int      scan interval, seconds
//	-t int      sandbox timeout, milliseconds
//	-f string   YAML rules file
//	-l string   log level (debug|info|warn|error)
//	-o          start offline
//	-a int      archive payloads older than this many hours (0 disables)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers and converted to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-r", "-d", "-i", "-t", "-f", "-l", "-o", "-a", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDriver, "r", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	scanInterval := fs.Int("i", int(config.ScanInterval.Seconds()), "scan interval (in seconds)")
	sandboxTimeout := fs.Int("t", int(config.SandboxTimeout.Milliseconds()), "sandbox timeout (in milliseconds)")
	archiveAfter := fs.Int("a", int(config.ArchiveAfter.Hours()), "archive payloads older than (in hours)")

	fs.StringVar(&config.RulesFile, "f", config.RulesFile, "YAML rules file")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.Offline, "o", config.Offline, "start offline")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ScanInterval = time.Duration(*scanInterval) * time.Second
	config.SandboxTimeout = time.Duration(*sandboxTimeout) * time.Millisecond
	config.ArchiveAfter = time.Duration(*archiveAfter) * time.Hour
}
