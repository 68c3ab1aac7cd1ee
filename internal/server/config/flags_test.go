package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8081", "-G", "127.0.0.1:9090", "-D", "sqlite", "-d", "file:x.db", "-s", "secret",
			"-t", "48h", "-T", "30m", "-U", "https://sign.example", "-S", "memory",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint", "-w", "8", "-l", "debug",
		},
			expected: &Config{
				EndpointAddrHTTP:            "127.0.0.1:8081",
				EndpointAddrGRPC:            "127.0.0.1:9090",
				DatabaseDriver:              "sqlite",
				DatabaseDSN:                 "file:x.db",
				SecretKey:                   "secret",
				SigningRequestTTL:           48 * time.Hour,
				AccessTokenValidityDuration: 30 * time.Minute,
				SigningBaseURL:              "https://sign.example",
				StorageBackend:              "memory",
				S3RootUser:                  "user",
				S3RootPassword:              "password",
				S3Bucket:                    "bucket",
				S3Region:                    "us-west-1",
				S3BaseEndpoint:              "http://endpoint",
				CompositeWorkers:            8,
				LogLevel:                    "debug",
			}},
		{name: "unknown flags are filtered out", args: []string{"cmd", "-c", "conf.json", "-x", "1", "-d", "db"},
			expected: &Config{DatabaseDSN: "db"}},
		{name: "bad duration panics", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
