package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()

	t.Run("loads from json", func(t *testing.T) {
		path := writeTempJSON(t, dir, "flag.json", map[string]any{
			"endpoint_addr_http":  "www.example:9000",
			"database_driver":     "sqlite",
			"database_dsn":        "sign.db",
			"secret_key":          "my_secret_key",
			"signing_request_ttl": "72h",
			"s3_bucket":           "bucket",
			"composite_workers":   2,
			"watermark_angle":     0,
		})
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, "sign.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 72*time.Hour, cfg.SigningRequestTTL)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, 2, cfg.CompositeWorkers)
		assert.Equal(t, 0.0, cfg.WatermarkAngle)
		// Keys missing from the file keep their defaults.
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
		assert.Equal(t, 0.12, cfg.WatermarkOpacity)
	})

	t.Run("loads from yaml", func(t *testing.T) {
		path := filepath.Join(dir, "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"storage_backend: dir\nstorage_dir: /var/lib/anchorsign\nexpiry_sweep_interval: 30s\nwatermark_opacity: 0.2\nlog_level: debug\n"), 0o600))
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "dir", cfg.StorageBackend)
		assert.Equal(t, "/var/lib/anchorsign", cfg.StorageDir)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 30*time.Second, cfg.ExpirySweepInterval)
		assert.Equal(t, 0.2, cfg.WatermarkOpacity)
		assert.Equal(t, -35.0, cfg.WatermarkAngle)
	})

	t.Run("no config flag leaves config alone", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrHTTP: "defaults:1234", SigningRequestTTL: time.Minute}
		parseFile(cfg)

		assert.Equal(t, &Config{EndpointAddrHTTP: "defaults:1234", SigningRequestTTL: time.Minute}, cfg)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseFile(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.yml")}
		require.Panics(t, func() { parseFile(&Config{}) })
	})
}
