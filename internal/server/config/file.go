package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/irportal/anchorsign/internal/flagx"
	"github.com/irportal/anchorsign/internal/timex"
)

// FileConfig is the on-disk form of Config. Durations use timex.Duration so
// both "72h" and integer nanoseconds are accepted. Fields left out of the
// file keep their current value.
type FileConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDriver              string         `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN                 string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	SigningRequestTTL           timex.Duration `json:"signing_request_ttl" yaml:"signing_request_ttl"`
	ExpirySweepInterval         timex.Duration `json:"expiry_sweep_interval" yaml:"expiry_sweep_interval"`
	TokenBytes                  int            `json:"token_bytes" yaml:"token_bytes"`
	SigningBaseURL              string         `json:"signing_base_url" yaml:"signing_base_url"`
	StorageBackend              string         `json:"storage_backend" yaml:"storage_backend"`
	StorageDir                  string         `json:"storage_dir" yaml:"storage_dir"`
	S3RootUser                  string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	CompositeWorkers            int            `json:"composite_workers" yaml:"composite_workers"`
	MaxUploadBytes              int64          `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	AnchorCacheSize             int            `json:"anchor_cache_size" yaml:"anchor_cache_size"`
	SignatureMaxWidth           float64        `json:"signature_max_width" yaml:"signature_max_width"`
	SignatureMaxHeight          float64        `json:"signature_max_height" yaml:"signature_max_height"`
	SignatureMaxPixels          int            `json:"signature_max_pixels" yaml:"signature_max_pixels"`
	WatermarkAngle              *float64       `json:"watermark_angle" yaml:"watermark_angle"`
	WatermarkOpacity            float64        `json:"watermark_opacity" yaml:"watermark_opacity"`
	WatermarkFontSize           float64        `json:"watermark_font_size" yaml:"watermark_font_size"`
	WatermarkSpacingX           float64        `json:"watermark_spacing_x" yaml:"watermark_spacing_x"`
	WatermarkSpacingY           float64        `json:"watermark_spacing_y" yaml:"watermark_spacing_y"`
	LogLevel                    string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file named by the -c or -config flag into config.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
// Without the flag nothing is loaded. An unreadable or invalid file panics.
func parseFile(config *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SigningBaseURL, c.SigningBaseURL)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.StorageDir, c.StorageDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	setPositive(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration.Duration)
	setPositive(&config.SigningRequestTTL, c.SigningRequestTTL.Duration)
	setPositive(&config.ExpirySweepInterval, c.ExpirySweepInterval.Duration)
	setPositive(&config.TokenBytes, c.TokenBytes)
	setPositive(&config.CompositeWorkers, c.CompositeWorkers)
	setPositive(&config.MaxUploadBytes, c.MaxUploadBytes)
	setPositive(&config.AnchorCacheSize, c.AnchorCacheSize)
	setPositive(&config.SignatureMaxWidth, c.SignatureMaxWidth)
	setPositive(&config.SignatureMaxHeight, c.SignatureMaxHeight)
	setPositive(&config.SignatureMaxPixels, c.SignatureMaxPixels)
	setPositive(&config.WatermarkOpacity, c.WatermarkOpacity)
	setPositive(&config.WatermarkFontSize, c.WatermarkFontSize)
	setPositive(&config.WatermarkSpacingX, c.WatermarkSpacingX)
	setPositive(&config.WatermarkSpacingY, c.WatermarkSpacingY)

	// Zero is a valid angle, so presence is tracked with a pointer.
	if c.WatermarkAngle != nil {
		config.WatermarkAngle = *c.WatermarkAngle
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPositive[T int | int64 | float64 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
