package config

import (
	"flag"
	"os"

	"github.com/irportal/anchorsign/internal/flagx"
)

var flagNames = []string{"-a", "-G", "-D", "-d", "-s", "-t", "-T", "-U", "-S", "-u", "-p", "-b", "-g", "-e", "-w", "-l"}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-G string     gRPC health bind address (e.g., ":50051")
//	-D string     database driver, "postgres" or "sqlite"
//	-d string     database DSN
//	-s string     JWT HMAC secret key
//	-t duration   default signing request lifetime (e.g., "168h")
//	-T duration   access token validity issued by signctl
//	-U string     public base URL of signing links
//	-S string     storage backend, "s3", "dir" or "memory"
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w int        concurrent compositing jobs
//	-l string     log level: debug, info, warn or error
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with -c/-config.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "G", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDriver, "D", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.SigningRequestTTL, "t", config.SigningRequestTTL, "signing request ttl")
	fs.DurationVar(&config.AccessTokenValidityDuration, "T", config.AccessTokenValidityDuration, "access token validity")
	fs.StringVar(&config.SigningBaseURL, "U", config.SigningBaseURL, "signing link base URL")
	fs.StringVar(&config.StorageBackend, "S", config.StorageBackend, "storage backend")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.IntVar(&config.CompositeWorkers, "w", config.CompositeWorkers, "compositing workers")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
