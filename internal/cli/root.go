// Package cli implements signctl, the operator command line for the signing
// service. Offline commands work on local files; the rest call the HTTP API
// or the gRPC health endpoint.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/netx"
)

// globalOptions are the persistent flags merged over the profile.
type globalOptions struct {
	profilePath string
	server      string
	grpcAddr    string
	token       string
	timeout     time.Duration

	profile Profile
}

func (o *globalOptions) resolve(cmd *cobra.Command) error {
	p, err := LoadProfile(o.profilePath)
	if err != nil {
		return err
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		p.Token = tok
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		p.ServerURL = o.server
	}
	if flags.Changed("grpc") {
		p.GRPCAddr = o.grpcAddr
	}
	if flags.Changed("token") {
		p.Token = o.token
	}
	if flags.Changed("timeout") {
		p.Timeout.Duration = o.timeout
	}
	o.profile = p
	return nil
}

func (o *globalOptions) client() *netx.Client {
	return netx.NewClient(o.profile.ServerURL, o.profile.Token, o.profile.Timeout.Duration)
}

// NewRootCmd creates the signctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	def := DefaultProfile()

	cmd := &cobra.Command{
		Use:   "signctl",
		Short: "Operate the anchor-based document signing service",
		Long: `signctl inspects and prepares documents for anchor-based signing.

Offline commands (anchors, stamp, apply, token) work on local files.
Online commands (upload, request, download, health) talk to a running server;
their defaults come from the profile file and can be overridden by flags or,
for the access token, by the ` + TokenEnv + ` environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.profilePath, "profile", "", "path to the profile JSON file (default: user config dir)")
	pf.StringVarP(&opts.server, "server", "s", def.ServerURL, "base URL of the HTTP API")
	pf.StringVar(&opts.grpcAddr, "grpc", def.GRPCAddr, "address of the gRPC health endpoint")
	pf.StringVarP(&opts.token, "token", "t", "", "bearer access token")
	pf.DurationVar(&opts.timeout, "timeout", def.Timeout.Duration, "request timeout")

	cmd.AddCommand(newAnchorsCmd())
	cmd.AddCommand(newStampCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newUploadCmd(opts))
	cmd.AddCommand(newRequestCmd(opts))
	cmd.AddCommand(newDownloadCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
