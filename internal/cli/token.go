package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/server/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		id       auth.Identity
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the server secret",
		Long: `Issue an HS256 access token for an owner or viewer.

The server secret is read without echo from the terminal, or as the first
line of standard input when it is not a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var secret []byte
			if stdinIsTerminal() {
				pw, err := GetPassword(cmd.ErrOrStderr(), "Server secret: ")
				if err != nil {
					return err
				}
				secret = pw
			} else {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = []byte(line)
			}
			if len(secret) == 0 {
				return errors.New("empty secret")
			}

			tok, err := auth.GenerateToken(id, secret, validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&id.UserID, "user", "u", "", "user id")
	f.StringVarP(&id.Email, "email", "e", "", "email, printed on watermarks")
	f.StringVar(&id.Entity, "entity", "", "entity name, printed on watermarks")
	f.DurationVar(&validity, "ttl", time.Hour, "token validity")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
