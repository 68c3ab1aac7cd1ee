package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/compositor"
	"github.com/irportal/anchorsign/internal/filex"
)

func newApplyCmd() *cobra.Command {
	var (
		anchorID string
		opts     compositor.Options
	)

	cmd := &cobra.Command{
		Use:   "apply <in.pdf> <signature> <out.pdf>",
		Short: "Place a signature image at an anchor",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sig, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			reg, err := anchors.Detect(doc)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			a, err := reg.Get(anchorID)
			if err != nil {
				return err
			}

			out, err := compositor.New(opts).Apply(doc, a, sig)
			if err != nil {
				return err
			}
			if err := filex.WriteFileAtomic(args[2], out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed %q on page %d, wrote %s\n", a.ID, a.Page, args[2])
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&anchorID, "anchor", "a", "", "anchor id to sign at")
	f.Float64Var(&opts.MaxWidth, "max-width", compositor.DefaultMaxWidth, "maximum signature width in points")
	f.Float64Var(&opts.MaxHeight, "max-height", compositor.DefaultMaxHeight, "maximum signature height in points")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}
