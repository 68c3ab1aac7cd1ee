package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/filex"
	"github.com/irportal/anchorsign/internal/watermark"
)

func newStampCmd() *cobra.Command {
	var spec watermark.Spec
	opts := watermark.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "stamp <in> <out>",
		Short: "Watermark a PDF or image with a viewer's identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, format, err := watermark.New(opts).Stamp(data, spec)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := filex.WriteFileAtomic(args[1], out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", args[1], format.ContentType(), len(out))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&spec.Line1, "line1", "", "first stamp line, usually the viewer email")
	f.StringVar(&spec.Line2, "line2", "", "optional second line, usually the viewer entity")
	f.Float64Var(&opts.Angle, "angle", opts.Angle, "grid angle in degrees")
	f.Float64Var(&opts.Opacity, "opacity", opts.Opacity, "stamp opacity (0..1]")
	f.Float64Var(&opts.FontSize, "font-size", opts.FontSize, "font size")
	_ = cmd.MarkFlagRequired("line1")
	return cmd
}
