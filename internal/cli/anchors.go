package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/anchors"
)

type anchorsOutput struct {
	Anchors    []anchors.Anchor `json:"anchors"`
	Duplicates []anchors.Anchor `json:"duplicates,omitempty"`
}

func newAnchorsCmd() *cobra.Command {
	var (
		required []string
		asJSON   bool
		asMD     bool
	)

	cmd := &cobra.Command{
		Use:   "anchors <file.pdf>",
		Short: "List the SIG_ANCHOR markers of a PDF",
		Long: `List every SIG_ANCHOR:<id> marker found in the text layer of a PDF.

Prints a table on a terminal and JSON otherwise; --markdown writes a report
suitable for a data-room checklist. With --require, exits with an
error naming every listed id that is absent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			reg, err := anchors.Detect(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			switch {
			case asMD:
				if err := writeAnchorsMarkdown(out, args[0], reg); err != nil {
					return err
				}
			case asJSON || !isTerminal(out):
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(anchorsOutput{Anchors: reg.All(), Duplicates: reg.Duplicates()}); err != nil {
					return err
				}
			default:
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPAGE\tX%\tY FROM BOTTOM\tRAW X\tRAW Y")
				for _, a := range reg.All() {
					fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.2f\t%.2f\t%.2f\n",
						a.ID, a.Page, a.XPercent*100, a.YFromBottom, a.RawX, a.RawY)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if d := reg.Duplicates(); len(d) > 0 {
					fmt.Fprintf(out, "%d duplicate marker(s) ignored\n", len(d))
				}
			}

			return reg.ValidateRequired(required)
		},
	}

	cmd.Flags().StringSliceVarP(&required, "require", "r", nil, "anchor ids that must be present (comma separated)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "always print JSON")
	cmd.Flags().BoolVarP(&asMD, "markdown", "m", false, "print a Markdown report")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	return cmd
}

func writeAnchorsMarkdown(w io.Writer, path string, reg *anchors.Registry) error {
	md := markdown.NewMarkdown(w)
	md.H1("Anchors in " + filepath.Base(path))
	md.PlainText("")

	rows := make([][]string, 0, reg.Len())
	for _, a := range reg.All() {
		rows = append(rows, []string{
			"`" + a.ID + "`",
			strconv.Itoa(a.Page),
			strconv.FormatFloat(a.XPercent*100, 'f', 1, 64),
			strconv.FormatFloat(a.YFromBottom, 'f', 2, 64),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Anchor", "Page", "X %", "Y from bottom"},
		Rows:   rows,
	})

	if d := reg.Duplicates(); len(d) > 0 {
		md.PlainText("")
		md.H2("Ignored duplicates")
		items := make([]string, 0, len(d))
		for _, a := range d {
			items = append(items, fmt.Sprintf("`%s` on page %d", a.ID, a.Page))
		}
		md.BulletList(items...)
	}
	return md.Build()
}
