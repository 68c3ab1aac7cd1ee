package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/irportal/anchorsign/internal/filex"
	"github.com/irportal/anchorsign/internal/netx"
)

// printJSON pretty-prints a JSON response body, or writes it as is when it
// is not JSON.
func printJSON(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, err = w.Write(body)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func contentTypeOf(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func docPath(ref, suffix string) string {
	return "/api/documents/" + url.PathEscape(ref) + suffix
}

func newUploadCmd(opts *globalOptions) *cobra.Command {
	var required []string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and print its reference and anchors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			path := "/api/documents"
			if len(required) > 0 {
				path += "?required=" + url.QueryEscape(strings.Join(required, ","))
			}
			body, err := opts.client().Do(cmd.Context(), http.MethodPost, path, data, contentTypeOf(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringSliceVarP(&required, "require", "r", nil, "anchor ids the document must contain")
	return cmd
}

func newRequestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage signature requests",
	}
	cmd.AddCommand(newRequestCreateCmd(opts))
	cmd.AddCommand(newRequestShowCmd(opts))
	cmd.AddCommand(newRequestSubmitCmd(opts))
	cmd.AddCommand(newRequestCancelCmd(opts))
	cmd.AddCommand(newRequestEventsCmd(opts))
	cmd.AddCommand(newRequestListCmd(opts))
	return cmd
}

func newRequestCreateCmd(opts *globalOptions) *cobra.Command {
	var in struct {
		DocumentRef string `json:"document_ref"`
		AnchorID    string `json:"anchor_id"`
		SignerName  string `json:"signer_name"`
		SignerEmail string `json:"signer_email"`
		TTL         string `json:"ttl,omitempty"`
	}
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a signing link for one anchor of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl > 0 {
				in.TTL = ttl.String()
			}
			payload, err := json.Marshal(in)
			if err != nil {
				return err
			}
			body, err := opts.client().Do(cmd.Context(), http.MethodPost, "/api/signature-requests", payload, "application/json")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&in.DocumentRef, "document", "d", "", "document reference")
	f.StringVarP(&in.AnchorID, "anchor", "a", "", "anchor id")
	f.StringVarP(&in.SignerName, "name", "n", "", "signer name")
	f.StringVarP(&in.SignerEmail, "email", "e", "", "signer email")
	f.DurationVar(&ttl, "ttl", 0, "link validity (server default when zero)")
	for _, name := range []string{"document", "anchor", "name", "email"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRequestShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show a pending request and where its signature goes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.client().Do(cmd.Context(), http.MethodGet, "/api/signature-requests/"+url.PathEscape(args[0]), nil, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func newRequestSubmitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <token> <signature-image>",
		Short: "Submit a signature image for a request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			path := "/api/signature-requests/" + url.PathEscape(args[0]) + "/submit"
			body, err := opts.client().Do(cmd.Context(), http.MethodPost, path, sig, contentTypeOf(args[1]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func newRequestCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <token>",
		Short: "Withdraw a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/signature-requests/" + url.PathEscape(args[0]) + "/cancel"
			if _, err := opts.client().Do(cmd.Context(), http.MethodPost, path, nil, ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			return nil
		},
	}
}

func newRequestEventsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <token>",
		Short: "Print the audit trail of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/signature-requests/" + url.PathEscape(args[0]) + "/events"
			body, err := opts.client().Do(cmd.Context(), http.MethodGet, path, nil, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func newRequestListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <document-ref>",
		Short: "List the requests issued for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.client().Do(cmd.Context(), http.MethodGet, docPath(args[0], "/signature-requests"), nil, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func newDownloadCmd(opts *globalOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "download <document-ref> <out>",
		Short: "Download a document through a presigned link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := docPath(args[0], "/url?ttl="+url.QueryEscape(ttl.String()))
			body, err := opts.client().Do(cmd.Context(), http.MethodGet, path, nil, "")
			if err != nil {
				return err
			}
			var link struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(body, &link); err != nil {
				return fmt.Errorf("decode link: %w", err)
			}
			data, err := netx.Download(cmd.Context(), link.URL)
			if err != nil {
				return err
			}
			if err := filex.WriteFileAtomic(args[1], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[1], len(data))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "link-ttl", 5*time.Minute, "validity of the presigned link")
	return cmd
}
