package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reviewlog/internal/ir"
)

// AttachOptions holds flags for the attach command.
type AttachOptions struct {
	*RootOptions
	MimeType string
}

// AttachResult describes one stored attachment.
type AttachResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
}

// NewAttachCommand creates the attach command.
func NewAttachCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AttachOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "attach <file>",
		Short: "Store an image attachment",
		Long: `Store an image under its content-addressed ID and print its URL.
PNG, JPEG and SVG images are accepted. The type is taken from the file
extension unless --mime is given.

Examples:
  reviewlog attach --db ./reviewlog.db diagram.svg
  reviewlog attach --db ./reviewlog.db --mime image/png upload.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.MimeType, "mime", "", "attachment mime type (default: from file extension)")

	return cmd
}

func runAttach(ctx context.Context, opts *AttachOptions, cmd *cobra.Command, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	mimeType := ir.AttachmentMimeType(opts.MimeType)
	if mimeType == "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		m, ok := ir.AttachmentMimeTypeForExtension(ext)
		if !ok {
			return out.Failure(ExitFailure, "unsupported attachment",
				fmt.Errorf("cannot infer a supported image type from %q; use --mime", path), nil, nil)
		}
		mimeType = m
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return out.Failure(ExitCommandError, "failed to read attachment", err, nil, nil)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.store.StoreAttachment(ctx, contents, mimeType)
	if err != nil {
		return out.Failure(ExitFailure, "failed to store attachment", err, nil, nil)
	}

	result := AttachResult{
		ID:       res.ID,
		Status:   string(res.Status),
		URL:      res.URL,
		MimeType: string(mimeType),
		Bytes:    len(contents),
	}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (%s, %d bytes)\n%s\n", result.Status, result.ID, result.MimeType, result.Bytes, result.URL)
	})
}
