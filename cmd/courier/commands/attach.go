package commands

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// attach <file>: upload a blob and print its capability reference.
// Encrypt the file first if it is sensitive; the relay stores the
// bytes as they are.
func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <file>",
		Short: "Upload an attachment blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			res, err := api.UploadAttachment(cmd.Context(), http.DetectContentType(data), data)
			if err != nil {
				return err
			}

			fmt.Printf("Uploaded %d bytes\n", res.Size)
			fmt.Printf("Reference: %s/%s (share it inside an encrypted message)\n", profile.Handle, res.ID)
			if res.URL != "" {
				fmt.Printf("Direct URL (expires): %s\n", res.URL)
			}
			return nil
		},
	}
}

// fetch <owner> <id> [out]: download a blob by its reference.
func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <owner> <id> [out]",
		Short: "Download an attachment blob",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(); err != nil {
				return err
			}

			data, _, err := api.DownloadAttachment(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if len(args) == 3 {
				if err := os.WriteFile(args[2], data, 0o600); err != nil {
					return err
				}
				fmt.Printf("Wrote %d bytes to %s\n", len(data), args[2])
				return nil
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
