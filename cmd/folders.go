package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"folderscan/internal/drive"
	"folderscan/internal/logger"
	"folderscan/pkg/models"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the Google Drive folders visible to the credential",
	Long: `List every Google Drive folder the credential can see, with the id to
pass to "folderscan process".

The credential is taken from --token, then ACCESS_TOKEN, then Application
Default Credentials.`,
	Example: `  # List folders as a table
  folderscan folders --token "$(gcloud auth print-access-token)"

  # List folders as YAML
  folderscan folders --format yaml`,
	Args: cobra.NoArgs,
	RunE: runFolders,
}

func init() {
	rootCmd.AddCommand(foldersCmd)

	foldersCmd.Flags().String("token", "", "OAuth2 access token (default: $ACCESS_TOKEN)")
	foldersCmd.Flags().String("format", formatText, "Output format: text, json or yaml")
	foldersCmd.Flags().Duration("timeout", 0, "Listing timeout (default: RUN_TIMEOUT)")
}

func runFolders(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("folders")

	token, _ := cmd.Flags().GetString("token")
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if err := validateFormat(format); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = cfg.RunTimeout
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	a, err := resolveAuth(ctx, token, log)
	if err != nil {
		return handleRunError(err, log)
	}

	catalog, err := drive.NewCatalog(drive.NewClient(), drive.CatalogConfig{})
	if err != nil {
		return err
	}

	folders, err := catalog.ListFolders(ctx, a)
	if err != nil {
		if !errors.Is(err, models.ErrDiscovery) {
			return handleRunError(err, log)
		}
		fmt.Fprintln(os.Stderr, "⚠️  Folder listing failed, the list below is incomplete")
	}

	return writeOutput(os.Stdout, format, folders, func(w io.Writer) {
		if len(folders) == 0 {
			fmt.Fprintln(w, "No folders found.")
			return
		}
		for _, f := range folders {
			fmt.Fprintf(w, "%-40s %s\n", f.ID, f.DisplayName)
		}
	})
}
