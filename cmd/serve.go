package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"folderscan/internal/auth"
	"folderscan/internal/logger"
	"folderscan/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end",
	Long: `Serve the browser flow: sign in with Google, pick a Drive folder and get
its images recognized into the folder's spreadsheet.

Required environment variables:
  GOOGLE_CLIENT_ID - OAuth2 client id
  GOOGLE_CLIENT_SECRET - OAuth2 client secret
  GOOGLE_REDIRECT_URI - Callback URL, ending in /auth/callback
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - OCR service credentials

Optional environment variables:
  PORT - Listen port (default: 8080)
  RUN_TIMEOUT - Upper bound for one folder run (default: 10m)
  LINK_STORE - none, memory, firestore or gcs`,
	Example: `  # Serve on port 8080
  folderscan serve

  # Guard concurrent runs for the same folder inside this process
  LINK_STORE=memory folderscan serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "Listen port (default: PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	port, _ := cmd.Flags().GetString("port")
	if port == "" {
		port = cfg.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, cfg, 0, nil, log)
	if err != nil {
		return err
	}
	defer application.Close(log)

	server := web.NewServer(
		auth.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI),
		application.catalog,
		application.pipeline,
		web.Config{
			Addr:       ":" + port,
			RunTimeout: cfg.RunTimeout,
			SessionTTL: cfg.SessionTTL,
		},
	)

	log.Info().
		Str("port", port).
		Str("ocr_backend", cfg.OCRBackend).
		Str("link_store", cfg.LinkStore).
		Msg("Starting web front end")

	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
