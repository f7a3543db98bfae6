package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"folderscan/internal/config"
	"folderscan/internal/logger"
)

var version = "1.0.0"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "folderscan",
	Short: "Folderscan - OCR every image in a Google Drive folder into a spreadsheet",
	Long: `Folderscan reads every image in a Google Drive folder, recognizes the
text in each one with Google Cloud Vision (or Document AI) and writes the
results as one column into a Google Sheets spreadsheet that lives in the
same folder.

Run it as a web front end with "serve", or against a single folder with
"process".`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("Folderscan executed without a command")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (environment variables win)")
}
