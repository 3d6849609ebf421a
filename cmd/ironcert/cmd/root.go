package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	configPath    string
	envFile       string
	storageDriver string
	dataDir       string
)

var rootCmd = &cobra.Command{
	Use:   "ironcert",
	Short: "IronCert issues and verifies certificates",
	Long: `A certificate issuance and validation service: render certificates from
templates, hand out collision-free public identifiers and let anyone verify them.
Complete documentation is available at https://github.com/jmcleod/ironcert`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "Storage driver: memory, bbolt or postgres")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (bbolt)")
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage.Driver = storageDriver
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir = dataDir
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
