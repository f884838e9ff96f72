package cmd

import (
	"fmt"
	"os"

	"conduit/internal/config"
	"conduit/internal/logger"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is the path to the config file (set via --config flag)
	cfgFile string

	// endpointFlag overrides the configured endpoint name
	endpointFlag string

	// cfg holds the loaded configuration
	cfg *config.ClientConfig

	// log is the logger instance
	log *logger.Logger

	verboseMode bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "conduit is a CLI client",
	Long:  `conduit is a command-line interface client that communicates with the conduitd daemon over its named endpoint.`,
	TraverseChildren: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadClient(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if endpointFlag != "" {
			cfg.Endpoint = endpointFlag
		}
		if verboseMode {
			cfg.Log.Level = "debug"
		}

		log, err = logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			log.Close()
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/conduit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "endpoint name (pipe name or socket path)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "verbose output")
}

// Config returns the current configuration (for use by subcommands)
func Config() *config.ClientConfig {
	return cfg
}

// Log returns the logger instance (for use by subcommands)
func Log() *logger.Logger {
	return log
}
