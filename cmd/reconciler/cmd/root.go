package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"budget-reconciliation-service/cmd/reconciler/config"
	"budget-reconciliation-service/internal/reporter"
	"budget-reconciliation-service/internal/storage"
	"budget-reconciliation-service/pkg/logger"
)

var (
	cfgFile      string
	verbose      bool
	dbPath       string
	outputFormat string
	version      = "dev"
	commit       = "unknown"
	date         = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Recurring transaction reconciliation tool",
	Long: `Reconciler matches imported ledger transactions against the expected
instances of recurring schedules, using tolerance-based confidence scoring,
and drives the review lifecycle of the resulting matches.

Examples:
  reconciler match --transactions tx-1,tx-2 --from 2026-01-01 --to 2026-01-31
  reconciler status --year 2026 --month 1 --output-format json
  reconciler pending
  reconciler accept 2f1c9a4e-...
  reconciler manual --transaction tx-1 --recurring rec-netflix --date 2026-01-15`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.NewLogger(config.CreateLoggerConfig(viper.GetBool("verbose")))
		if err != nil {
			return err
		}
		logger.SetGlobalLogger(log)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "reconciler.db", "path to the reconciliation database")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output-format", "o", "console", "output format (console, json)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("output_format", rootCmd.PersistentFlags().Lookup("output-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// openStore opens the store configured via --db / RECONCILER_DB.
func openStore() (*storage.SQLiteStore, error) {
	return config.OpenStore(viper.GetString("db"))
}

// newReporter builds a stdout reporter in the configured output format.
func newReporter() (*reporter.Reporter, error) {
	format, err := reporter.ParseOutputFormat(viper.GetString("output_format"))
	if err != nil {
		return nil, err
	}
	return reporter.NewReporter(os.Stdout, format), nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
