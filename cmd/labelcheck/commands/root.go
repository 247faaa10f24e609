package commands

import (
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "labelcheck",
	Short: "Review alcohol label images for compliance",
	Long: `labelcheck runs label images through extraction and the compliance rules
in-process, without the HTTP daemon. Results are printed as JSON lines.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
