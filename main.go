package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "apex_hunter",
	Short: "Risk-gated paper trading engine",
	Long: `apex_hunter runs one or more signal strategies against live or simulated prices.

Every proposed entry passes an ordered risk chain before it is opened. Open
positions are managed with a trailing stop and a trailing take-profit, and
each strategy trades its own virtual capital account behind a circuit breaker.

Examples:
  apex_hunter run --config config/config.yaml
  apex_hunter journal trades --limit 20
  apex_hunter journal rejections`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the config.yaml file")
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
