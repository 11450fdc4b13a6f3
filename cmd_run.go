package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"apex_hunter_go/config"
	"apex_hunter_go/logs"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading engine",
	Long: `Start the engine with the configured strategies and symbols.

The engine runs one cycle immediately and then every cycle_interval_seconds.
State is saved after every cycle and on shutdown (SIGINT or SIGTERM).`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("unable to load config file '%s': %w", configPath, err)
	}
	envCfg := config.LoadEnvConfig()

	logFilename := filepath.Join(cfg.Normal.LogDirectory, "apex_hunter.log")
	stateFilename := filepath.Join(cfg.Normal.StateDirectory, "engine_state.json")

	if err := logs.Init(&cfg.Logs, logFilename); err != nil {
		return fmt.Errorf("failed to initialize logging system: %w", err)
	}
	defer logs.Close()

	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)

	orchestrator, err := NewOrchestrator(cfg, envCfg, stateFilename)
	if err != nil {
		logs.Errorf("Failed to initialize Orchestrator: %v", err)
		return err
	}
	orchestrator.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logs.Infof("Received %s, shutting down", sig)

	orchestrator.Stop()
	return nil
}
