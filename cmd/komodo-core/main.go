package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/komodo-run/komodo/internal/coreapp"
	"github.com/komodo-run/komodo/internal/envflag"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "komodo-core",
	Short: "Komodo Core",
	Long:  `Core: the control plane for Komodo's container-workload resources, alerting, and deploy pipelines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(context.Background())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Komodo Core %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func run(parent context.Context) error {
	dbPath := envflag.GetenvTrim("KOMODO_DB_PATH")
	if dbPath == "" {
		dbPath = "./komodo.db"
	}
	listenAddr := envflag.GetenvTrim("KOMODO_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8120"
	}
	logLevel, err := zerolog.ParseLevel(orDefault(envflag.GetenvTrim("LOG_LEVEL"), "info"))
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	app, err := coreapp.New(coreapp.Config{
		DBPath:      dbPath,
		ListenAddr:  listenAddr,
		CallTimeout: 15 * time.Second,
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize komodo-core: %w", err)
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx, Version, listenAddr)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
