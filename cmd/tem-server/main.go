package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/epoc-ed/go-simpletem/config"
	"github.com/epoc-ed/go-simpletem/hw"
	_ "github.com/epoc-ed/go-simpletem/hw/sim"
	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/server"
)

var version = "dev"

type serveFlags struct {
	configPath string
	envFile    string
	host       string
	port       int
	backend    string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags

	root := &cobra.Command{
		Use:           "tem-server",
		Short:         "Serve microscope commands over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}

	root.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.Flags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment overrides")
	root.Flags().StringVar(&flags.host, "host", "", "interface to listen on, * for all")
	root.Flags().IntVarP(&flags.port, "port", "p", server.DefaultPort, "TCP port")
	root.Flags().StringVar(&flags.backend, "backend", "", fmt.Sprintf("hardware backend %v", hw.Backends()))
	root.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func runServe(cmd *cobra.Command, flags serveFlags) error {
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// flags win over file and environment
	fs := cmd.Flags()
	if fs.Changed("host") {
		cfg.Server.Host = flags.host
	}
	if fs.Changed("port") {
		cfg.Server.Port = flags.port
	}
	if fs.Changed("backend") {
		cfg.Backend.Name = flags.backend
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l := logger.NewSlog(cfg.LogLevel(), false)
	logger.SetLogger(l)

	inst, err := hw.Open(cfg.Backend.Name, cfg.BackendConfig(l.With("component", "hw")))
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Close(); err != nil {
			l.Warn("close backend", "error", err)
		}
	}()

	scfg, err := server.NewConfig(append(cfg.ServerOptions(l), server.WithVersion(version))...)
	if err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	srv, err := server.New(inst, scfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info("starting tem-server", "version", version, "backend", cfg.Backend.Name)

	return srv.Serve(ctx)
}
