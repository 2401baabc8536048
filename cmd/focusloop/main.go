package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/sevlyar/go-daemon"

	"focusloop/internal/app"
	"focusloop/internal/config"
	"focusloop/internal/logging"
)

func main() {
	configPath := flag.String("c", "", "Path to configuration file (e.g., ./config.yaml)")
	logPath := flag.String("log", "", "Path to log file (default: stderr)")
	logLevel := flag.String("level", "", "Log level (overrides log_level from config)")
	daemonize := flag.Bool("d", false, "Run as a background daemon")
	flag.Parse()

	if *daemonize {
		dctx := &daemon.Context{
			PidFileName: filepath.Join(os.TempDir(), "focusloop.pid"),
			PidFilePerm: 0o644,
			WorkDir:     "./",
			Umask:       0o027,
			Args:        os.Args,
		}
		child, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			fmt.Printf("focusloop started in background (pid %d)\n", child.Pid)
			return
		}
		defer dctx.Release()
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logFile, err := logging.Setup(*logPath, level)
	if err != nil {
		log.Error().Err(err).Msg("File logging unavailable, logging to stderr")
	}
	if logFile != nil {
		defer logFile.Close()
	}
	if f := loader.File(); f != "" {
		log.Info().Str("file", f).Msg("Using config file")
	}

	application, err := app.NewApp(cfg, loader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	if err := application.Run(); err != nil {
		log.Error().Err(err).Msg("Application exited with error")
		os.Exit(1)
	}
	log.Info().Msg("focusloop finished successfully")
}
