// Package main provides phasmadbd - the PhasmaDB session server.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/config"
	"github.com/phasma-db/phasmadb/internal/server"
	"github.com/phasma-db/phasmadb/internal/store"
	"github.com/phasma-db/phasmadb/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir      = flag.String("data-dir", "~/.phasmadb", "Data directory")
		configFile   = flag.String("config", "", "Config file path; only its directory is used, and config.yaml in that directory is read (default: <data-dir>/config.yaml)")
		listenAddr   = flag.String("listen", "", "Session endpoint address, overrides config")
		publicKeyDir = flag.String("public-keys", "", "Registered users' public key directory, overrides config")
		logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})

	if *showVersion {
		log.Infof("phasmadbd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *listenAddr != "" {
		cfg.Listen.Addr = *listenAddr
	}
	if *publicKeyDir != "" {
		cfg.Auth.PublicKeyDir = *publicKeyDir
	}
	cfg.Logging.Level = *logLevel

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	log.Info("config loaded", "path", config.ConfigPath(configDir))

	st, err := store.New(&store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to initialize store", "error", err)
	}
	defer st.Close()
	log.Info("store initialized", "data_dir", cfg.Storage.DataDir)

	cat, err := catalog.New(st.DB())
	if err != nil {
		log.Fatal("failed to initialize catalog", "error", err)
	}

	keys, err := server.NewKeyStore(cfg.Auth.PublicKeyDir)
	if err != nil {
		log.Fatal("failed to open public key directory", "error", err)
	}
	log.Info("public key directory opened", "path", cfg.Auth.PublicKeyDir)

	srv := server.New(st, cat, keys, log)
	if err := srv.Start(cfg.Listen.Addr); err != nil {
		log.Fatal("failed to start server", "error", err)
	}

	log.Info("phasmadbd started", "endpoint", "ws://"+cfg.Listen.Addr+"/phasma-db")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	if err := srv.Stop(); err != nil {
		log.Error("error stopping server", "error", err)
	}
	log.Info("goodbye!")
}
