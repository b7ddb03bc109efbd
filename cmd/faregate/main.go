package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wayfarelabs/faregate/internal/api"
	"github.com/wayfarelabs/faregate/internal/config"
	"github.com/wayfarelabs/faregate/internal/gateway"
	. "github.com/wayfarelabs/faregate/internal/logging"
	"github.com/wayfarelabs/faregate/internal/metrics"
	"github.com/wayfarelabs/faregate/internal/paths"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("faregate %s\n", version)
			return
		case "init":
			if err := writeDefaultConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	Init(&Config{
		Level:      ParseLevel(cfg.Log.Level),
		TimeFormat: "15:04:05",
		File:       cfg.Log.File,
	})

	L_info("faregate %s starting", version)

	if err := cfg.Validate(); err != nil {
		L_fatal("invalid configuration: %v", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		L_fatal("failed to build gateway: %v", err)
	}

	if cfg.Usage.Persist {
		dataDir, err := paths.BaseDir()
		if err != nil {
			L_warn("cannot resolve data directory, metrics stay in memory", "error", err)
		} else {
			metrics.GetInstance().InitPersistence(dataDir)
		}
	}

	if err := gw.Start(); err != nil {
		L_fatal("failed to start gateway: %v", err)
	}

	server := api.New(gw, cfg.API, version)
	server.Start()

	L_info("faregate ready", "listen", cfg.API.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh

	L_info("faregate: received shutdown signal")
	SetShuttingDown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		L_warn("api: shutdown error", "error", err)
	}

	gw.Shutdown()

	if err := metrics.GetInstance().Close(); err != nil {
		L_warn("metrics: close error", "error", err)
	}

	L_info("faregate stopped")
}

// writeDefaultConfig seeds ~/.faregate/faregate.json so a new install
// has something concrete to edit. Never overwrites an existing file.
func writeDefaultConfig() error {
	path, err := paths.DefaultConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
