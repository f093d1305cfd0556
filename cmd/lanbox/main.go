// LanBox Server
//
// Features:
// - Password-gated LAN file sharing over plain HTTP
// - Sandboxed browse/search/upload/download under one shared root
// - Read-only WebDAV mount for network-drive access
// - Prometheus metrics & structured logging (zap)
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lanbox/lanbox/internal/api"
	"github.com/lanbox/lanbox/internal/auth"
	"github.com/lanbox/lanbox/internal/config"
	"github.com/lanbox/lanbox/internal/logging"
	"github.com/lanbox/lanbox/internal/metrics"
	"github.com/lanbox/lanbox/internal/sandbox"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.Arg(0) == "hashkey" {
		runHashKey(flag.Args()[1:])
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("LanBox starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("root", cfg.RootDir),
		zap.Strings("allowed", cfg.AllowedPaths))

	// The sandbox is the single authority over which paths are reachable
	authority, err := sandbox.New(cfg.RootDir, cfg.AllowedPaths)
	if err != nil {
		logging.Fatal("sandbox init failed", zap.Error(err))
	}

	sessions := auth.NewStore(cfg.SessionTTL)
	gate := auth.NewGate(cfg.AccessKey, sessions)
	if !gate.Enabled() {
		logging.Warn("no access key configured, the share is open to everyone on the network")
	}

	srv := api.NewServer(cfg, authority, gate)

	// Metrics listener stays off the LAN-facing port
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Handler(),
		ReadTimeout: cfg.ReadTimeout,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			httpServer.Close()
		}
		if metricsServer != nil {
			metricsServer.Close()
		}
	}()

	printBanner(cfg.ListenAddr, cfg.RootDir)

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

// runHashKey prints the bcrypt hash of a key so the config file can carry a
// hash instead of the plain text. Usage: lanbox hashkey [key]
func runHashKey(args []string) {
	var key string
	if len(args) > 0 {
		key = args[0]
	} else {
		fmt.Fprint(os.Stderr, "key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "read key:", err)
			os.Exit(1)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "empty key")
		os.Exit(1)
	}
	hash, err := auth.HashKey(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash key:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
