// Command vigil monitors a set of policy URLs for content and metadata
// changes. It polls on a fixed interval, persists snapshot history and
// a change log, and serves a small status API.
//
// Usage: vigil [-config config.yaml] [-once]
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/vigil/internal/app"
	"github.com/raysh454/vigil/internal/config"
	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/monitor"
	"github.com/raysh454/vigil/internal/report"
	"github.com/raysh454/vigil/internal/scheduler"
	"github.com/raysh454/vigil/internal/server"
	"github.com/raysh454/vigil/internal/webclient"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	once := flag.Bool("once", false, "run a single monitoring cycle and exit")
	flag.Parse()

	logger := logging.NewJSONLogger("vigil")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	log := logging.Leveled(logger, cfg.LogLevel)

	webclient.RegisterDefaultBackends()
	wc, err := webclient.New(cfg.WebClient, log)
	if err != nil {
		log.Error("webclient setup failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	store := detector.NewSnapshotStore(cfg.Paths.HistoryFile, log)
	det := detector.New(store, cfg.DetectorThresholds(), log)

	entries := make([]scheduler.Entry, 0, len(cfg.MonitoredURLs))
	for _, u := range cfg.MonitoredURLs {
		entries = append(entries, scheduler.Entry{
			URL:      u.URL,
			Type:     u.Type,
			Priority: u.Priority,
			Interval: time.Duration(u.CheckInterval) * time.Second,
		})
	}
	sched := scheduler.New(entries, time.Duration(cfg.Scheduling.CheckInterval)*time.Second, log)

	changeLog, err := report.OpenChangeLog(cfg.Paths.ChangeLogDB, log)
	if err != nil {
		log.Error("change log setup failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer changeLog.Close()

	reports, err := report.NewWriter(cfg.Paths.ReportsDir, log)
	if err != nil {
		log.Error("report writer setup failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	svc := app.NewService(monitor.New(wc, log), det, sched, changeLog, reports, log)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		stats := svc.RunCycle(ctx)
		if stats != nil && stats.Errors > 0 {
			os.Exit(1)
		}
		return
	}

	var httpServer *http.Server
	if cfg.Server.Enabled {
		srv := server.NewServer(server.Config{ListenAddr: cfg.Server.Addr, Logger: log}, svc, changeLog)
		httpServer = srv.HTTPServer()
		go func() {
			log.Info("status api listening", logging.Field{Key: "addr", Value: cfg.Server.Addr})
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status api failed", logging.Field{Key: "error", Value: err.Error()})
			}
		}()
	}

	log.Info("monitor started",
		logging.Field{Key: "urls", Value: len(cfg.MonitoredURLs)},
		logging.Field{Key: "polling_interval", Value: cfg.Scheduling.PollingInterval},
		logging.Field{Key: "check_interval", Value: cfg.Scheduling.CheckInterval})

	svc.RunCycle(ctx)

	ticker := time.NewTicker(time.Duration(cfg.Scheduling.PollingInterval) * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			svc.RunCycle(ctx)
		case <-ctx.Done():
			break loop
		}
	}

	log.Info("shutting down")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("status api shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
