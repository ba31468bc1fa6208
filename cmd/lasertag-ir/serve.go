package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/config"
	"github.com/dbehnke/lasertag-ir/pkg/database"
	"github.com/dbehnke/lasertag-ir/pkg/ir"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/metrics"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
	"github.com/dbehnke/lasertag-ir/pkg/web"
)

const (
	retentionInterval = time.Hour
	staleInterval     = 5 * time.Second
)

func serve(cfg *config.Config, log *logger.Logger) error {
	id, err := protocol.ParseProtocolID(cfg.Codec.Protocol)
	if err != nil {
		return err
	}
	codec, err := protocol.Lookup(id, cfg.Codec.TolerancePercent)
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize wait group for goroutines
	var wg sync.WaitGroup

	metricsCollector := metrics.NewCollector()

	// Start Prometheus metrics server if enabled
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	// Hit log
	var (
		hitRepo   *database.HitRepository
		hitLogger *database.HitLogger
	)
	if cfg.Database.Enabled {
		db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log.WithComponent("database"))
		if err != nil {
			return fmt.Errorf("failed to open hit log: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("Failed to close database", logger.Error(err))
			}
		}()
		hitRepo = database.NewHitRepository(db.GetDB())
		hitLogger = database.NewHitLogger(hitRepo,
			time.Duration(cfg.Database.DedupeMS)*time.Millisecond,
			log.WithComponent("database"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			runHousekeeping(ctx, hitRepo, hitLogger,
				time.Duration(cfg.Database.RetentionDays)*24*time.Hour,
				log.WithComponent("database"))
		}()
	}

	// No IR hardware driver is wired in; shots travel through the loopback
	hw := ir.NewLoopback(cfg.Loopback.Queue, time.Duration(cfg.Loopback.JitterUS)*time.Microsecond)

	tx := ir.NewTransmitter(hw, codec, uint8(cfg.Device.Seed), log.WithComponent("transmitter"), metricsCollector)

	api := web.NewAPI(log.WithComponent("web"), codec)
	api.SetShooter(tx, uint8(cfg.Device.Team), uint8(cfg.Device.Weapon))
	api.SetMetrics(metricsCollector)
	if hitRepo != nil {
		api.SetHitStore(hitRepo)
	}
	srv := web.NewServer(cfg.Web, api, log.WithComponent("web"))

	if cfg.Receiver.Enabled {
		rx := ir.NewReceiver(hw, codec, ir.ReceiverOptions{
			DropInvalid:    cfg.Receiver.DropInvalid,
			CaptureTimeout: time.Duration(cfg.Receiver.CaptureTimeoutMS) * time.Millisecond,
		}, log.WithComponent("receiver"), metricsCollector)

		var hub *web.WebSocketHub
		if cfg.Web.Enabled {
			hub = srv.GetHub()
		}
		rx.OnHit(newHitHandler(hitLogger, hitRepo, hub, log.WithComponent("receiver")))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rx.Listen(ctx); err != nil && err != context.Canceled {
				log.Error("Receiver error", logger.Error(err))
			}
		}()
	}

	// Start web server if enabled
	if cfg.Web.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	log.Info("lasertag-ir initialized",
		logger.String("device", cfg.Device.Name),
		logger.String("protocol", codec.Protocol().String()),
		logger.Hex("seed", uint64(tx.Seed()), 2))

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Received shutdown signal",
		logger.String("signal", sig.String()))

	// Cancel context to trigger graceful shutdown
	cancel()

	// Wait for all components to stop
	wg.Wait()

	log.Info("lasertag-ir stopped")
	return nil
}

// newHitHandler stores each hit and pushes it, with the updated team
// totals, to websocket clients. hl, repo and hub may each be nil.
func newHitHandler(hl *database.HitLogger, repo *database.HitRepository, hub *web.WebSocketHub, log *logger.Logger) ir.HitHandler {
	return func(hit ir.Hit) {
		if hl != nil && !hl.LogHit(hit) {
			return
		}
		if hub == nil {
			return
		}
		hub.BroadcastHit(hit)

		if repo == nil {
			return
		}
		scores, err := repo.Scoreboard()
		if err != nil {
			log.Warn("Failed to build scoreboard", logger.Error(err))
			return
		}
		hub.BroadcastScoreboard(scores)
	}
}

// runHousekeeping prunes hits older than keep (when keep > 0) and expires
// dedupe state until ctx is done
func runHousekeeping(ctx context.Context, repo *database.HitRepository, hl *database.HitLogger, keep time.Duration, log *logger.Logger) {
	prune := func() {
		if keep <= 0 {
			return
		}
		deleted, err := repo.DeleteOlderThan(time.Now().Add(-keep))
		if err != nil {
			log.Warn("Hit log cleanup failed", logger.Error(err))
			return
		}
		if deleted > 0 {
			log.Info("Pruned hit log", logger.Int("deleted", int(deleted)))
		}
	}

	prune()
	pruneTicker := time.NewTicker(retentionInterval)
	defer pruneTicker.Stop()
	staleTicker := time.NewTicker(staleInterval)
	defer staleTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			prune()
		case now := <-staleTicker.C:
			hl.CleanupStale(now)
		}
	}
}
