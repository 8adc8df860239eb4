// Package worker runs the booking engine's background jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/showtime-booking/internal/service"
)

// Sweeper is the part of the engine the hold sweeper drives.
type Sweeper interface {
	ShowtimesWithExpiredHolds(ctx context.Context) ([]string, error)
	ExpireShowtimeHolds(ctx context.Context, showtimeID string) (service.SweepResult, error)
}

// HoldSweeperConfig contains configuration for the hold sweeper.
type HoldSweeperConfig struct {
	// Interval between scans.
	Interval time.Duration
	// Timeout bounds a single scan.
	Timeout time.Duration
	// Concurrency is the number of showtimes swept in parallel.
	Concurrency int
}

// DefaultHoldSweeperConfig returns default configuration.
func DefaultHoldSweeperConfig() *HoldSweeperConfig {
	return &HoldSweeperConfig{
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		Concurrency: 4,
	}
}

// HoldSweeper periodically reclaims lapsed seat holds.
type HoldSweeper struct {
	engine  Sweeper
	config  *HoldSweeperConfig
	log     *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	stats HoldSweeperStats
}

// HoldSweeperStats contains sweeper statistics.
type HoldSweeperStats struct {
	IsRunning         bool      `json:"is_running"`
	Scans             int64     `json:"scans"`
	BookingsCancelled int64     `json:"bookings_cancelled"`
	SeatsReleased     int64     `json:"seats_released"`
	Errors            int64     `json:"errors"`
	LastScanTime      time.Time `json:"last_scan_time"`
}

// NewHoldSweeper creates a new hold sweeper.
func NewHoldSweeper(engine Sweeper, config *HoldSweeperConfig, log *zap.Logger) *HoldSweeper {
	def := DefaultHoldSweeperConfig()
	if config == nil {
		config = def
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HoldSweeper{
		engine: engine,
		config: config,
		log:    log.Named("hold-sweeper"),
		stopCh: make(chan struct{}),
	}
}

// Start runs a scan immediately and then on every tick until ctx is done or
// Stop is called.
func (w *HoldSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting hold sweeper", zap.Duration("interval", w.config.Interval))
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop stops the sweeper and waits for the running scan to finish.
func (w *HoldSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("hold sweeper stopped")
}

func (w *HoldSweeper) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	_ = w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan.  Showtimes are swept concurrently; one
// failing showtime does not stop the others.
func (w *HoldSweeper) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	ids, err := w.engine.ShowtimesWithExpiredHolds(ctx)
	if err != nil {
		w.record(service.SweepResult{}, 1)
		w.log.Error("failed to list expired holds", zap.Error(err))
		return err
	}

	var mu sync.Mutex
	var total service.SweepResult
	var failures int64
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res, err := w.engine.ExpireShowtimeHolds(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				w.log.Warn("sweep failed", zap.String("showtime_id", id), zap.Error(err))
				return nil
			}
			total.Showtimes += res.Showtimes
			total.BookingsCancelled += res.BookingsCancelled
			total.SeatsReleased += res.SeatsReleased
			return nil
		})
	}
	_ = g.Wait()

	w.record(total, failures)
	if total.SeatsReleased > 0 {
		w.log.Info("sweep finished",
			zap.Int("showtimes", total.Showtimes),
			zap.Int("bookings_cancelled", total.BookingsCancelled),
			zap.Int("seats_released", total.SeatsReleased))
	}
	return firstErr
}

func (w *HoldSweeper) record(res service.SweepResult, failures int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Scans++
	w.stats.BookingsCancelled += int64(res.BookingsCancelled)
	w.stats.SeatsReleased += int64(res.SeatsReleased)
	w.stats.Errors += failures
	w.stats.LastScanTime = time.Now()
}

// Stats returns sweeper statistics.
func (w *HoldSweeper) Stats() HoldSweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.IsRunning = w.running
	return s
}
