package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/service"
)

type fakeSweeper struct {
	mu      sync.Mutex
	ids     []string
	listErr error
	fail    map[string]error
	swept   []string
	calls   atomic.Int64
}

func (f *fakeSweeper) ShowtimesWithExpiredHolds(context.Context) ([]string, error) {
	f.calls.Add(1)
	return f.ids, f.listErr
}

func (f *fakeSweeper) ExpireShowtimeHolds(_ context.Context, id string) (service.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return service.SweepResult{}, err
	}
	f.swept = append(f.swept, id)
	return service.SweepResult{Showtimes: 1, BookingsCancelled: 1, SeatsReleased: 2}, nil
}

func TestRunOnceAggregates(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeSweeper{ids: []string{"s1", "s2", "s3"}, fail: map[string]error{"s2": boom}}
	w := NewHoldSweeper(f, &HoldSweeperConfig{Concurrency: 2}, nil)

	err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ElementsMatch(t, []string{"s1", "s3"}, f.swept)

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Scans)
	assert.Equal(t, int64(2), stats.BookingsCancelled)
	assert.Equal(t, int64(4), stats.SeatsReleased)
	assert.Equal(t, int64(1), stats.Errors)
	assert.False(t, stats.LastScanTime.IsZero())
	assert.False(t, stats.IsRunning)
}

func TestRunOnceListFailure(t *testing.T) {
	f := &fakeSweeper{listErr: errors.New("db down")}
	w := NewHoldSweeper(f, nil, nil)
	assert.Error(t, w.RunOnce(context.Background()))
	assert.Equal(t, int64(1), w.Stats().Errors)
}

func TestStartStop(t *testing.T) {
	f := &fakeSweeper{}
	w := NewHoldSweeper(f, &HoldSweeperConfig{Interval: 5 * time.Millisecond}, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.True(t, w.Stats().IsRunning)

	assert.Eventually(t, func() bool { return f.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()
	assert.False(t, w.Stats().IsRunning)

	after := f.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, f.calls.Load())

	// second Stop is a no-op
	w.Stop()
}

func TestSweeperAgainstEngine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	store := repository.NewMemoryStore()
	catalog := repository.NewStaticCatalog(15000)
	engine := service.NewEngine(store, catalog, payment.NewMockGateway(nil), service.Config{HoldTTL: time.Minute},
		service.WithClock(clock))
	ctx := context.Background()
	for _, id := range []string{"show-1", "show-2"} {
		_, err := engine.Initialize(ctx, id, 10, 5)
		require.NoError(t, err)
		_, err = engine.Reserve(ctx, service.ReserveRequest{ShowtimeID: id, UserID: "u-1", Seats: []string{"A1", "A2"}})
		require.NoError(t, err)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	w := NewHoldSweeper(engine, nil, nil)
	require.NoError(t, w.RunOnce(ctx))
	stats := w.Stats()
	assert.Equal(t, int64(2), stats.BookingsCancelled)
	assert.Equal(t, int64(4), stats.SeatsReleased)

	m, err := engine.Availability(ctx, "show-2")
	require.NoError(t, err)
	assert.Equal(t, 10, m.Counts.Available)

	list, err := engine.BookingsByUser(ctx, "u-1")
	require.NoError(t, err)
	for _, b := range list {
		assert.Equal(t, model.BookingCancelled, b.Status)
	}
}
