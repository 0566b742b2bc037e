package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namtang/stopmap/internal/core/domain"
	"github.com/namtang/stopmap/internal/core/ports"
	"github.com/namtang/stopmap/internal/core/usecases"
)

func TestPointStore_NotReadyBeforeLoad(t *testing.T) {
	store := usecases.NewPointStore(staticSource(), nil, nil)

	_, err := store.All()
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.False(t, store.IsReady())
	assert.Nil(t, store.Snapshot())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, store.WaitReady(ctx), context.DeadlineExceeded)
}

func TestPointStore_Load(t *testing.T) {
	src := staticSource(pt("1", "bts", 13.74, 100.53), pt("2", "bus", 13.75, 100.50))
	store := usecases.NewPointStore(src, nil, nil)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Points, 2)
	assert.Equal(t, int64(1), snap.Version)
	assert.True(t, store.IsReady())
	require.NoError(t, store.WaitReady(context.Background()))

	all, err := store.All()
	require.NoError(t, err)
	all[0].NameEN = "mutated"

	again, err := store.All()
	require.NoError(t, err)
	assert.Equal(t, "1", again[0].NameEN, "All must return a copy")
}

func TestPointStore_LoadError(t *testing.T) {
	src := &mockSource{
		name: "stops.txt",
		loadFn: func(ctx context.Context) ([]domain.Point, error) {
			return nil, errors.New("permission denied")
		},
	}
	store := usecases.NewPointStore(src, nil, nil)

	_, err := store.Load(context.Background())
	var loadErr *domain.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "stops.txt", loadErr.Source)
	assert.False(t, store.IsReady())
}

func TestPointStore_VersionError(t *testing.T) {
	src := &mockSource{
		versionFn: func(ctx context.Context) (int64, error) { return 0, errors.New("stat failed") },
	}
	store := usecases.NewPointStore(src, nil, nil)

	_, err := store.Load(context.Background())
	var loadErr *domain.LoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.Equal(t, 0, src.loadCount())
}

func TestPointStore_Refresh(t *testing.T) {
	var version atomic.Int64
	version.Store(100)
	src := &mockSource{
		versionFn: func(ctx context.Context) (int64, error) { return version.Load(), nil },
		loadFn: func(ctx context.Context) ([]domain.Point, error) {
			return []domain.Point{pt("1", "bus", 13.7, 100.5)}, nil
		},
	}
	store := usecases.NewPointStore(src, nil, nil)

	changed, err := store.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed, "first load installs a snapshot")
	first := store.Snapshot()

	changed, err = store.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, src.loadCount())
	assert.Same(t, first, store.Snapshot())

	version.Store(200)
	changed, err = store.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, src.loadCount())
	assert.Greater(t, store.Snapshot().Generation, first.Generation)
}

func TestPointStore_ConcurrentLoadsInstallNewestVersion(t *testing.T) {
	var version atomic.Int64
	var active, maxActive atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once

	src := &mockSource{
		versionFn: func(ctx context.Context) (int64, error) { return version.Add(1), nil },
		loadFn: func(ctx context.Context) ([]domain.Point, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			isFirst := false
			first.Do(func() { isFirst = true })
			if isFirst {
				close(started)
				<-release
			}
			return []domain.Point{pt("1", "bus", 13.7, 100.5)}, nil
		},
	}
	store := usecases.NewPointStore(src, nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.Load(context.Background())
		assert.NoError(t, err)
	}()
	<-started
	go func() {
		defer wg.Done()
		_, err := store.Load(context.Background())
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load(), "loads must not overlap")
	assert.Equal(t, 2, src.loadCount())
	require.NotNil(t, store.Snapshot())
	assert.Equal(t, int64(2), store.Snapshot().Version, "the later version must stay installed")
}

func TestPointStore_RefreshFailureKeepsSnapshot(t *testing.T) {
	var fail atomic.Bool
	var version atomic.Int64
	src := &mockSource{
		versionFn: func(ctx context.Context) (int64, error) { return version.Add(1), nil },
		loadFn: func(ctx context.Context) ([]domain.Point, error) {
			if fail.Load() {
				return nil, errors.New("truncated file")
			}
			return []domain.Point{pt("1", "bus", 13.7, 100.5)}, nil
		},
	}
	store := usecases.NewPointStore(src, nil, nil)
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	_, err = store.Refresh(context.Background())
	require.Error(t, err)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPointStore_PublishesOnInstall(t *testing.T) {
	var events []ports.DatasetEvent
	pub := &mockPublisher{
		publishFn: func(ctx context.Context, ev ports.DatasetEvent) error {
			events = append(events, ev)
			return nil
		},
	}
	src := staticSource(pt("1", "bus", 13.7, 100.5), pt("2", "bts", 13.8, 100.6))
	src.name = "namtang"
	store := usecases.NewPointStore(src, nil, pub)

	_, err := store.Load(context.Background())
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1, "an unchanged reload publishes nothing")
	assert.Equal(t, ports.DatasetEvent{Source: "namtang", Version: 1, Count: 2}, events[0])
}

func TestPointStore_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{
		publishFn: func(ctx context.Context, ev ports.DatasetEvent) error {
			return errors.New("nats down")
		},
	}
	store := usecases.NewPointStore(staticSource(pt("1", "bus", 13.7, 100.5)), nil, pub)

	_, err := store.Load(context.Background())
	assert.NoError(t, err)
}
