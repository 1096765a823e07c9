package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/wanderwise/edge/internal/cache"
	"github.com/wanderwise/edge/internal/lock"
	"github.com/wanderwise/edge/internal/logging"
	"github.com/wanderwise/edge/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPhase       = errors.New("lifecycle step out of order")
	ErrAssetStatus = errors.New("manifest asset did not return 200")
)

// Fetcher is the network side of the worker.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, headers http.Header) (cache.Response, error)
}

// Worker drives the install and activate steps for one cache version.
type Worker struct {
	Store    cache.Store
	Origin   Fetcher
	Lock     lock.Locker
	Registry *Registry
	Logger   logging.Logger
	Manifest []string
}

func NewWorker(store cache.Store, origin Fetcher, locker lock.Locker, logger logging.Logger) *Worker {
	if locker == nil {
		locker = lock.Local{}
	}
	return &Worker{
		Store:    store,
		Origin:   origin,
		Lock:     locker,
		Registry: NewRegistry(CacheName),
		Logger:   logger,
		Manifest: Assets(),
	}
}

// Start installs and then activates. Activation never begins before install
// has fully completed.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

// Install opens the current generation and stores a response for every
// manifest URL. Any unreachable or non-200 asset fails the whole install and
// the worker becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.Registry.transition(PhaseParsed, PhaseInstalling); err != nil {
		return err
	}
	start := time.Now()
	version := w.Registry.Version()

	err := w.withLock(ctx, "install:"+version, func() error {
		return w.populate(ctx, version)
	})
	if err != nil {
		w.Registry.setPhase(PhaseRedundant)
		w.Logger.Error("install failed", "generation", version, "error", err)
		return fmt.Errorf("install %s: %w", version, err)
	}

	metrics.ObserveInstall(time.Since(start))
	names, err := w.Store.Generations(ctx)
	if err != nil {
		names = []string{version}
	}
	w.Registry.installed(names)
	w.Logger.Info("installed", "generation", version, "assets", len(w.Manifest), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) populate(ctx context.Context, version string) error {
	existing, err := w.Store.Generations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	existed := slices.Contains(existing, version)
	if err := w.Store.Open(ctx, version); err != nil {
		return err
	}

	entries, err := w.fetchManifest(ctx)
	if err == nil {
		err = w.Store.PutAll(ctx, version, entries)
	}
	if err != nil && !existed {
		if delErr := w.Store.Delete(context.WithoutCancel(ctx), version); delErr != nil {
			return errors.Join(err, delErr)
		}
	}
	return err
}

func (w *Worker) fetchManifest(ctx context.Context) ([]cache.Entry, error) {
	entries := make([]cache.Entry, len(w.Manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range w.Manifest {
		g.Go(func() error {
			resp, err := w.Origin.Fetch(gctx, ref, nil)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref, err)
			}
			if resp.Status != http.StatusOK {
				return fmt.Errorf("%w: %s returned %d", ErrAssetStatus, ref, resp.Status)
			}
			entries[i] = cache.Entry{Key: cache.URLKey(ref), Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Activate deletes every generation whose name is not the current version and
// only then claims clients, after which requests are served from the current
// generation.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.Registry.transition(PhaseInstalled, PhaseActivating); err != nil {
		return err
	}
	version := w.Registry.Version()

	var removed []string
	err := w.withLock(ctx, "activate:"+version, func() error {
		var err error
		removed, err = w.sweep(ctx, version)
		return err
	})
	if err != nil {
		w.Registry.setPhase(PhaseInstalled)
		w.Logger.Error("activate failed", "generation", version, "error", err)
		return fmt.Errorf("activate %s: %w", version, err)
	}

	metrics.AddGenerationsDeleted(len(removed))
	w.Registry.claim()
	w.Logger.Info("activated", "generation", version, "removed", removed)
	return nil
}

func (w *Worker) sweep(ctx context.Context, version string) ([]string, error) {
	names, err := w.Store.Generations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}

	var stale []string
	for _, name := range names {
		if name != version {
			stale = append(stale, name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range stale {
		g.Go(func() error {
			if err := w.Store.Delete(gctx, name); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
			w.Logger.Info("removed old generation", "generation", name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stale, nil
}

func (w *Worker) withLock(ctx context.Context, key string, fn func() error) error {
	l, err := w.Lock.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			w.Logger.Warn("release lock", "key", key, "error", err)
		}
	}()
	return fn()
}
