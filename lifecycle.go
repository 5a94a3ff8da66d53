package offlinecache

import (
	"fmt"
	"net/http"
	"time"

	serializer "github.com/offline-cache/offline-cache/pkg/response-serializer"
)

// State of the worker lifecycle.
// Strategy routing is live for the activated state only.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.stateMutex.Lock()
	defer w.stateMutex.Unlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.stateMutex.Lock()
	w.state = state
	w.stateMutex.Unlock()
	w.log.Debug().Str("state", string(state)).Msg("Lifecycle transition")
}

type precacheEntry struct {
	key   string
	bytes []byte
}

// Install pre-populates the static cache with the asset manifest.
// The batch is all-or-nothing: nothing is written unless every asset
// fetch succeeds, so a failed install never leaves a half-filled cache.
// On failure the worker stays in the installing state.
func (w *Worker) Install() error {
	w.setState(StateInstalling)
	entries := make([]precacheEntry, 0, len(w.manifest))
	for _, asset := range w.manifest {
		req, err := http.NewRequest("GET", asset, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		res, err := w.fetch(req)
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		if !isSuccess(res.StatusCode) {
			res.Body.Close()
			return fmt.Errorf("precache %s: status %d", asset, res.StatusCode)
		}
		bts, err := serializer.StoredResponseToBytes(serializer.StoredResponse{
			Response: res,
			StoredAt: time.Now(),
		})
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		entries = append(entries, precacheEntry{key: w.keyer.GetKey(req), bytes: bts})
	}

	staticCache := w.physicalName(CacheStatic)
	for _, entry := range entries {
		if err := w.store.Put(staticCache, entry.key, entry.bytes); err != nil {
			return fmt.Errorf("precache write: %w", err)
		}
	}
	w.log.Info().Int("assets", len(entries)).Msg("Precached static assets")
	w.setState(StateInstalled)

	if w.skipWaiting {
		return w.Activate()
	}
	return nil
}

// Activate prunes every cache whose name is outside the current registry
// and makes strategy routing live. Pruning removes stale generations of
// the registry caches as well as caches that no longer exist at all.
func (w *Worker) Activate() error {
	w.setState(StateActivating)
	registry := make(map[string]struct{}, len(cacheNames))
	for _, name := range cacheNames {
		registry[w.physicalName(name)] = struct{}{}
	}
	names, err := w.store.Names()
	if err != nil {
		return fmt.Errorf("enumerate caches: %w", err)
	}
	for _, name := range names {
		if _, ok := registry[name]; ok {
			continue
		}
		w.log.Debug().Str("cache", name).Msg("Deleting stale cache")
		if err := w.store.DeleteCache(name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
	}
	w.setState(StateActivated)
	w.log.Info().Msg("Worker activated")
	return nil
}

// SkipWaiting activates the worker immediately, skipping the waiting
// period between install and activation.
func (w *Worker) SkipWaiting() error {
	if w.State() == StateActivated {
		return nil
	}
	return w.Activate()
}
