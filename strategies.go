package offlinecache

import (
	"context"
	"net/http"
	"time"

	serializer "github.com/offline-cache/offline-cache/pkg/response-serializer"
)

func (w *Worker) dispatch(rw http.ResponseWriter, r *http.Request, route Route) {
	cacheName := w.physicalName(route.Cache)
	switch route.Strategy {
	case StrategyCacheFirst:
		w.cacheFirst(rw, r, cacheName)
	case StrategyNetworkFirst:
		w.networkFirst(rw, r, cacheName)
	case StrategyStaleWhileRevalidate:
		w.staleWhileRevalidate(rw, r, cacheName)
	case StrategyAudio:
		w.audio(rw, r, cacheName)
	case StrategyCacheOnly:
		w.cacheOnly(rw, r, cacheName)
	case StrategyNetworkOnly:
		w.bypass(rw, r, FwdReasonBypass)
	default:
		w.log.Warn().Str("strategy", string(route.Strategy)).Msg("Unknown strategy, bypassing")
		w.bypass(rw, r, FwdReasonBypass)
	}
}

// matchStored returns the stored response snapshot for the key, if any.
// A corrupted entry is dropped and treated as a miss.
func (w *Worker) matchStored(cacheName, key string) (*http.Response, bool) {
	bts, ok, err := w.store.Match(cacheName, key)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	sRes, err := serializer.BytesToStoredResponse(bts)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not decode cache entry")
		w.store.Delete(cacheName, key)
		return nil, false
	}
	return sRes.Response, true
}

// storeResponse snapshots the response into the named cache.
// Write failures are logged and ignored: the read path never depends on a
// write having succeeded. The response body is readable again when this
// returns.
func (w *Worker) storeResponse(cacheName, key string, res *http.Response) bool {
	bts, err := serializer.StoredResponseToBytes(serializer.StoredResponse{
		Response: res,
		StoredAt: time.Now(),
	})
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return false
	}
	if err := w.store.Put(cacheName, key, bts); err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return false
	}
	w.log.Trace().Str("cache", cacheName).Str("key", key).Msg("Cache write")
	return true
}

// cacheFirst serves from the cache when possible, with no freshness check.
// The network is consulted on a miss only, and at most once.
func (w *Worker) cacheFirst(rw http.ResponseWriter, r *http.Request, cacheName string) {
	key := w.keyer.GetKey(r)
	if res, ok := w.matchStored(cacheName, key); ok {
		cs := CacheStatus{}
		cs.Hit()
		w.send(rw, r, res, cs)
		return
	}
	cs := CacheStatus{}
	cs.Forward(FwdReasonUriMiss)
	res, err := w.fetch(r)
	if err != nil {
		w.sendOfflineFallback(rw, r, err)
		return
	}
	if isSuccess(res.StatusCode) {
		cs.Stored = w.storeResponse(cacheName, key, res)
	}
	w.send(rw, r, res, cs)
}

// networkFirst always refetches; the cache is a fallback for transport
// failures only. Any received response is stored, non-2xx included.
func (w *Worker) networkFirst(rw http.ResponseWriter, r *http.Request, cacheName string) {
	key := w.keyer.GetKey(r)
	res, err := w.fetch(r)
	if err != nil {
		if cached, ok := w.matchStored(cacheName, key); ok {
			w.log.Debug().Err(err).Str("key", key).Msg("Network failed, serving cached entry")
			cs := CacheStatus{}
			cs.Hit()
			cs.Detail("fallback")
			w.send(rw, r, cached, cs)
			return
		}
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not reach origin")
		http.Error(rw, "Could not reach origin", http.StatusBadGateway)
		return
	}
	cs := CacheStatus{}
	cs.Forward(FwdReasonRequest)
	cs.Stored = w.storeResponse(cacheName, key, res)
	w.send(rw, r, res, cs)
}

// staleWhileRevalidate serves the cached entry immediately when one
// exists and refreshes it in the background for next time. The caller is
// never blocked on network latency when a cached copy exists.
func (w *Worker) staleWhileRevalidate(rw http.ResponseWriter, r *http.Request, cacheName string) {
	key := w.keyer.GetKey(r)
	if cached, ok := w.matchStored(cacheName, key); ok {
		cs := CacheStatus{}
		cs.Hit()
		go w.revalidate(r.Clone(context.Background()), cacheName, key)
		w.send(rw, r, cached, cs)
		return
	}
	cs := CacheStatus{}
	cs.Forward(FwdReasonUriMiss)
	res, err := w.fetch(r)
	if err != nil {
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not reach origin")
		http.Error(rw, "Could not reach origin", http.StatusBadGateway)
		return
	}
	if isSuccess(res.StatusCode) {
		cs.Stored = w.storeResponse(cacheName, key, res)
	}
	w.send(rw, r, res, cs)
}

// revalidate refreshes a cache entry in the background.
// The caller has already been answered, so failures are swallowed and the
// cache is left untouched.
func (w *Worker) revalidate(r *http.Request, cacheName, key string) {
	res, err := w.fetch(r)
	if err != nil {
		w.log.Trace().Err(err).Str("key", key).Msg("Background refresh failed")
		return
	}
	if !isSuccess(res.StatusCode) {
		res.Body.Close()
		w.log.Trace().Int("http-status", res.StatusCode).Str("key", key).Msg("Background refresh not cacheable")
		return
	}
	w.storeResponse(cacheName, key, res)
	res.Body.Close()
}

// audio caches whole files only. A Range request is always answered from
// the network and its partial response is never written to the cache, so
// the cache can never hold a truncated file.
func (w *Worker) audio(rw http.ResponseWriter, r *http.Request, cacheName string) {
	key := w.keyer.GetKey(r)
	isRange := r.Header.Get("Range") != ""
	if !isRange {
		if cached, ok := w.matchStored(cacheName, key); ok {
			cs := CacheStatus{}
			cs.Hit()
			w.send(rw, r, cached, cs)
			return
		}
	}
	res, err := w.fetch(r)
	if err != nil {
		// fall back to a complete cached copy even for range requests
		if cached, ok := w.matchStored(cacheName, key); ok {
			w.log.Debug().Err(err).Str("key", key).Msg("Network failed, serving cached audio")
			cs := CacheStatus{}
			cs.Hit()
			cs.Detail("fallback")
			w.send(rw, r, cached, cs)
			return
		}
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not reach origin")
		http.Error(rw, "Could not reach origin", http.StatusBadGateway)
		return
	}
	cs := CacheStatus{}
	if isRange {
		cs.Forward(FwdReasonRequest)
	} else {
		cs.Forward(FwdReasonUriMiss)
		if isSuccess(res.StatusCode) {
			cs.Stored = w.storeResponse(cacheName, key, res)
			if cs.Stored {
				w.enforceQuota()
			}
		}
	}
	w.send(rw, r, res, cs)
}

// cacheOnly never touches the network.
func (w *Worker) cacheOnly(rw http.ResponseWriter, r *http.Request, cacheName string) {
	key := w.keyer.GetKey(r)
	if cached, ok := w.matchStored(cacheName, key); ok {
		cs := CacheStatus{}
		cs.Hit()
		w.send(rw, r, cached, cs)
		return
	}
	w.logRequest(r, CacheStatus{status: CacheStatusFwd, fwdReason: FwdReasonMiss})
	http.Error(rw, "Not in cache", http.StatusGatewayTimeout)
}

// sendOfflineFallback answers a failed fetch: navigation requests get the
// pre-cached offline page, everything else propagates the failure.
func (w *Worker) sendOfflineFallback(rw http.ResponseWriter, r *http.Request, fetchErr error) {
	if isNavigation(r) && w.offlinePage != "" {
		offlineReq, err := http.NewRequest("GET", w.offlinePage, nil)
		if err == nil {
			key := w.keyer.GetKey(offlineReq)
			if res, ok := w.matchStored(w.physicalName(CacheStatic), key); ok {
				w.log.Debug().Err(fetchErr).Str("url", r.URL.String()).Msg("Serving offline page")
				cs := CacheStatus{}
				cs.Hit()
				cs.Detail("offline")
				w.send(rw, r, res, cs)
				return
			}
		}
	}
	w.log.Error().Err(fetchErr).Str("url", r.URL.String()).Msg("Could not reach origin")
	http.Error(rw, "Could not reach origin", http.StatusBadGateway)
}
