package offlinecache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/offline-cache/offline-cache/cache"
	cachekey "github.com/offline-cache/offline-cache/pkg/cache-key"
	syncqueue "github.com/offline-cache/offline-cache/pkg/sync-queue"

	"github.com/rs/zerolog"
)

// Logical cache names. Exactly one physical cache store exists per name
// at any time; stale generations are deleted during activation.
const (
	CacheStatic  = "static"
	CacheDynamic = "dynamic"
	CacheAudio   = "audio"
	CacheImages  = "images"
)

// cacheNames is the fixed registry, in declaration order.
var cacheNames = []string{CacheStatic, CacheDynamic, CacheAudio, CacheImages}

type Config struct {
	// Storage for cache entries.
	Store cache.CacheStore
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Cache generation id. Physical cache names are "<name>-<version>".
	// Defaults to "v1".
	Version string
	// Paths pre-cached into the static cache at install time.
	// Also drives the static routing rule.
	Manifest []string
	// Path of the page served to navigation requests that fail offline.
	// Must be part of the manifest to be available.
	OfflinePage string
	// Prefix of API paths, which are handled network-first.
	// Defaults to "/api/".
	APIPrefix string
	// Per-path routing overrides, evaluated before the built-in rules.
	Routes []RouteRule
	// Bound on every origin fetch. Defaults to 30 seconds.
	FetchTimeout time.Duration
	// Quota settings for the audio cache.
	Quota QuotaConfig
	// Activate immediately after a successful install instead of waiting.
	SkipWaiting bool
	// Notifier used to display push notifications.
	// Notifications are logged if nil.
	Notifier Notifier
	// Drop queued offline actions after this many failed sync attempts.
	// Zero retries forever.
	SyncMaxAttempts int
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Worker is the offline cache worker. It serves GET requests through the
// caching strategies selected by its router and passes everything else
// through to the origin untouched.
type Worker struct {
	store       cache.CacheStore
	keyer       cachekey.CacheKeyer
	log         zerolog.Logger
	client      http.Client
	originURL   url.URL
	version     string
	manifest    []string
	offlinePage string
	router      Router
	quota       QuotaConfig
	skipWaiting bool
	notifier    Notifier
	queue       *syncqueue.Queue

	stateMutex sync.Mutex
	state      State
}

// CreateWorker initializes the offline cache worker.
// The worker starts in the installing state: call Install and Activate
// (or send a SKIP_WAITING message) before it serves from cache.
func CreateWorker(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	version := config.Version
	if version == "" {
		version = "v1"
	}
	apiPrefix := config.APIPrefix
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	fetchTimeout := config.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = time.Second * 30
	}
	quota := config.Quota
	if quota.Threshold == 0 {
		quota.Threshold = 0.9
	}
	if quota.KeepAudioEntries == 0 {
		quota.KeepAudioEntries = 40
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", version).
		Logger()

	w := &Worker{
		store:       config.Store,
		keyer:       cachekey.NewCacheKeyer(config.OriginURL.String()),
		log:         logger,
		originURL:   config.OriginURL,
		version:     version,
		manifest:    config.Manifest,
		offlinePage: config.OfflinePage,
		router:      NewRouter(config.Manifest, apiPrefix, config.Routes),
		quota:       quota,
		skipWaiting: config.SkipWaiting,
		notifier:    config.Notifier,
		state:       StateInstalling,
		client: http.Client{
			Timeout: fetchTimeout,
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if w.notifier == nil {
		w.notifier = logNotifier{log: logger}
	}
	w.queue = syncqueue.New(syncqueue.Config{
		OriginURL:   config.OriginURL,
		Client:      &w.client,
		MaxAttempts: config.SyncMaxAttempts,
		Logger:      &logger,
	})

	return w
}

// ServeHTTP implements the http.Handler interface.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, bridgePrefix) {
		w.handleBridge(rw, r)
		return
	}
	// non-GET requests are never intercepted by any strategy
	if r.Method != http.MethodGet {
		w.bypass(rw, r, FwdReasonMethod)
		return
	}
	// routing is live only once activated; until then the previous
	// version (i.e. the plain origin) stays in control
	if w.State() != StateActivated {
		w.bypass(rw, r, FwdReasonBypass)
		return
	}
	route := w.router.Resolve(r.URL)
	w.dispatch(rw, r, route)
}

// physicalName maps a logical cache name to its store name for the
// current generation.
func (w *Worker) physicalName(logical string) string {
	return logical + "-" + w.version
}

// fetch the resource specified in the incoming request from the origin.
// The response body is fully read into memory, so the same bytes can be
// snapshotted into the cache and sent to the client.
func (w *Worker) fetch(r *http.Request) (*http.Response, error) {
	uri := w.originURL.String() + r.URL.RequestURI()
	req, err := http.NewRequest(r.Method, uri, nil)
	if err != nil {
		w.log.Error().Err(err).Str("uri", uri).Msg("Could not create request for fetching")
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")

	res, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	// the body is buffered now, chunked transfer no longer applies
	res.TransferEncoding = nil
	res.Header.Del("Transfer-Encoding")
	return res, nil
}

// bypass pipes the request through to the origin and immediately responds
// to the client. The cache is neither read nor written.
func (w *Worker) bypass(rw http.ResponseWriter, r *http.Request, reason FwdReason) {
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequest(r.Method, w.originURL.String()+r.URL.RequestURI(), body)
	if err != nil {
		http.Error(rw, "Could not create origin request", http.StatusInternalServerError)
		return
	}
	copyHeader(req.Header, r.Header)
	req.Header.Del("Connection")

	res, err := w.client.Do(req)
	if err != nil {
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not reach origin")
		http.Error(rw, "Could not reach origin", http.StatusBadGateway)
		return
	}
	cs := CacheStatus{}
	cs.Forward(reason)
	w.send(rw, r, res, cs)
}

// send writes the response to the client together with its cache status.
func (w *Worker) send(rw http.ResponseWriter, r *http.Request, res *http.Response, cs CacheStatus) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(rw.Header(), res.Header)
	rw.Header().Add("Cache-Status", cs.String())
	rw.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(rw, res.Body)
	if err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
	w.logRequest(r, cs)
	w.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

func (w *Worker) logRequest(r *http.Request, cs CacheStatus) {
	isHit := 0
	if cs.status == CacheStatusHit {
		isHit = 1
	}
	w.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("status", string(cs.status)).
		Str("fwd", string(cs.fwdReason)).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

// isNavigation reports whether the request is a page navigation.
// Navigation requests that fail with no cached copy get the offline page.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
