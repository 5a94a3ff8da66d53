package offlinecache

import (
	"net/url"
	"strings"
)

// Strategy selects how a request is satisfied from cache and network.
type Strategy string

const (
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	StrategyNetworkOnly          Strategy = "network-only"
	StrategyCacheOnly            Strategy = "cache-only"
	// range-aware variant of cache-first for audio files
	StrategyAudio Strategy = "audio"
)

// RouteRule maps a path prefix to a cache and strategy.
// Rules are configuration-provided overrides of the built-in routing.
type RouteRule struct {
	Prefix   string   `yaml:"prefix"`
	Cache    string   `yaml:"cache"`
	Strategy Strategy `yaml:"strategy"`
}

// Route is a routing decision: the logical cache to use and the strategy
// to run against it.
type Route struct {
	Cache    string
	Strategy Strategy
}

var audioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".flac"}
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// Router maps request URLs to routes. Rules are evaluated in a fixed
// order and the first match wins:
// configured overrides, static assets, audio files, images, API paths,
// and a stale-while-revalidate default.
type Router struct {
	manifest  []string
	apiPrefix string
	overrides []RouteRule
}

func NewRouter(manifest []string, apiPrefix string, overrides []RouteRule) Router {
	return Router{
		manifest:  manifest,
		apiPrefix: apiPrefix,
		overrides: overrides,
	}
}

// Resolve returns the route for a request URL.
// The decision is a pure function of the URL path.
func (rt Router) Resolve(u *url.URL) Route {
	path := u.Path
	for _, rule := range rt.overrides {
		if strings.HasPrefix(path, rule.Prefix) {
			return Route{Cache: rule.Cache, Strategy: rule.Strategy}
		}
	}
	if rt.isStaticAsset(path) {
		return Route{Cache: CacheStatic, Strategy: StrategyCacheFirst}
	}
	if hasExtension(path, audioExtensions) {
		return Route{Cache: CacheAudio, Strategy: StrategyAudio}
	}
	if hasExtension(path, imageExtensions) {
		return Route{Cache: CacheImages, Strategy: StrategyStaleWhileRevalidate}
	}
	if strings.HasPrefix(path, rt.apiPrefix) {
		return Route{Cache: CacheDynamic, Strategy: StrategyNetworkFirst}
	}
	return Route{Cache: CacheDynamic, Strategy: StrategyStaleWhileRevalidate}
}

// isStaticAsset checks the path against the install manifest.
// The app shell root matches exactly, every other manifest entry by
// substring.
func (rt Router) isStaticAsset(path string) bool {
	for _, asset := range rt.manifest {
		if asset == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.Contains(path, asset) {
			return true
		}
	}
	return false
}

func hasExtension(path string, extensions []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
