package offlinecache

import (
	"net/url"
	"testing"
)

func TestResolveBuiltInRules(t *testing.T) {
	router := NewRouter([]string{"/", "/index.html", "/app.js"}, "/api/", nil)
	tests := []struct {
		path     string
		cache    string
		strategy Strategy
	}{
		{"/", CacheStatic, StrategyCacheFirst},
		{"/index.html", CacheStatic, StrategyCacheFirst},
		{"/app.js", CacheStatic, StrategyCacheFirst},
		{"/songs/track.mp3", CacheAudio, StrategyAudio},
		{"/songs/track.MP3", CacheAudio, StrategyAudio},
		{"/songs/track.flac", CacheAudio, StrategyAudio},
		{"/covers/album.png", CacheImages, StrategyStaleWhileRevalidate},
		{"/covers/album.jpeg", CacheImages, StrategyStaleWhileRevalidate},
		{"/api/songs", CacheDynamic, StrategyNetworkFirst},
		{"/api/playlists/1", CacheDynamic, StrategyNetworkFirst},
		{"/profile", CacheDynamic, StrategyStaleWhileRevalidate},
	}
	for _, test := range tests {
		u, err := url.Parse(test.path)
		if err != nil {
			t.Fatal(err)
		}
		route := router.Resolve(u)
		if route.Cache != test.cache || route.Strategy != test.strategy {
			t.Fatalf("%s resolved to %s/%s", test.path, route.Cache, route.Strategy)
		}
	}
}

func TestResolveRootMatchesExactly(t *testing.T) {
	router := NewRouter([]string{"/"}, "/api/", nil)
	if route := router.Resolve(mustParse(t, "/profile")); route.Cache == CacheStatic {
		t.Fatalf("/profile resolved to the static cache")
	}
	if route := router.Resolve(mustParse(t, "/")); route.Cache != CacheStatic {
		t.Fatalf("/ resolved to %s", route.Cache)
	}
}

func TestResolveOverridesWinOverBuiltIns(t *testing.T) {
	overrides := []RouteRule{
		{Prefix: "/songs/", Cache: CacheDynamic, Strategy: StrategyNetworkOnly},
	}
	router := NewRouter(nil, "/api/", overrides)
	route := router.Resolve(mustParse(t, "/songs/track.mp3"))
	if route.Strategy != StrategyNetworkOnly {
		t.Fatalf("Override ignored, strategy is %s", route.Strategy)
	}
}

func TestResolveQueryDoesNotAffectRouting(t *testing.T) {
	router := NewRouter(nil, "/api/", nil)
	route := router.Resolve(mustParse(t, "/songs/track.mp3?token=abc"))
	if route.Strategy != StrategyAudio {
		t.Fatalf("Strategy is %s", route.Strategy)
	}
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
