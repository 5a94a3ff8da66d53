package cachekey

import (
	"fmt"
	"net/http"
	"strings"
)

var ErrorMethodNotSupported = fmt.Errorf("Method not supported")

// CacheKeyer derives cache keys from requests and requests from keys.
type CacheKeyer struct {
	// Unique identifier for the origin.
	// Usually this should be the origin - well - origin.
	OriginId string
}

func NewCacheKeyer(originId string) CacheKeyer {
	return CacheKeyer{
		OriginId: originId,
	}
}

// GetKey returns the cache key for a GET request: the method, the origin id
// and the normalized request URI (path and query, no fragment).
// Only GET requests are ever cached, so the key does not depend on anything
// else about the request.
func (c CacheKeyer) GetKey(r *http.Request) string {
	uri := r.URL.RequestURI()
	if uri == "" {
		uri = "/"
	}
	return r.Method + ":" + c.OriginId + uri
}

// GetRequestFromKey generates a caching-wise equal request to the request
// that resulted in the provided key.
// It returns an error if the request cannot for some reason be deducted.
func (c CacheKeyer) GetRequestFromKey(key string) (*http.Request, error) {
	if !strings.HasPrefix(key, "GET:") {
		return nil, ErrorMethodNotSupported
	}
	uri := strings.TrimPrefix(strings.TrimPrefix(key, "GET:"), c.OriginId)
	return http.NewRequest("GET", uri, nil)
}

// MethodPrefix returns the key prefix shared by all keys for the given method.
func (c CacheKeyer) MethodPrefix(method string) string {
	return method + ":" + c.OriginId
}
