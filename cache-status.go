package offlinecache

import "fmt"

type CacheStatusStatus string

const (
	CacheStatusHit CacheStatusStatus = "hit"
	CacheStatusFwd CacheStatusStatus = "fwd"
)

type FwdReason string

const (
	// The worker was not in control of the request
	// (not yet activated, or the strategy never touches the cache).
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any response that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any response that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"

	// The request's semantics (e.g. a Range header, or a strategy
	// that requires freshness) did not allow use of the cache.
	FwdReasonRequest FwdReason = "request"
)

// CacheStatus reports how a response was produced, in the shape of an
// RFC 9211 Cache-Status header value.
type CacheStatus struct {
	status    CacheStatusStatus
	detail    string
	fwdReason FwdReason
	// Stored indicates the forwarded response was written to the cache.
	Stored bool
}

func (cs *CacheStatus) Hit() {
	cs.status = CacheStatusHit
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.status = CacheStatusFwd
	cs.fwdReason = reason
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("Offline-Cache; %s", cs.status)
	if cs.status == CacheStatusFwd && cs.fwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
