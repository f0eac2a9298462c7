package gateway

import "net/url"

// ContentInfo describes the resource being delivered to the host player
type ContentInfo struct {
	ContentType        string
	ContentLength      int64
	ByteRangeSupported bool
}

// ByteRange is a requested byte range. Length < 0 means "to end of resource".
type ByteRange struct {
	Offset int64
	Length int64
}

// LoadingRequest is the host player's resource-loading contract. The gateway
// calls exactly one of FinishLoading or FinishLoadingWithError for every
// request it accepts; a request is never left pending.
type LoadingRequest interface {
	// URL returns the intercepted request URL
	URL() *url.URL
	// ByteRange returns the requested byte range, if any
	ByteRange() (ByteRange, bool)
	// RespondWithContentInfo publishes response metadata before data
	RespondWithContentInfo(info ContentInfo)
	// RespondWithData delivers response bytes
	RespondWithData(data []byte)
	// FinishLoading completes the request successfully
	FinishLoading()
	// FinishLoadingWithError fails the request with the underlying error
	FinishLoadingWithError(err error)
}
