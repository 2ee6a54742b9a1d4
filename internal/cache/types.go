package cache

// Response is a replayable runner reply: the payload body plus the two
// headers that carry its metadata and container tag.
type Response struct {
	Body        []byte
	MetaJSON    string
	ContentType string
}

// Cache stores runner responses keyed by client request ID so that a
// retried submission of an already-executed batch is answered from cache
// instead of re-running the method.
type Cache interface {
	// Get retrieves a cached response by request ID.
	Get(requestID string) (*Response, bool)

	// Set stores a response under a request ID.
	Set(requestID string, resp *Response)

	// Close releases any resources held by the cache.
	Close()
}
