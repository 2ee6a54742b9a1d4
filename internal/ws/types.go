package ws

// One invocation over the WebSocket transport is two frames: a text frame
// carrying the call envelope, then a binary frame carrying the multipart
// body. The reply is a text frame carrying the reply envelope, then a
// binary frame carrying the result payload data (skipped on error).

// CallEnvelope announces one invocation.
type CallEnvelope struct {
	ID          uint64 `json:"id"`
	Method      string `json:"method"`
	ContentType string `json:"contentType"`
}

// ReplyEnvelope announces one reply. Meta carries the JSON-encoded
// payload metadata; ContentType carries the vendored container tag.
type ReplyEnvelope struct {
	ID          uint64 `json:"id"`
	ContentType string `json:"contentType,omitempty"`
	Meta        string `json:"meta,omitempty"`
	Error       string `json:"error,omitempty"`
}
