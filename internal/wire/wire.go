// Package wire encodes a parameter container of payloads as a multipart
// message and back. Slot identity travels in the part name (stringified
// index for positional slots, the key itself for named slots), payload
// metadata in a dedicated header, and the container tag in a vendored
// content type.
package wire

import (
	"errors"
	"fmt"
	"strings"
)

// PayloadMetaHeader carries the JSON-encoded payload metadata of a part
// or of a single-payload response.
const PayloadMetaHeader = "Runner-Payload-Meta"

// RequestIDHeader carries the client-generated ID used to deduplicate
// retried batch submissions.
const RequestIDHeader = "Runner-Request-Id"

// contentTypePrefix namespaces container tags in content types.
const contentTypePrefix = "application/vnd.runnerd."

// ErrMissingSlot is returned when the decoded positional slots are not
// contiguous: every index up to the maximum observed index must be
// present to reconstruct the original call signature.
var ErrMissingSlot = errors.New("wire: missing positional slot")

// ErrMalformedMetadata is returned when a metadata header is not valid
// JSON or a content type does not carry a container tag.
var ErrMalformedMetadata = errors.New("wire: malformed payload metadata")

// ContentType renders the content type for a container tag.
func ContentType(tag string) string {
	return contentTypePrefix + tag
}

// ContainerTag extracts the container tag from a vendored content type.
func ContainerTag(contentType string) (string, error) {
	tag, ok := strings.CutPrefix(contentType, contentTypePrefix)
	if !ok || tag == "" {
		return "", fmt.Errorf("%w: content type %q is not under %s", ErrMalformedMetadata, contentType, contentTypePrefix)
	}
	return tag, nil
}
