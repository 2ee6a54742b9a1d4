package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

// DecodeParams parses a multipart body back into a parameter container.
// Part names that are all digits become positional slots; the positional
// index range must be contiguous from 0 to the maximum observed index,
// otherwise decoding fails with ErrMissingSlot.
func DecodeParams(body io.Reader, contentType string) (params.Params[*payload.Payload], error) {
	var zero params.Params[*payload.Payload]

	mediaType, attrs, err := mime.ParseMediaType(contentType)
	if err != nil {
		return zero, fmt.Errorf("%w: parse content type: %v", ErrMalformedMetadata, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || attrs["boundary"] == "" {
		return zero, fmt.Errorf("%w: content type %q is not multipart", ErrMalformedMetadata, mediaType)
	}

	reader := multipart.NewReader(body, attrs["boundary"])
	positional := make(map[int]*payload.Payload)
	named := make(map[string]*payload.Payload)
	maxIndex := -1

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return zero, fmt.Errorf("wire: read part: %w", err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return zero, fmt.Errorf("wire: read part %q body: %w", part.FormName(), err)
		}
		pl, err := decodePayload(part.Header.Get(PayloadMetaHeader), part.Header.Get("Content-Type"), data)
		if err != nil {
			return zero, fmt.Errorf("part %q: %w", part.FormName(), err)
		}

		key := params.ParseKey(part.FormName())
		if key.Named() {
			named[key.Name()] = pl
		} else {
			positional[key.Index()] = pl
			if key.Index() > maxIndex {
				maxIndex = key.Index()
			}
		}
	}

	args := make([]*payload.Payload, 0, maxIndex+1)
	for i := 0; i <= maxIndex; i++ {
		pl, ok := positional[i]
		if !ok {
			return zero, fmt.Errorf("%w: index %d absent but index %d present", ErrMissingSlot, i, maxIndex)
		}
		args = append(args, pl)
	}
	if len(named) == 0 {
		named = nil
	}
	return params.New(args, named), nil
}

// DecodeRequest parses the multipart body of an inbound HTTP request into
// a parameter container.
func DecodeRequest(r *http.Request) (params.Params[*payload.Payload], error) {
	return DecodeParams(r.Body, r.Header.Get("Content-Type"))
}

// ReadPayload reconstructs a single payload from response headers and a
// body reader.
func ReadPayload(header http.Header, body io.Reader) (*payload.Payload, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("wire: read payload body: %w", err)
	}
	return decodePayload(header.Get(PayloadMetaHeader), header.Get("Content-Type"), data)
}

// decodePayload rebuilds a payload from its wire pieces.
func decodePayload(metaHeader, contentType string, data []byte) (*payload.Payload, error) {
	if metaHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrMalformedMetadata, PayloadMetaHeader)
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaHeader), &meta); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", ErrMalformedMetadata, PayloadMetaHeader, err)
	}
	tag, err := ContainerTag(contentType)
	if err != nil {
		return nil, err
	}
	return payload.New(data, meta, tag), nil
}
