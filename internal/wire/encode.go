package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

// EncodeParams serializes a parameter container into a multipart body:
// one part per slot, named by the slot address. Returns the body and its
// Content-Type (carrying the part boundary).
func EncodeParams(p params.Params[*payload.Payload]) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, pl := range p.Items() {
		meta, err := json.Marshal(pl.Meta)
		if err != nil {
			return nil, "", fmt.Errorf("wire: marshal metadata of slot %s: %w", k, err)
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, k.String()))
		header.Set("Content-Type", ContentType(pl.Container))
		header.Set(PayloadMetaHeader, string(meta))

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("wire: create part %s: %w", k, err)
		}
		if _, err := part.Write(pl.Data); err != nil {
			return nil, "", fmt.Errorf("wire: write part %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("wire: close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// WritePayload writes a single payload as an HTTP response body, with the
// metadata header and vendored content type on the response.
func WritePayload(w http.ResponseWriter, pl *payload.Payload) error {
	meta, err := json.Marshal(pl.Meta)
	if err != nil {
		return fmt.Errorf("wire: marshal payload metadata: %w", err)
	}
	w.Header().Set(PayloadMetaHeader, string(meta))
	w.Header().Set("Content-Type", ContentType(pl.Container))
	if _, err := w.Write(pl.Data); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}
