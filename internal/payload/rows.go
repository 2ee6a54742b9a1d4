package payload

import (
	"fmt"
)

// RowsTag is the container tag of the built-in fixed-stride rows codec.
const RowsTag = "rows"

// RowsContainer batches payloads whose data is a flat sequence of
// fixed-size rows. Metadata key "stride" carries the row size in bytes;
// batching concatenates the rows of all inputs, so only batch dimension 0
// is supported.
type RowsContainer struct{}

// NewRowsPayload builds a rows payload from row data and its stride.
func NewRowsPayload(data []byte, stride int) (*Payload, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("rows: stride must be positive, got %d", stride)
	}
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("rows: data length %d is not a multiple of stride %d", len(data), stride)
	}
	return New(data, map[string]any{"stride": stride, "rows": len(data) / stride}, RowsTag), nil
}

// Name returns the container tag.
func (RowsContainer) Name() string {
	return RowsTag
}

// FromBatchPayloads concatenates the inputs' rows and records how many
// rows each input contributed.
func (RowsContainer) FromBatchPayloads(payloads []*Payload, batchDim int) (*Payload, []int, error) {
	if batchDim != 0 {
		return nil, nil, fmt.Errorf("rows: batch dimension %d not supported", batchDim)
	}
	if len(payloads) == 0 {
		return nil, nil, fmt.Errorf("rows: no payloads to batch")
	}

	stride, err := payloadStride(payloads[0])
	if err != nil {
		return nil, nil, err
	}

	indices := make([]int, len(payloads))
	total := 0
	for i, p := range payloads {
		s, err := payloadStride(p)
		if err != nil {
			return nil, nil, err
		}
		if s != stride {
			return nil, nil, fmt.Errorf("rows: stride mismatch: payload %d has stride %d, payload 0 has %d", i, s, stride)
		}
		if len(p.Data)%stride != 0 {
			return nil, nil, fmt.Errorf("rows: payload %d data length %d is not a multiple of stride %d", i, len(p.Data), stride)
		}
		indices[i] = len(p.Data) / stride
		total += len(p.Data)
	}

	data := make([]byte, 0, total)
	for _, p := range payloads {
		data = append(data, p.Data...)
	}

	batched := New(data, map[string]any{"stride": stride, "rows": total / stride}, RowsTag)
	return batched, indices, nil
}

// SplitBatchPayload cuts a batched rows payload back into per-call
// payloads, indices[i] rows each.
func (RowsContainer) SplitBatchPayload(batched *Payload, indices []int, batchDim int) ([]*Payload, error) {
	if batchDim != 0 {
		return nil, fmt.Errorf("rows: batch dimension %d not supported", batchDim)
	}
	stride, err := payloadStride(batched)
	if err != nil {
		return nil, err
	}

	want := 0
	for _, n := range indices {
		want += n
	}
	if want*stride != len(batched.Data) {
		return nil, fmt.Errorf("rows: indices account for %d rows, payload holds %d", want, len(batched.Data)/stride)
	}

	out := make([]*Payload, len(indices))
	offset := 0
	for i, n := range indices {
		end := offset + n*stride
		out[i] = New(batched.Data[offset:end:end], map[string]any{"stride": stride, "rows": n}, RowsTag)
		offset = end
	}
	return out, nil
}

func payloadStride(p *Payload) (int, error) {
	if p.Container != RowsTag {
		return 0, fmt.Errorf("rows: payload has container tag %q", p.Container)
	}
	stride, ok := metaInt(p.Meta, "stride")
	if !ok || stride <= 0 {
		return 0, fmt.Errorf("rows: payload metadata is missing a valid stride")
	}
	return stride, nil
}
