// Package batch implements the dynamic-batching parameter protocol:
// merging the parameter containers of N concurrent calls into one batched
// call, and splitting the batched result back per caller using the index
// lists recorded at merge time.
package batch

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

// ErrArgumentMismatch is returned when the per-slot index lists produced
// by aggregation disagree: the merged calls do not share a single batch
// layout (e.g. one argument was shorter than another for the same call).
// This is a caller error and is never retried.
var ErrArgumentMismatch = errors.New("batch: argument lengths for parameters do not match")

// ErrNoCalls is returned when there is nothing to aggregate.
var ErrNoCalls = errors.New("batch: no calls to aggregate")

// Batcher merges the payloads contributed by N calls for a single slot
// along a batch dimension. indices[i] is the number of batch-dimension
// rows contributed by the i-th input, in input order.
type Batcher interface {
	FromBatchPayloads(payloads []*payload.Payload, batchDim int) (*payload.Payload, []int, error)
}

// Splitter cuts a batched payload back into per-call payloads using a
// saved index list.
type Splitter interface {
	SplitBatchPayload(batched *payload.Payload, indices []int, batchDim int) ([]*payload.Payload, error)
}

// slotBatch pairs the two outputs of the batching capability for one slot.
type slotBatch struct {
	payload *payload.Payload
	indices []int
}

// AggregateToBatch merges the parameter containers of N calls into one
// batched container and the representative index list needed to split
// results later.
//
// All input containers must share identical slot addressing; a mismatch
// fails with params.ErrShapeMismatch before any slot is batched. After
// batching, every slot's index list must be identical across slots — a
// divergence fails with ErrArgumentMismatch reporting the differing lists.
func AggregateToBatch(b Batcher, paramsList []params.Params[*payload.Payload], batchDim int) (params.Params[*payload.Payload], []int, error) {
	var zero params.Params[*payload.Payload]

	if len(paramsList) == 0 {
		return zero, nil, ErrNoCalls
	}

	pairs, err := params.Agg(paramsList, func(column []*payload.Payload) (slotBatch, error) {
		p, indices, err := b.FromBatchPayloads(column, batchDim)
		if err != nil {
			return slotBatch{}, err
		}
		return slotBatch{payload: p, indices: indices}, nil
	})
	if err != nil {
		return zero, nil, err
	}

	batched := params.Map(pairs, func(s slotBatch) *payload.Payload { return s.payload })
	indices := params.Map(pairs, func(s slotBatch) []int { return s.indices })

	equal, err := indices.AllEqual(slices.Equal)
	if err != nil {
		return zero, nil, err
	}
	if !equal {
		return zero, nil, fmt.Errorf("%w: %s", ErrArgumentMismatch, formatIndices(indices))
	}

	representative, err := indices.Sample()
	if err != nil {
		return zero, nil, err
	}
	return batched, representative, nil
}

// SplitBatchResult splits one batched result payload back into per-call
// payloads, one per aggregated call, using the index list returned by
// AggregateToBatch.
func SplitBatchResult(s Splitter, batched *payload.Payload, indices []int, batchDim int) ([]*payload.Payload, error) {
	out, err := s.SplitBatchPayload(batched, indices, batchDim)
	if err != nil {
		return nil, err
	}
	if len(out) != len(indices) {
		return nil, fmt.Errorf("batch: split produced %d payloads for %d calls", len(out), len(indices))
	}
	return out, nil
}

// SplitToCalls splits a batched parameter container back into per-call
// containers: every slot's payload is cut by the index list, then the
// per-slot pieces are zipped back together in lock-step. Used when a
// batched invocation must be unwound into its original calls.
func SplitToCalls(s Splitter, batched params.Params[*payload.Payload], indices []int, batchDim int) ([]params.Params[*payload.Payload], error) {
	var splitErr error
	lists := params.Map(batched, func(p *payload.Payload) []*payload.Payload {
		out, err := s.SplitBatchPayload(p, indices, batchDim)
		if err != nil {
			if splitErr == nil {
				splitErr = err
			}
			return nil
		}
		return out
	})
	if splitErr != nil {
		return nil, splitErr
	}

	calls := make([]params.Params[*payload.Payload], 0, len(indices))
	for call := range params.Iter(lists) {
		calls = append(calls, call)
	}
	if len(calls) != len(indices) {
		return nil, fmt.Errorf("batch: split produced %d calls, want %d", len(calls), len(indices))
	}
	return calls, nil
}

// formatIndices renders the per-slot index lists for the mismatch error.
func formatIndices(indices params.Params[[]int]) string {
	var b strings.Builder
	first := true
	for k, v := range indices.Items() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%v", k, v)
	}
	return b.String()
}
