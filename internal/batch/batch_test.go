package batch

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"runnerd/internal/params"
	"runnerd/internal/payload"
)

// stubBatcher concatenates payload data and returns canned index lists,
// keyed by the data of the slot's first payload.
type stubBatcher struct {
	indices map[string][]int
}

func (s *stubBatcher) FromBatchPayloads(payloads []*payload.Payload, batchDim int) (*payload.Payload, []int, error) {
	var data []byte
	for _, p := range payloads {
		data = append(data, p.Data...)
	}
	indices := s.indices[string(payloads[0].Data)]
	if indices == nil {
		indices = []int{1, 1}
	}
	return payload.New(data, nil, "stub"), indices, nil
}

func pl(data string) *payload.Payload {
	return payload.New([]byte(data), nil, "stub")
}

func twoCalls() []params.Params[*payload.Payload] {
	return []params.Params[*payload.Payload]{
		params.New([]*payload.Payload{pl("P1a")}, map[string]*payload.Payload{"x": pl("P1b")}),
		params.New([]*payload.Payload{pl("P2a")}, map[string]*payload.Payload{"x": pl("P2b")}),
	}
}

func TestAggregateToBatch(t *testing.T) {
	b := &stubBatcher{}

	batched, indices, err := AggregateToBatch(b, twoCalls(), 0)
	if err != nil {
		t.Fatalf("AggregateToBatch: %v", err)
	}

	if len(batched.Positional) != 1 || len(batched.Named) != 1 {
		t.Fatalf("batched container has %d positional, %d named slots; want 1, 1",
			len(batched.Positional), len(batched.Named))
	}
	if !slices.Equal(indices, []int{1, 1}) {
		t.Errorf("representative indices = %v, want [1 1]", indices)
	}
	if !bytes.Equal(batched.Positional[0].Data, []byte("P1aP2a")) {
		t.Errorf("positional slot data = %q, want %q", batched.Positional[0].Data, "P1aP2a")
	}
	if !bytes.Equal(batched.Named["x"].Data, []byte("P1bP2b")) {
		t.Errorf("named slot data = %q, want %q", batched.Named["x"].Data, "P1bP2b")
	}
}

func TestAggregateToBatch_DivergentIndices(t *testing.T) {
	// The "x" slot reports a different layout than the positional slot.
	b := &stubBatcher{indices: map[string][]int{
		"P1a": {1, 1},
		"P1b": {1, 2},
	}}

	_, _, err := AggregateToBatch(b, twoCalls(), 0)
	if !errors.Is(err, ErrArgumentMismatch) {
		t.Fatalf("AggregateToBatch error = %v, want ErrArgumentMismatch", err)
	}
}

func TestAggregateToBatch_Empty(t *testing.T) {
	b := &stubBatcher{}
	_, _, err := AggregateToBatch(b, nil, 0)
	if !errors.Is(err, ErrNoCalls) {
		t.Errorf("AggregateToBatch error = %v, want ErrNoCalls", err)
	}
}

func TestAggregateToBatch_ShapeMismatch(t *testing.T) {
	b := &stubBatcher{}
	calls := []params.Params[*payload.Payload]{
		params.New([]*payload.Payload{pl("P1a")}, map[string]*payload.Payload{"x": pl("P1b")}),
		params.New([]*payload.Payload{pl("P2a")}, map[string]*payload.Payload{"y": pl("P2b")}),
	}

	_, _, err := AggregateToBatch(b, calls, 0)
	if !errors.Is(err, params.ErrShapeMismatch) {
		t.Errorf("AggregateToBatch error = %v, want params.ErrShapeMismatch", err)
	}
}

func TestSplitBatchResult(t *testing.T) {
	payload.Register(payload.RowsContainer{})

	a, _ := payload.NewRowsPayload([]byte("aa"), 2)
	b, _ := payload.NewRowsPayload([]byte("bbcc"), 2)

	batched, indices, err := payload.Auto.FromBatchPayloads([]*payload.Payload{a, b}, 0)
	if err != nil {
		t.Fatalf("FromBatchPayloads: %v", err)
	}

	split, err := SplitBatchResult(payload.Auto, batched, indices, 0)
	if err != nil {
		t.Fatalf("SplitBatchResult: %v", err)
	}
	if len(split) != 2 {
		t.Fatalf("split into %d payloads, want 2", len(split))
	}
	if !bytes.Equal(split[0].Data, a.Data) || !bytes.Equal(split[1].Data, b.Data) {
		t.Errorf("split = %q, %q; want %q, %q", split[0].Data, split[1].Data, a.Data, b.Data)
	}
}

func TestSplitToCalls(t *testing.T) {
	payload.Register(payload.RowsContainer{})

	calls := []params.Params[*payload.Payload]{
		params.New([]*payload.Payload{mustRows(t, "aa")}, map[string]*payload.Payload{"x": mustRows(t, "AA")}),
		params.New([]*payload.Payload{mustRows(t, "bbcc")}, map[string]*payload.Payload{"x": mustRows(t, "BBCC")}),
	}

	batched, indices, err := AggregateToBatch(payload.Auto, calls, 0)
	if err != nil {
		t.Fatalf("AggregateToBatch: %v", err)
	}

	got, err := SplitToCalls(payload.Auto, batched, indices, 0)
	if err != nil {
		t.Fatalf("SplitToCalls: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("split into %d calls, want 2", len(got))
	}
	if !bytes.Equal(got[0].Positional[0].Data, []byte("aa")) || !bytes.Equal(got[0].Named["x"].Data, []byte("AA")) {
		t.Errorf("call 0 = %q/%q, want aa/AA", got[0].Positional[0].Data, got[0].Named["x"].Data)
	}
	if !bytes.Equal(got[1].Positional[0].Data, []byte("bbcc")) || !bytes.Equal(got[1].Named["x"].Data, []byte("BBCC")) {
		t.Errorf("call 1 = %q/%q, want bbcc/BBCC", got[1].Positional[0].Data, got[1].Named["x"].Data)
	}
}

func mustRows(t *testing.T, data string) *payload.Payload {
	t.Helper()
	p, err := payload.NewRowsPayload([]byte(data), 2)
	if err != nil {
		t.Fatalf("NewRowsPayload(%q): %v", data, err)
	}
	return p
}
