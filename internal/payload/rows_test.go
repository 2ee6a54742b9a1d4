package payload

import (
	"bytes"
	"errors"
	"testing"
)

func TestRows_BatchAndSplit(t *testing.T) {
	a, err := NewRowsPayload([]byte("aaBB"), 2)
	if err != nil {
		t.Fatalf("NewRowsPayload: %v", err)
	}
	b, err := NewRowsPayload([]byte("cc"), 2)
	if err != nil {
		t.Fatalf("NewRowsPayload: %v", err)
	}

	var c RowsContainer
	batched, indices, err := c.FromBatchPayloads([]*Payload{a, b}, 0)
	if err != nil {
		t.Fatalf("FromBatchPayloads: %v", err)
	}

	if !bytes.Equal(batched.Data, []byte("aaBBcc")) {
		t.Errorf("batched data = %q, want %q", batched.Data, "aaBBcc")
	}
	if len(indices) != 2 || indices[0] != 2 || indices[1] != 1 {
		t.Errorf("indices = %v, want [2 1]", indices)
	}
	if batched.Rows() != 3 {
		t.Errorf("batched rows = %d, want 3", batched.Rows())
	}

	split, err := c.SplitBatchPayload(batched, indices, 0)
	if err != nil {
		t.Fatalf("SplitBatchPayload: %v", err)
	}
	if len(split) != 2 {
		t.Fatalf("split into %d payloads, want 2", len(split))
	}
	if !bytes.Equal(split[0].Data, a.Data) || !bytes.Equal(split[1].Data, b.Data) {
		t.Errorf("split = %q, %q; want %q, %q", split[0].Data, split[1].Data, a.Data, b.Data)
	}
}

func TestRows_StrideMismatch(t *testing.T) {
	a, _ := NewRowsPayload([]byte("aa"), 2)
	b, _ := NewRowsPayload([]byte("ccc"), 3)

	var c RowsContainer
	if _, _, err := c.FromBatchPayloads([]*Payload{a, b}, 0); err == nil {
		t.Error("FromBatchPayloads accepted mismatched strides")
	}
}

func TestRows_BadBatchDim(t *testing.T) {
	a, _ := NewRowsPayload([]byte("aa"), 2)

	var c RowsContainer
	if _, _, err := c.FromBatchPayloads([]*Payload{a}, 1); err == nil {
		t.Error("FromBatchPayloads accepted batch dim 1")
	}
}

func TestRows_SplitIndicesMismatch(t *testing.T) {
	batched, _ := NewRowsPayload([]byte("aabbcc"), 2)

	var c RowsContainer
	if _, err := c.SplitBatchPayload(batched, []int{2, 2}, 0); err == nil {
		t.Error("SplitBatchPayload accepted indices exceeding payload rows")
	}
}

func TestRegistry(t *testing.T) {
	Register(RowsContainer{})

	c, err := Get(RowsTag)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name() != RowsTag {
		t.Errorf("Name = %q, want %q", c.Name(), RowsTag)
	}

	_, err = Get("no-such-tag")
	if !errors.Is(err, ErrUnknownContainer) {
		t.Errorf("Get error = %v, want ErrUnknownContainer", err)
	}
}

func TestAuto_DispatchesOnTag(t *testing.T) {
	Register(RowsContainer{})

	a, _ := NewRowsPayload([]byte("aa"), 2)
	b, _ := NewRowsPayload([]byte("bb"), 2)

	batched, indices, err := Auto.FromBatchPayloads([]*Payload{a, b}, 0)
	if err != nil {
		t.Fatalf("Auto.FromBatchPayloads: %v", err)
	}
	if len(indices) != 2 {
		t.Fatalf("indices = %v, want length 2", indices)
	}

	split, err := Auto.SplitBatchPayload(batched, indices, 0)
	if err != nil {
		t.Fatalf("Auto.SplitBatchPayload: %v", err)
	}
	if len(split) != 2 {
		t.Errorf("split into %d payloads, want 2", len(split))
	}

	unknown := New([]byte("x"), nil, "mystery")
	if _, _, err := Auto.FromBatchPayloads([]*Payload{unknown}, 0); !errors.Is(err, ErrUnknownContainer) {
		t.Errorf("Auto error = %v, want ErrUnknownContainer", err)
	}
}
