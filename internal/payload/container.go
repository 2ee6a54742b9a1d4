package payload

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownContainer is returned when no codec is registered for a
// payload's container tag.
var ErrUnknownContainer = errors.New("payload: unknown container tag")

// Container is the codec for one payload serialization scheme. It is the
// only place that understands batch-dimension semantics for its format.
//
// FromBatchPayloads merges the payloads of N calls along batchDim and
// returns the merged payload plus an index list: indices[i] is the number
// of batch-dimension rows contributed by the i-th input, in input order.
// SplitBatchPayload is the inverse: it cuts a batched payload back into
// per-call payloads using a saved index list.
type Container interface {
	Name() string
	FromBatchPayloads(payloads []*Payload, batchDim int) (*Payload, []int, error)
	SplitBatchPayload(batched *Payload, indices []int, batchDim int) ([]*Payload, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Container)
)

// Register makes a container codec available under its tag. Registering
// the same tag twice replaces the previous codec.
func Register(c Container) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Name()] = c
}

// Get returns the codec registered for tag.
func Get(tag string) (Container, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, tag)
	}
	return c, nil
}

// Auto dispatches batching and splitting on the payloads' container tag
// via the registry. It satisfies both batch.Batcher and batch.Splitter.
var Auto auto

type auto struct{}

func (auto) FromBatchPayloads(payloads []*Payload, batchDim int) (*Payload, []int, error) {
	if len(payloads) == 0 {
		return nil, nil, errors.New("payload: no payloads to batch")
	}
	c, err := Get(payloads[0].Container)
	if err != nil {
		return nil, nil, err
	}
	return c.FromBatchPayloads(payloads, batchDim)
}

func (auto) SplitBatchPayload(batched *Payload, indices []int, batchDim int) ([]*Payload, error) {
	c, err := Get(batched.Container)
	if err != nil {
		return nil, err
	}
	return c.SplitBatchPayload(batched, indices, batchDim)
}
