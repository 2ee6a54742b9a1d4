package params

import (
	"fmt"
	"iter"
	"slices"
)

// Params holds the positional and named arguments of one logical call.
// The same container is reused for batches: a Params[[]int] holds one
// index list per slot, a Params[*payload.Payload] holds one payload per
// slot. Instances are treated as immutable; Map and Agg return new
// containers instead of mutating.
type Params[T any] struct {
	Positional []T
	Named      map[string]T
}

// New creates a Params from a positional sequence and a named mapping.
// Either may be nil.
func New[T any](positional []T, named map[string]T) Params[T] {
	return Params[T]{Positional: positional, Named: named}
}

// FromMap builds a Params from per-key values. Positional keys are
// ordered by index; sparse indices are compacted, not filled (a mapping
// with indices 0 and 2 yields a positional sequence of length 2).
func FromMap[T any](data map[Key]T) Params[T] {
	var indices []int
	named := make(map[string]T)
	for k, v := range data {
		if k.Named() {
			named[k.Name()] = v
		} else {
			indices = append(indices, k.Index())
		}
	}
	slices.Sort(indices)

	positional := make([]T, 0, len(indices))
	for _, i := range indices {
		positional = append(positional, data[IndexKey(i)])
	}
	if len(named) == 0 {
		named = nil
	}
	return Params[T]{Positional: positional, Named: named}
}

// Len returns the total number of slots.
func (p Params[T]) Len() int {
	return len(p.Positional) + len(p.Named)
}

// sortedNames returns the named keys in a deterministic order.
func (p Params[T]) sortedNames() []string {
	names := make([]string, 0, len(p.Named))
	for k := range p.Named {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Items yields every (key, value) pair: positional slots in index order
// first, then named slots in sorted key order. The sequence is finite and
// restartable.
func (p Params[T]) Items() iter.Seq2[Key, T] {
	return func(yield func(Key, T) bool) {
		for i, v := range p.Positional {
			if !yield(IndexKey(i), v) {
				return
			}
		}
		for _, name := range p.sortedNames() {
			if !yield(NameKey(name), p.Named[name]) {
				return
			}
		}
	}
}

// Sample returns the first positional value, or the first named value in
// iteration order when there are no positional slots. Returns ErrEmpty
// for a zero-slot container.
func (p Params[T]) Sample() (T, error) {
	if len(p.Positional) > 0 {
		return p.Positional[0], nil
	}
	for _, name := range p.sortedNames() {
		return p.Named[name], nil
	}
	var zero T
	return zero, ErrEmpty
}

// AllEqual reports whether every slot's value compares equal to the first
// slot's value under eq. Returns ErrEmpty for a zero-slot container.
func (p Params[T]) AllEqual(eq func(a, b T) bool) (bool, error) {
	if p.Len() == 0 {
		return false, ErrEmpty
	}
	var first T
	have := false
	for _, v := range p.Items() {
		if !have {
			first = v
			have = true
			continue
		}
		if !eq(first, v) {
			return false, nil
		}
	}
	return true, nil
}

// SameShape reports whether p and o share identical slot addressing:
// the same positional count and the same set of named keys.
func (p Params[T]) SameShape(o Params[T]) bool {
	if len(p.Positional) != len(o.Positional) || len(p.Named) != len(o.Named) {
		return false
	}
	for k := range p.Named {
		if _, ok := o.Named[k]; !ok {
			return false
		}
	}
	return true
}

// Keys returns the slot addresses in iteration order.
func (p Params[T]) Keys() []Key {
	keys := make([]Key, 0, p.Len())
	for k := range p.Items() {
		keys = append(keys, k)
	}
	return keys
}

// Map applies f to every value and returns a new container with identical
// slot addressing.
func Map[T, U any](p Params[T], f func(T) U) Params[U] {
	out := Params[U]{}
	if p.Positional != nil {
		out.Positional = make([]U, len(p.Positional))
		for i, v := range p.Positional {
			out.Positional[i] = f(v)
		}
	}
	if p.Named != nil {
		out.Named = make(map[string]U, len(p.Named))
		for k, v := range p.Named {
			out.Named[k] = f(v)
		}
	}
	return out
}

// Agg merges a sequence of containers sharing identical slot addressing
// into one container: the value at each slot is f applied to that slot's
// values across all inputs, in input order. An empty input yields an
// empty container. Containers with mismatched slot addressing fail with
// ErrShapeMismatch before any slot is aggregated.
func Agg[T, U any](list []Params[T], f func([]T) (U, error)) (Params[U], error) {
	if len(list) == 0 {
		return Params[U]{}, nil
	}

	head := list[0]
	for i, p := range list[1:] {
		if !head.SameShape(p) {
			return Params[U]{}, fmt.Errorf("%w: container %d does not match container 0", ErrShapeMismatch, i+1)
		}
	}

	out := Params[U]{}
	if head.Positional != nil {
		out.Positional = make([]U, len(head.Positional))
		for i := range head.Positional {
			column := make([]T, len(list))
			for j, p := range list {
				column[j] = p.Positional[i]
			}
			v, err := f(column)
			if err != nil {
				return Params[U]{}, fmt.Errorf("aggregate slot %d: %w", i, err)
			}
			out.Positional[i] = v
		}
	}
	if head.Named != nil {
		out.Named = make(map[string]U, len(head.Named))
		for k := range head.Named {
			column := make([]T, len(list))
			for j, p := range list {
				column[j] = p.Named[k]
			}
			v, err := f(column)
			if err != nil {
				return Params[U]{}, fmt.Errorf("aggregate slot %q: %w", k, err)
			}
			out.Named[k] = v
		}
	}
	return out, nil
}

// Iter zips a container of sequences into a sequence of containers: the
// i-th yielded container holds the i-th element of every slot's sequence.
// Iteration stops at the shortest slot. A zero-slot container yields
// nothing.
func Iter[T any](p Params[[]T]) iter.Seq[Params[T]] {
	return func(yield func(Params[T]) bool) {
		if p.Len() == 0 {
			return
		}
		names := p.sortedNames()
		for i := 0; ; i++ {
			for _, s := range p.Positional {
				if i >= len(s) {
					return
				}
			}
			for _, name := range names {
				if i >= len(p.Named[name]) {
					return
				}
			}

			row := Params[T]{}
			if p.Positional != nil {
				row.Positional = make([]T, len(p.Positional))
				for j, s := range p.Positional {
					row.Positional[j] = s[i]
				}
			}
			if p.Named != nil {
				row.Named = make(map[string]T, len(p.Named))
				for _, name := range names {
					row.Named[name] = p.Named[name][i]
				}
			}
			if !yield(row) {
				return
			}
		}
	}
}
