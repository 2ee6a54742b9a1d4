package params

import (
	"errors"
	"strconv"
)

// ErrEmpty is returned by Sample and AllEqual on a zero-slot container.
var ErrEmpty = errors.New("params: empty container")

// ErrShapeMismatch is returned when containers that must share slot
// addressing do not.
var ErrShapeMismatch = errors.New("params: slot addressing mismatch")

// Key addresses a single slot: either a non-negative positional index or
// a named key. The two addressing spaces never collide.
type Key struct {
	name  string
	index int
	named bool
}

// IndexKey creates a positional slot address.
func IndexKey(i int) Key {
	return Key{index: i}
}

// NameKey creates a named slot address.
func NameKey(name string) Key {
	return Key{name: name, named: true}
}

// ParseKey classifies a wire part name: all-digit names address
// positional slots, everything else is a named slot.
func ParseKey(s string) Key {
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err == nil {
			return IndexKey(n)
		}
	}
	return NameKey(s)
}

// Named reports whether the key addresses a named slot.
func (k Key) Named() bool {
	return k.named
}

// Index returns the positional index; only meaningful when !Named().
func (k Key) Index() int {
	return k.index
}

// Name returns the slot name; only meaningful when Named().
func (k Key) Name() string {
	return k.name
}

// String renders the slot address for the wire: the stringified index for
// positional slots, the key itself for named slots.
func (k Key) String() string {
	if k.named {
		return k.name
	}
	return strconv.Itoa(k.index)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
