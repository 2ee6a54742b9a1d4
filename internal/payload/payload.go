package payload

// Payload is the unit of data exchanged with a runner: raw bytes, a
// JSON-serializable metadata mapping, and a container tag naming the
// serialization scheme of the bytes. The tag is opaque here; only the
// registered container codec for that tag can interpret the data.
type Payload struct {
	Data      []byte
	Meta      map[string]any
	Container string
}

// New creates a Payload.
func New(data []byte, meta map[string]any, container string) *Payload {
	return &Payload{
		Data:      data,
		Meta:      meta,
		Container: container,
	}
}

// Rows returns the number of batch-dimension rows recorded in the payload
// metadata, or 0 when absent.
func (p *Payload) Rows() int {
	n, ok := metaInt(p.Meta, "rows")
	if !ok {
		return 0
	}
	return n
}

// metaInt reads an integer metadata value. JSON decoding produces
// float64, so both forms are accepted.
func metaInt(meta map[string]any, key string) (int, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
