package api

import (
	"fmt"
	"sort"
)

// Payload maps field names to already formatted values.
type Payload map[string]string

// Get returns the value for a field, missing keys read as the empty string.
func (p Payload) Get(name string) string {
	if p == nil {
		return ""
	}
	return p[name]
}

// Merge returns a copy of p with every key of other applied on top.
func (p Payload) Merge(other map[string]string) Payload {
	out := make(Payload, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PayloadFromValues coerces arbitrary values to their string form, nil becomes "".
func PayloadFromValues(values map[string]any) Payload {
	out := make(Payload, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case fmt.Stringer:
			out[k] = val.String()
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
