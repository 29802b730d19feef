package schema

import (
	"bytes"
	"encoding/json"
)

// Values is a JSON object whose keys keep the order they were set in.
type Values struct {
	keys []string
	m    map[string]any
}

func NewValues() *Values {
	return &Values{m: map[string]any{}}
}

// Set stores v under k, keeping k's original position when it already exists.
func (v *Values) Set(k string, val any) {
	if v.m == nil {
		v.m = map[string]any{}
	}
	if _, ok := v.m[k]; !ok {
		v.keys = append(v.keys, k)
	}
	v.m[k] = val
}

func (v *Values) Get(k string) (any, bool) {
	val, ok := v.m[k]
	return val, ok
}

func (v *Values) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

func (v *Values) Len() int { return len(v.keys) }

// Map returns a shallow copy as a plain map.
func (v *Values) Map() map[string]any {
	out := make(map[string]any, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

func (v *Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
