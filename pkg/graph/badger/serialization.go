package badger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Property maps are stored as JSON, but plain JSON flattens int64 to float64
// and time.Time to a string, and the graph contract requires exact
// round-trips. Each value is therefore wrapped in a one-of envelope whose
// populated field records the Go type.
type propValue struct {
	S *string    `json:"s,omitempty"`
	B *bool      `json:"b,omitempty"`
	I *int64     `json:"i,omitempty"`
	U *uint64    `json:"u,omitempty"`
	F *float64   `json:"f,omitempty"`
	T *time.Time `json:"t,omitempty"`
}

func encodeProps(props map[string]any) ([]byte, error) {
	encoded := make(map[string]propValue, len(props))
	for k, v := range props {
		var pv propValue
		switch val := v.(type) {
		case string:
			pv.S = &val
		case bool:
			pv.B = &val
		case int:
			i := int64(val)
			pv.I = &i
		case int64:
			pv.I = &val
		case uint64:
			pv.U = &val
		case float64:
			pv.F = &val
		case time.Time:
			utc := val.UTC()
			pv.T = &utc
		default:
			return nil, fmt.Errorf("unsupported property type %T for %q", v, k)
		}
		encoded[k] = pv
	}
	return json.Marshal(encoded)
}

func decodeProps(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var encoded map[string]propValue
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, err
	}
	props := make(map[string]any, len(encoded))
	for k, pv := range encoded {
		switch {
		case pv.S != nil:
			props[k] = *pv.S
		case pv.B != nil:
			props[k] = *pv.B
		case pv.I != nil:
			props[k] = *pv.I
		case pv.U != nil:
			props[k] = *pv.U
		case pv.F != nil:
			props[k] = *pv.F
		case pv.T != nil:
			props[k] = *pv.T
		default:
			return nil, fmt.Errorf("property %q has no value", k)
		}
	}
	return props, nil
}
