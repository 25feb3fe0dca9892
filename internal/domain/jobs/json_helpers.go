package jobs

import "encoding/json"

func unmarshalJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
