package mcp

import "encoding/json"

// UnknownField is an argument the tool does not recognize. Unknown
// arguments are reported back as warnings instead of failing the call.
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// decodeParams unmarshals raw tool arguments into dst and returns the
// arguments whose names are not in known
func decodeParams(data []byte, dst interface{}, known ...string) ([]UnknownField, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}

	var unknown []UnknownField
	for key, value := range raw {
		if _, ok := knownSet[key]; ok {
			continue
		}
		unknown = append(unknown, decodeUnknownField(key, value))
	}
	return unknown, nil
}

func decodeUnknownField(name string, data json.RawMessage) UnknownField {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		value = string(data)
	}
	return UnknownField{Name: name, Value: value}
}
