package gormstore

import "encoding/json"

func jsonMarshal(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func jsonUnmarshal(b []byte, out *[]string) error {
	if len(b) == 0 {
		*out = []string{}
		return nil
	}
	return json.Unmarshal(b, out)
}
