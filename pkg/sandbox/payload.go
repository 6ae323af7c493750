package sandbox

import "encoding/json"

func payloadExceeds(v map[string]any, limit int) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return len(data) > limit, nil
}
