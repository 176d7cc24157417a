package coverage

import (
	"encoding/json"
	"fmt"
	"sync"
)

var (
	kindsMu sync.RWMutex
	kinds   = map[string]func() Info{}
)

// RegisterKind makes a dimension kind decodable by Set.UnmarshalJSON.
// The dimension type must implement json.Marshaler and json.Unmarshaler.
func RegisterKind(kind string, empty func() Info) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = empty
}

type wireInfo struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (s Set) MarshalJSON() ([]byte, error) {
	w := make(map[string]wireInfo, len(s))
	for key, info := range s {
		data, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("failed to encode dimension %s - %v", key, err)
		}
		w[key] = wireInfo{Kind: info.Kind(), Data: data}
	}
	return json.Marshal(w)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var w map[string]wireInfo
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	kindsMu.RLock()
	defer kindsMu.RUnlock()

	set := make(Set, len(w))
	for key, wi := range w {
		empty, ok := kinds[wi.Kind]
		if !ok {
			return fmt.Errorf("dimension %s has unknown kind %q", key, wi.Kind)
		}
		info := empty()
		if err := json.Unmarshal(wi.Data, info); err != nil {
			return fmt.Errorf("failed to decode dimension %s - %v", key, err)
		}
		set[key] = info
	}
	*s = set
	return nil
}
