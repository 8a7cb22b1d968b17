package cache

import (
	"encoding/json"
)

// RedisMessage is the envelope every published event travels in: the type
// name selects the concrete decode target, Event holds its raw payload.
type RedisMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}
