package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventUsageImported announces that new usage rows were written.
const EventUsageImported = "usage.imported"

// UsageEvent is published after an import. Consumers only need to know
// that the usage table changed; they refetch rows themselves.
type UsageEvent struct {
	Type      string    `json:"type"`
	Count     int       `json:"count"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewUsageImportedEvent(count int, source string) *UsageEvent {
	return &UsageEvent{
		Type:      EventUsageImported,
		Count:     count,
		Source:    source,
		Timestamp: time.Now(),
	}
}

func (m *UsageEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// UsageEventFromJSON decodes an event and rejects unknown types.
func UsageEventFromJSON(data []byte) (*UsageEvent, error) {
	var msg UsageEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != EventUsageImported {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return &msg, nil
}
