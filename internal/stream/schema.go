package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errSchema = errors.New("payload does not match event schema")

// schema lists the members an event kind cannot be decoded without. A member
// holding null counts as missing.
type schema struct {
	// event is the expected "e" value, empty for kinds without one.
	event    string
	required []string
	// objects must hold a JSON object.
	objects  []string
}

var schemas = map[Kind]schema{
	KindAccountUpdate:    {event: KindAccountUpdate.String(), required: []string{"E", "B"}},
	KindOrderTrade:       {event: KindOrderTrade.String(), required: []string{"E", "s", "i", "X"}},
	KindAggregatedTrade:  {event: KindAggregatedTrade.String(), required: []string{"E", "s", "a", "p", "q"}},
	KindDepthUpdate:      {event: KindDepthUpdate.String(), required: []string{"E", "s", "U", "u", "b", "a"}},
	KindPartialOrderBook: {required: []string{"lastUpdateId", "bids", "asks"}},
	KindDayTicker:        {event: KindDayTicker.String(), required: []string{"E", "s", "c"}},
	KindKline:            {event: KindKline.String(), required: []string{"E", "s"}, objects: []string{"k"}},
}

// checkMembers rejects a payload of kind that lacks a required member or
// names a different event type. A 24h ticker array is checked per element.
func checkMembers(kind Kind, payload []byte) error {
	s, ok := schemas[kind]
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(payload)
	if kind == KindDayTicker && len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return err
		}
		for i, members := range batch {
			if err := s.check(members); err != nil {
				return fmt.Errorf("ticker %d: %w", i, err)
			}
		}
		return nil
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return err
	}
	return s.check(members)
}

func (s schema) check(members map[string]json.RawMessage) error {
	if s.event != "" {
		var event string
		raw, ok := members["e"]
		if !ok || json.Unmarshal(raw, &event) != nil || event != s.event {
			return fmt.Errorf("%w: event type %s, want %q", errSchema, bytes.TrimSpace(raw), s.event)
		}
	}
	for _, key := range s.required {
		if isAbsent(members[key]) {
			return fmt.Errorf("%w: missing member %q", errSchema, key)
		}
	}
	for _, key := range s.objects {
		raw := bytes.TrimSpace(members[key])
		if len(raw) == 0 || raw[0] != '{' {
			return fmt.Errorf("%w: member %q is not an object", errSchema, key)
		}
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
