package cqrs

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an event for journals, sinks and stream
// clients: {"type": ..., "instrument": ..., "data": {...}}.
type Envelope struct {
	Type       EventType       `json:"type"`
	Instrument string          `json:"instrument"`
	Data       json.RawMessage `json:"data"`
}

func Marshal(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Instrument: ev.Instrument(), Data: data})
}

func Unmarshal(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeOrderAccepted:
		var e OrderAccepted
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case TypeOrderRejected:
		var e OrderRejected
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case TypeCancellationRequested:
		var e CancellationRequested
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case TypeOrderPlaced:
		var e OrderPlaced
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case TypeOrderMatched:
		var e OrderMatched
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case TypeOrderCanceled:
		var e OrderCanceled
		err = json.Unmarshal(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ev, nil
}
