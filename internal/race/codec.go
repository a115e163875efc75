package race

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage marks a payload that is neither a track message nor a
// state broadcast. Callers drop these (with best-effort logging); they are
// never fatal.
var ErrUnknownMessage = errors.New("unknown message shape")

// MessageKind discriminates the two inbound stream payloads.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindTrack
	KindState
)

func (k MessageKind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// InboundMessage is one decoded message off the stream. Exactly one of
// Track or State is non-nil, matching Kind.
type InboundMessage struct {
	Kind  MessageKind
	Track *TrackPayload
	State *Snapshot
}

// Decode classifies and decodes a raw stream message. Track payloads are
// wrapped envelopes {type:"track",data:{...}}; state payloads are flat
// objects carrying a cars array.
func Decode(raw []byte) (*InboundMessage, error) {
	var probe struct {
		Type string          `json:"type"`
		Cars json.RawMessage `json:"cars"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch {
	case probe.Type == "track":
		var envelope struct {
			Data TrackPayload `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("malformed track payload: %w", err)
		}
		if err := envelope.Data.Validate(); err != nil {
			return nil, fmt.Errorf("invalid track payload: %w", err)
		}
		return &InboundMessage{Kind: KindTrack, Track: &envelope.Data}, nil

	case len(probe.Cars) > 0:
		snap := EmptySnapshot()
		if err := json.Unmarshal(raw, snap); err != nil {
			return nil, fmt.Errorf("malformed state payload: %w", err)
		}
		if err := snap.Validate(); err != nil {
			return nil, fmt.Errorf("invalid state payload: %w", err)
		}
		return &InboundMessage{Kind: KindState, State: snap}, nil

	default:
		return nil, ErrUnknownMessage
	}
}

// ResetRequest is the client-to-server control message asking for a fresh
// race.
type ResetRequest struct {
	Type string `json:"type"`
}

// NewResetRequest returns the {type:"reset"} control message.
func NewResetRequest() ResetRequest {
	return ResetRequest{Type: "reset"}
}
