// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Event types the core produces or relays. Broadcast events carry no
// target; the three webrtc signaling types must carry one.
const (
	// Client-originated.
	TypeRegister        = "register"
	TypeWebRTCOffer     = "webrtc-offer"
	TypeWebRTCAnswer    = "webrtc-answer"
	TypeWebRTCCandidate = "webrtc-ice-candidate"

	// Domain events, broadcast.
	TypeMessageCreated       = "message-created"
	TypeMessageEdited        = "message-edited"
	TypeMessageDeleted       = "message-deleted"
	TypeChannelCreated       = "channel-created"
	TypeServerCreated        = "server-created"
	TypeServerBanCreated     = "server-ban-created"
	TypeDMMessageCreated     = "dm-message-created"
	TypeFriendRequestCreated = "friend-request-created"
	TypeFriendRequestAccept  = "friend-request-accepted"
)

// Event is a JSON-serializable wire event:
//
//	{"type": "...", "targetId": 7, ...payload}
//
// Payload fields are flattened into the top-level JSON object next to
// type and targetId. TargetID is zero for broadcast events; targeted
// relay events (webrtc signaling) must carry a non-zero TargetID.
type Event struct {
	Type     string
	TargetID int64
	Payload  map[string]any
}

// IsSignaling reports whether the event is one of the targeted
// voice-call signaling types.
func (e Event) IsSignaling() bool {
	switch e.Type {
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCCandidate:
		return true
	}
	return false
}

// MarshalJSON flattens the payload into the top-level object. The
// reserved keys "type" and "targetId" always come from the struct
// fields, never from the payload.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("realtime: event has no type")
	}
	flat := make(map[string]any, len(e.Payload)+2)
	for key, value := range e.Payload {
		flat[key] = value
	}
	flat["type"] = e.Type
	if e.TargetID != 0 {
		flat["targetId"] = e.TargetID
	} else {
		delete(flat, "targetId")
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits the reserved keys back out of the flat object.
// targetId accepts both a JSON number and a numeric string — browser
// clients historically sent either.
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	rawType, ok := flat["type"].(string)
	if !ok || rawType == "" {
		return fmt.Errorf("realtime: event missing type")
	}
	e.Type = rawType
	delete(flat, "type")

	if rawTarget, present := flat["targetId"]; present {
		target, err := coerceID(rawTarget)
		if err != nil {
			return fmt.Errorf("realtime: event targetId: %w", err)
		}
		e.TargetID = target
		delete(flat, "targetId")
	} else {
		e.TargetID = 0
	}

	e.Payload = flat
	return nil
}

// coerceID converts a decoded JSON value to an int64 identifier.
func coerceID(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		id := int64(v)
		if float64(id) != v {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return id, nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("unsupported id type %T", value)
	}
}
