// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalFlattensPayload(t *testing.T) {
	event := Event{
		Type:     TypeWebRTCOffer,
		TargetID: 7,
		Payload:  map[string]any{"sdp": "v=0", "userId": float64(3)},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal round-trip: %v", err)
	}
	if flat["type"] != TypeWebRTCOffer {
		t.Errorf("type = %v", flat["type"])
	}
	if flat["targetId"] != float64(7) {
		t.Errorf("targetId = %v, want 7", flat["targetId"])
	}
	if flat["sdp"] != "v=0" {
		t.Errorf("payload field sdp = %v", flat["sdp"])
	}
}

func TestEventMarshalOmitsZeroTarget(t *testing.T) {
	data, err := json.Marshal(Event{Type: TypeMessageCreated, Payload: map[string]any{"id": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatal(err)
	}
	if _, present := flat["targetId"]; present {
		t.Error("broadcast event serialized a targetId")
	}
}

func TestEventUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantType   string
		wantTarget int64
		wantErr    bool
	}{
		{
			name:       "register",
			input:      `{"type":"register","userId":5}`,
			wantType:   TypeRegister,
			wantTarget: 0,
		},
		{
			name:       "numeric target",
			input:      `{"type":"webrtc-offer","targetId":12,"sdp":"v=0"}`,
			wantType:   TypeWebRTCOffer,
			wantTarget: 12,
		},
		{
			name:       "string target",
			input:      `{"type":"webrtc-ice-candidate","targetId":"12","candidate":{}}`,
			wantType:   TypeWebRTCCandidate,
			wantTarget: 12,
		},
		{
			name:    "missing type",
			input:   `{"targetId":1}`,
			wantErr: true,
		},
		{
			name:    "non-numeric target",
			input:   `{"type":"webrtc-offer","targetId":"bob"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var event Event
			err := json.Unmarshal([]byte(tt.input), &event)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if event.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", event.Type, tt.wantType)
			}
			if event.TargetID != tt.wantTarget {
				t.Errorf("TargetID = %d, want %d", event.TargetID, tt.wantTarget)
			}
			if _, present := event.Payload["type"]; present {
				t.Error("payload still contains reserved key type")
			}
		})
	}
}

func TestIsSignaling(t *testing.T) {
	for _, typ := range []string{TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCCandidate} {
		if !(Event{Type: typ}).IsSignaling() {
			t.Errorf("%s: IsSignaling = false", typ)
		}
	}
	if (Event{Type: TypeMessageCreated}).IsSignaling() {
		t.Error("message-created reported as signaling")
	}
}
