// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/concord-chat/concord/realtime"
)

// validateSignal checks that a WebRTC signaling event carries a
// payload the peer's RTC stack will accept. The gateway never
// inspects media; it only refuses to relay frames that cannot
// possibly be valid signaling.
func validateSignal(event realtime.Event) error {
	switch event.Type {
	case realtime.TypeWebRTCOffer:
		return validateDescription(event.Payload["sdp"], webrtc.SDPTypeOffer)
	case realtime.TypeWebRTCAnswer:
		return validateDescription(event.Payload["sdp"], webrtc.SDPTypeAnswer)
	case realtime.TypeWebRTCCandidate:
		return validateCandidate(event.Payload["candidate"])
	}
	return fmt.Errorf("not a signaling event: %s", event.Type)
}

func validateDescription(raw any, want webrtc.SDPType) error {
	if raw == nil {
		return errors.New("missing sdp")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("sdp: %w", err)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(buf, &desc); err != nil {
		return fmt.Errorf("sdp: %w", err)
	}
	if desc.Type != want {
		return fmt.Errorf("sdp type %q, want %q", desc.Type, want)
	}
	if desc.SDP == "" {
		return errors.New("empty sdp body")
	}
	return nil
}

func validateCandidate(raw any) error {
	if raw == nil {
		return errors.New("missing candidate")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(buf, &cand); err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	if cand.Candidate == "" {
		return errors.New("empty candidate")
	}
	return nil
}
