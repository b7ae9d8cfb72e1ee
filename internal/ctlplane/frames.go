// Package ctlplane implements the gateway's control-plane session: a
// persistent bidirectional JSON-framed channel to a remote manager, per
// §4.5. Inbound frames (Apply, ApplyPartial, Shutdown) are dispatched to a
// Reconciler; outbound frames (Apply results, Traffic, Event) are
// multiplexed from the reconciler's response and the gwstate broadcast
// hubs.
package ctlplane

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"fractalnet.io/gatewayd/internal/domain"
)

// FrameTag discriminates the tagged-union wire frames. Spelling is part of
// the wire contract (§6): keys and tags must not change casually.
type FrameTag string

const (
	FrameApply        FrameTag = "apply"
	FrameApplyPartial FrameTag = "apply_partial"
	FrameShutdown     FrameTag = "shutdown"
	FrameTraffic      FrameTag = "traffic"
	FrameEvent        FrameTag = "event"
)

// inboundEnvelope is the shape every frame received from the manager is
// decoded into before its payload is unmarshaled based on Tag. ID
// correlates an Apply/ApplyPartial request with its Apply response (§4.5).
type inboundEnvelope struct {
	Tag     FrameTag        `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundEnvelope is the shape every frame sent to the manager is encoded
// as.
type outboundEnvelope struct {
	Tag     FrameTag `json:"type"`
	ID      string   `json:"id,omitempty"`
	Payload any      `json:"payload,omitempty"`
}

// applyResult is the Apply outbound payload: exactly one of Ok/Err is set,
// mirroring the wire contract's Apply(Ok(string) | Err(string)).
type applyResult struct {
	Ok  *string `json:"ok,omitempty"`
	Err *string `json:"err,omitempty"`
}

func okResult(id, msg string) outboundEnvelope {
	return outboundEnvelope{Tag: FrameApply, ID: id, Payload: applyResult{Ok: &msg}}
}

func errResult(id, msg string) outboundEnvelope {
	return outboundEnvelope{Tag: FrameApply, ID: id, Payload: applyResult{Err: &msg}}
}

func trafficFrame(info domain.TrafficInfo) outboundEnvelope {
	return outboundEnvelope{Tag: FrameTraffic, Payload: info}
}

func eventFrame(ev domain.Event) outboundEnvelope {
	return outboundEnvelope{Tag: FrameEvent, Payload: ev}
}

// decodeInbound parses one received text frame into its tag, correlation
// ID, and, for Apply and ApplyPartial, the decoded
// GatewayConfig/GatewayConfigPartial. Apply/ApplyPartial frames arriving
// without an ID are assigned a fresh one, so the response can still be
// correlated even against a non-conforming sender.
func decodeInbound(raw []byte) (FrameTag, string, domain.GatewayConfig, domain.GatewayConfigPartial, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", nil, nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch env.Tag {
	case FrameApply:
		var full domain.GatewayConfig
		if err := json.Unmarshal(env.Payload, &full); err != nil {
			return "", "", nil, nil, fmt.Errorf("decoding apply payload: %w", err)
		}
		return FrameApply, correlationID(env.ID), full, nil, nil
	case FrameApplyPartial:
		var diff domain.GatewayConfigPartial
		if err := json.Unmarshal(env.Payload, &diff); err != nil {
			return "", "", nil, nil, fmt.Errorf("decoding apply_partial payload: %w", err)
		}
		return FrameApplyPartial, correlationID(env.ID), nil, diff, nil
	case FrameShutdown:
		return FrameShutdown, env.ID, nil, nil, nil
	default:
		return "", "", nil, nil, fmt.Errorf("%w: unknown frame tag %q", ErrConfigInvalid, env.Tag)
	}
}

// correlationID returns id unless empty, in which case it mints one so the
// Apply response the caller writes still carries a usable ID.
func correlationID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
