package signal

import (
	"encoding/json"
	"fmt"

	"voicebridge/internal/core/domain"
	"voicebridge/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// MessageRelay forwards negotiation messages between peers. Payloads are
// decoded only far enough to resolve the target and stamp the sender; SDP
// and candidate contents pass through untouched.
type MessageRelay struct {
	registry *PeerRegistry
	metrics  *monitoring.Collector
	logger   *zap.SugaredLogger
}

func NewMessageRelay(registry *PeerRegistry, metrics *monitoring.Collector, logger *zap.SugaredLogger) *MessageRelay {
	return &MessageRelay{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Forward routes one envelope from the sender to the peer named in its
// payload, rewriting the type to the delivery-side event. Returns
// domain.ErrPeerOffline when the target has no live connection.
func (r *MessageRelay) Forward(from domain.PeerID, env domain.Envelope) error {
	var (
		to  domain.PeerID
		out domain.Envelope
		err error
	)

	switch env.Type {
	case domain.EventCallRequest:
		var p domain.CallRequestPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid call-request payload: %w", err)
		}
		p.From = from
		to = p.To
		out, err = domain.NewEnvelope(domain.EventIncomingCall, p)

	case domain.EventCallAnswer:
		var p domain.CallAnswerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid call-answer payload: %w", err)
		}
		p.From = from
		to = p.To
		out, err = domain.NewEnvelope(domain.EventCallAnswered, p)

	case domain.EventICECandidate:
		var p domain.ICECandidatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid ice-candidate payload: %w", err)
		}
		p.From = from
		to = p.To
		out, err = domain.NewEnvelope(domain.EventICECandidate, p)

	case domain.EventCallDeclined, domain.EventCallEnded, domain.EventUserBusy:
		var p domain.CallSignalPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		p.From = from
		to = p.To
		out, err = domain.NewEnvelope(env.Type, p)

	default:
		return fmt.Errorf("type %q cannot be relayed", env.Type)
	}
	if err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%s requires a target peer", env.Type)
	}

	conn, ok := r.registry.Lookup(to)
	if !ok {
		r.metrics.RelayFailure("peer-offline")
		return fmt.Errorf("%w: %s", domain.ErrPeerOffline, to)
	}
	if err := conn.Send(out); err != nil {
		r.metrics.RelayFailure("send-failed")
		return fmt.Errorf("failed to deliver %s to %s: %w", out.Type, to, err)
	}

	r.metrics.MessageForwarded(string(env.Type))
	r.logger.Debugw("forwarded signal", "type", env.Type, "from", from, "to", to)
	return nil
}
