// Package channel implements the Message Channel: the worker/orchestrator
// message exchange atop the durable store, including checkpoint derivation
// and the TTL sweep that expires messages nobody ever answered.
package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/protocoldir"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

// DefaultMessageTTL is how long a response-required WorkerMessage can sit
// pending before the sweep expires it.
const DefaultMessageTTL = 60 * time.Minute

// Config configures a Channel.
type Config struct {
	MessageTTL time.Duration
	Store      storage.Store
	Events     *events.Broker
	Mirror     *protocoldir.Mirror
}

// Channel mediates every worker_report / get_pending / get_checkpoint /
// respond operation.
type Channel struct {
	cfg    Config
	store  storage.Store
	events *events.Broker
	mirror *protocoldir.Mirror
	logger zerolog.Logger
	stopCh chan struct{}
}

// New builds a Channel. Call Start to begin the TTL sweep.
func New(cfg Config, logger zerolog.Logger) *Channel {
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = DefaultMessageTTL
	}
	return &Channel{cfg: cfg, store: cfg.Store, events: cfg.Events, mirror: cfg.Mirror, logger: logger, stopCh: make(chan struct{})}
}

// Start begins the background TTL sweep loop.
func (c *Channel) Start() {
	go c.run()
}

// Stop halts the TTL sweep loop.
func (c *Channel) Stop() {
	close(c.stopCh)
}

// Report records a message a worker posted about a session. For
// response-required types a session:checkpoint event is published and the
// session is marked waiting_checkpoint; informational types are only stored:
// no event is published and session status is left untouched.
func (c *Channel) Report(ctx context.Context, sessionID string, msgType types.WorkerMessageType, payload []byte) (*types.WorkerMessage, error) {
	msg := &types.WorkerMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      msgType,
		Payload:   payload,
		Status:    types.WorkerMsgPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateWorkerMessage(ctx, msg); err != nil {
		return nil, err
	}

	if msgType.ResponseRequired() {
		if sess, err := c.store.GetSession(ctx, sessionID); err == nil {
			sess.Status = types.SessionWaitingCheckpoint
			if uerr := c.store.UpdateSession(ctx, sess); uerr != nil {
				c.logger.Error().Err(uerr).Str("session_id", sessionID).Msg("mark session waiting_checkpoint")
			}
		}
		if cp, cerr := c.Checkpoint(ctx, sessionID); cerr == nil {
			c.mirrorCheckpoint(sessionID, cp)
		}
		c.publish(events.EventSessionCheckpoint, sessionID, string(msgType))
	}

	return msg, nil
}

// Pending returns every response-required worker message not yet responded
// to for a session, oldest first. Informational messages are never listed.
func (c *Channel) Pending(ctx context.Context, sessionID string) ([]*types.WorkerMessage, error) {
	msgs, err := c.store.ListPendingWorkerMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.WorkerMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Type.ResponseRequired() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Checkpoint returns the oldest pending response-required message for a
// session as a Checkpoint view, or nil if the session has nothing to answer.
func (c *Channel) Checkpoint(ctx context.Context, sessionID string) (*types.Checkpoint, error) {
	msg, err := c.store.OldestPendingCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return &types.Checkpoint{
		MessageID: msg.ID,
		SessionID: msg.SessionID,
		Type:      msg.Type,
		Payload:   msg.Payload,
		CreatedAt: msg.CreatedAt,
	}, nil
}

// Respond answers a pending worker message. It rejects an unknown message id
// (unknown_message), a message already answered (already_responded) or
// expired (message_not_pending), and a response whose type is not the one
// that answers the message's type, including any response to an
// informational message (wrong_type).
func (c *Channel) Respond(ctx context.Context, messageID string, responseType types.OrchestratorMsgType, payload []byte) error {
	msg, err := c.store.GetWorkerMessage(ctx, messageID)
	if err != nil {
		if kind, ok := apierr.KindOf(err); ok && kind == apierr.NotFound {
			return apierr.NotFoundf("unknown_message", "worker message %s not found", messageID)
		}
		return err
	}
	if msg.Status == types.WorkerMsgResponded {
		return apierr.New(apierr.Conflict, "already_responded", "worker message "+messageID+" has already been responded to")
	}
	if msg.Status != types.WorkerMsgPending {
		return apierr.New(apierr.Conflict, "message_not_pending", "worker message "+messageID+" is not pending")
	}
	expected := map[types.WorkerMessageType]types.OrchestratorMsgType{
		types.MsgVerificationNeeded: types.OrchVerificationResult,
		types.MsgDecisionNeeded:     types.OrchDecisionMade,
		types.MsgActionNeeded:       types.OrchActionCompleted,
		types.MsgCredentialsNeeded:  types.OrchCredentialsProvided,
	}
	if !msg.Type.ResponseRequired() || responseType != expected[msg.Type] {
		return apierr.New(apierr.InvalidArgument, "wrong_type", "worker message "+messageID+" does not accept a "+string(responseType)+" response")
	}

	if err := c.store.RespondToWorkerMessage(ctx, messageID, responseType, payload); err != nil {
		return err
	}

	om := &types.OrchestratorMessage{
		ID:           uuid.NewString(),
		SessionID:    msg.SessionID,
		Type:         responseType,
		Payload:      payload,
		InResponseTo: &messageID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.CreateOrchestratorMessage(ctx, om); err != nil {
		return err
	}
	c.mirrorCheckpointResponse(msg.SessionID, om)

	if sess, err := c.store.GetSession(ctx, msg.SessionID); err == nil && sess.Status == types.SessionWaitingCheckpoint {
		remaining, _ := c.store.OldestPendingCheckpoint(ctx, msg.SessionID)
		if remaining == nil {
			sess.Status = types.SessionRunning
			if uerr := c.store.UpdateSession(ctx, sess); uerr != nil {
				c.logger.Error().Err(uerr).Str("session_id", msg.SessionID).Msg("clear waiting_checkpoint status")
			}
			c.mirrorCheckpoint(msg.SessionID, nil)
		} else if cp, cerr := c.Checkpoint(ctx, msg.SessionID); cerr == nil {
			c.mirrorCheckpoint(msg.SessionID, cp)
		}
	}

	return nil
}

// mirrorCheckpoint best-effort writes cp to the Protocol Directory's
// checkpoint.json, removing the file when cp is nil. A nil Mirror (e.g. in
// tests that don't wire one) makes this a no-op.
func (c *Channel) mirrorCheckpoint(sessionID string, cp *types.Checkpoint) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.WriteCheckpoint(sessionID, cp); err != nil {
		c.logger.Error().Err(err).Str("session_id", sessionID).Msg("mirror checkpoint")
	}
}

// mirrorCheckpointResponse best-effort writes om to the Protocol
// Directory's checkpoint_response.json.
func (c *Channel) mirrorCheckpointResponse(sessionID string, om *types.OrchestratorMessage) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.WriteCheckpointResponse(sessionID, om); err != nil {
		c.logger.Error().Err(err).Str("session_id", sessionID).Msg("mirror checkpoint response")
	}
}

func (c *Channel) publish(t events.EventType, sessionID, msg string) {
	if c.events == nil {
		return
	}
	c.events.Publish(&events.Event{Type: t, SessionID: sessionID, Message: msg})
}

func (c *Channel) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Channel) sweep() {
	n, err := c.store.ExpirePendingWorkerMessagesOlderThan(context.Background(), int64(c.cfg.MessageTTL.Seconds()))
	if err != nil {
		c.logger.Error().Err(err).Msg("expire pending worker messages")
		return
	}
	if n > 0 {
		c.logger.Info().Int("count", n).Msg("expired stale worker messages")
	}
}
