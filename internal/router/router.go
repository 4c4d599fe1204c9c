package router

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/events"
	"courier-relay/internal/metrics"
	"courier-relay/internal/queue"
	"courier-relay/internal/registry"
	"courier-relay/internal/repository"
	"courier-relay/pkg/logger"
)

// TokenVerifier is the auth collaborator: it turns a bearer token into
// the identity it was issued for.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Presence mirrors connection liveness into a shared advisory store.
// The registry stays the in-process source of truth; presence failures
// never fail a transition.
type Presence interface {
	SetOnline(ctx context.Context, handle, deviceID string) error
	SetOffline(ctx context.Context, handle, deviceID string) error
}

// MessageLimiter throttles message events per sender identity.
type MessageLimiter interface {
	MessageAllowed(ctx context.Context, handle string) (bool, error)
}

const defaultIdentifyTimeout = 10 * time.Second

type Deps struct {
	Directory repository.DeviceDirectory
	Store     repository.ConversationStore
	Registry  *registry.Registry
	Queue     queue.Queue
	Verifier  TokenVerifier

	// Optional.
	Presence Presence
	Limiter  MessageLimiter
	Bus      events.Bus
	Metrics  *metrics.Metrics
	Log      *logger.Logger

	IdentifyTimeout time.Duration
}

// Router is the protocol state machine. One instance serves every
// connection; per-connection state lives in the Session handed to
// HandleFrame by the connection's read loop.
type Router struct {
	directory repository.DeviceDirectory
	store     repository.ConversationStore
	registry  *registry.Registry
	queue     queue.Queue
	verifier  TokenVerifier
	presence  Presence
	limiter   MessageLimiter
	bus       events.Bus
	metrics   *metrics.Metrics
	log       *logger.Logger

	identifyTimeout time.Duration
}

func New(d Deps) *Router {
	if d.Bus == nil {
		d.Bus = events.NopBus{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.IdentifyTimeout <= 0 {
		d.IdentifyTimeout = defaultIdentifyTimeout
	}
	return &Router{
		directory:       d.Directory,
		store:           d.Store,
		registry:        d.Registry,
		queue:           d.Queue,
		verifier:        d.Verifier,
		presence:        d.Presence,
		limiter:         d.Limiter,
		bus:             d.Bus,
		metrics:         d.Metrics,
		log:             d.Log,
		identifyTimeout: d.IdentifyTimeout,
	}
}

// HandleFrame processes one inbound frame for a session. Malformed
// frames are logged and dropped without a reply; the connection stays
// open.
func (r *Router) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	var head Frame
	if err := json.Unmarshal(raw, &head); err != nil || head.Type == "" {
		r.dropFrame(s, "undecodable frame")
		return
	}
	switch head.Type {
	case TypeIdentify:
		r.handleIdentify(ctx, s, raw)
	case TypeMessage:
		r.handleMessage(ctx, s, raw)
	default:
		r.dropFrame(s, "unknown frame type "+head.Type)
	}
}

func (r *Router) handleIdentify(ctx context.Context, s *Session, raw []byte) {
	if s.state == StateClosed {
		return
	}
	if s.state == StateIdentified {
		r.sendError(s, CodeAlreadyIdentified)
		return
	}

	var frame IdentifyFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.dropFrame(s, "undecodable identify")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.identifyTimeout)
	defer cancel()

	identity, err := r.verifier.VerifyToken(ctx, frame.Token)
	if err != nil {
		r.log.Infof("identify rejected from %s: %v", s.RemoteAddr, err)
		r.sendError(s, CodeAuthFailed)
		return
	}
	known, err := r.directory.DeviceExists(ctx, identity, frame.DeviceID)
	if err != nil {
		r.log.Errorf("device lookup for %s/%s: %v", identity, frame.DeviceID, err)
		r.sendError(s, CodeBackendFailure)
		return
	}
	if !known {
		r.log.Infof("identify for unregistered device %s/%s", identity, frame.DeviceID)
		r.sendError(s, CodeUnknownDevice)
		return
	}

	epoch, replaced := r.registry.Bind(identity, frame.DeviceID, s.Conn)
	if replaced != nil {
		replaced.Close()
		r.log.Infof("replaced prior connection for %s/%s", identity, frame.DeviceID)
	}
	s.state = StateIdentified
	s.identity = identity
	s.deviceID = frame.DeviceID
	s.epoch = epoch
	r.metrics.Identified.Inc()

	if r.presence != nil {
		if err := r.presence.SetOnline(ctx, identity, frame.DeviceID); err != nil {
			r.log.Errorf("presence online for %s/%s: %v", identity, frame.DeviceID, err)
		}
	}

	// Queued envelopes go out before the ack; a flush failure leaves
	// them queued for the next drain and does not undo identification.
	if err := r.flushQueue(ctx, identity, frame.DeviceID, s.Conn); err != nil {
		r.log.Errorf("queue flush for %s/%s: %v", identity, frame.DeviceID, err)
	}
	r.send(s, IdentifiedFrame{Type: TypeIdentified, Status: "ok"})
	r.log.Infof("identified %s/%s from %s", identity, frame.DeviceID, s.RemoteAddr)
}

func (r *Router) handleMessage(ctx context.Context, s *Session, raw []byte) {
	if s.state != StateIdentified {
		r.sendError(s, CodeNotIdentified)
		return
	}

	var frame MessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.dropFrame(s, "undecodable message")
		return
	}
	if frame.ToIdentity == "" {
		r.dropFrame(s, "message without recipient")
		return
	}

	if r.limiter != nil {
		allowed, err := r.limiter.MessageAllowed(ctx, s.identity)
		if err != nil {
			// Fail open: throttling is protection, not correctness.
			r.log.Errorf("rate limit check for %s: %v", s.identity, err)
		} else if !allowed {
			r.sendError(s, CodeRateLimited)
			return
		}
	}

	keys, err := r.directory.PublicKeysFor(ctx, frame.ToIdentity)
	if err != nil {
		r.log.Errorf("key lookup for %s: %v", frame.ToIdentity, err)
		r.sendError(s, CodeDeliveryFailed)
		return
	}
	if len(keys) == 0 {
		r.sendError(s, CodeRecipientNotFound)
		return
	}

	// The sender address comes from the identified session, never from
	// the payload.
	env := frame.Payload
	env.From = envelope.Address{Identity: s.identity, Device: s.deviceID}
	env.To = envelope.Address{Identity: frame.ToIdentity}

	targets := fanoutTargets(env, keys)

	rec := conversation.Record{
		Sender:    s.identity,
		Recipient: frame.ToIdentity,
		Envelope:  env,
	}
	convID := conversation.ID(s.identity, frame.ToIdentity)
	if err := r.store.Append(ctx, convID, &rec); err != nil {
		r.log.Errorf("append to %s: %v", convID, err)
		r.sendError(s, CodeDeliveryFailed)
		return
	}
	r.metrics.Routed.Inc()

	// A fan-out underway is never cancelled: a backend failure for one
	// device still lets the remaining devices get their copies, and the
	// sender then gets an error instead of a receipt.
	delivered := 0
	var fanErr error
	for _, deviceID := range targets {
		perDevice, ok := env.ForDevice(deviceID)
		if !ok {
			continue
		}
		live, err := r.deliver(ctx, frame.ToIdentity, deviceID, perDevice)
		if err != nil {
			r.log.Errorf("fan-out to %s/%s: %v", frame.ToIdentity, deviceID, err)
			fanErr = err
			continue
		}
		if live {
			delivered++
		}
	}

	if fanErr != nil {
		r.sendError(s, CodeDeliveryFailed)
		return
	}
	r.send(s, ReceiptFrame{Type: TypeReceipt, To: frame.ToIdentity, DeliveredTo: delivered})
}

// deliver pushes an envelope to a live connection or parks it in the
// device's offline queue, waking any instance that holds the device.
// Reports whether the push was live.
func (r *Router) deliver(ctx context.Context, handle, deviceID string, env envelope.Envelope) (bool, error) {
	data, err := json.Marshal(DeliveryFrame{Type: TypeDelivery, Envelope: env})
	if err != nil {
		return false, err
	}
	if conn, _, ok := r.registry.Lookup(handle, deviceID); ok {
		if err := conn.Push(data); err == nil {
			r.metrics.DeliveredLive.Inc()
			return true, nil
		}
		// Push refused, the connection is dying or backed up. Fall
		// through to the queue so the envelope is not lost.
	}
	if err := r.queue.Enqueue(ctx, handle, deviceID, env); err != nil {
		return false, err
	}
	r.metrics.Queued.Inc()
	if err := r.bus.PublishWake(ctx, handle, deviceID); err != nil {
		r.log.Warnf("wake publish for %s/%s: %v", handle, deviceID, err)
	}
	return false, nil
}

func (r *Router) flushQueue(ctx context.Context, handle, deviceID string, conn registry.Conn) error {
	entries, err := r.queue.Drain(ctx, handle, deviceID)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		data, err := json.Marshal(DeliveryFrame{Type: TypeDelivery, Envelope: entry.Envelope})
		if err != nil {
			r.log.Errorf("marshal queued envelope for %s/%s: %v", handle, deviceID, err)
			continue
		}
		if err := conn.Push(data); err != nil {
			// Transport refused: put the undelivered tail back at the
			// head so order survives for the next drain.
			if rqErr := r.queue.Requeue(ctx, handle, deviceID, entries[i:]); rqErr != nil {
				r.log.Errorf("requeue for %s/%s: %v", handle, deviceID, rqErr)
			}
			return err
		}
		r.metrics.Drained.Inc()
	}
	return nil
}

// HandleDisconnect finishes a session whose transport closed. Safe to
// call for sessions that never identified.
func (r *Router) HandleDisconnect(ctx context.Context, s *Session) {
	if s.state == StateIdentified {
		r.registry.Unbind(s.identity, s.deviceID, s.epoch)
		if r.presence != nil {
			if err := r.presence.SetOffline(ctx, s.identity, s.deviceID); err != nil {
				r.log.Errorf("presence offline for %s/%s: %v", s.identity, s.deviceID, err)
			}
		}
		r.log.Infof("disconnected %s/%s", s.identity, s.deviceID)
	}
	s.state = StateClosed
}

// HandleWake drains the queue for a device if its connection lives on
// this instance. Wired as the bus subscription handler.
func (r *Router) HandleWake(ctx context.Context, wake events.Wake) {
	conn, _, ok := r.registry.Lookup(wake.Identity, wake.DeviceID)
	if !ok {
		return
	}
	if err := r.flushQueue(ctx, wake.Identity, wake.DeviceID, conn); err != nil {
		r.log.Errorf("wake flush for %s/%s: %v", wake.Identity, wake.DeviceID, err)
	}
}

// fanoutTargets resolves the devices an envelope fans out to: the
// directory's devices for the recipient, narrowed to those the envelope
// carries a wrapped key for. A single-recipient envelope reaches every
// directory device. Sorted for deterministic behavior.
func fanoutTargets(env envelope.Envelope, keys map[string]string) []string {
	wrapped := env.Devices()
	var ids []string
	if wrapped == nil {
		for deviceID := range keys {
			ids = append(ids, deviceID)
		}
	} else {
		for _, deviceID := range wrapped {
			if _, ok := keys[deviceID]; ok {
				ids = append(ids, deviceID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) dropFrame(s *Session, reason string) {
	r.metrics.RouteErrors.WithLabelValues("malformed").Inc()
	r.log.Warnf("dropping frame from %s: %s", s.RemoteAddr, reason)
}

func (r *Router) sendError(s *Session, code string) {
	r.metrics.RouteErrors.WithLabelValues(code).Inc()
	r.send(s, ErrorFrame{Type: TypeError, Error: code})
}

func (r *Router) send(s *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Errorf("marshal outbound frame: %v", err)
		return
	}
	if err := s.Conn.Push(data); err != nil {
		r.log.Warnf("push to %s failed: %v", s.RemoteAddr, err)
	}
}
