// SPDX-License-Identifier: Apache-2.0
// Package router delivers messages between registered agents. It
// resolves direct and broadcast addressing and delivers either into a
// per-agent mailbox (pull) or a registered callback handler (push).
package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jllopis/agora/pkg/protocol"
	"github.com/jllopis/agora/pkg/telemetry"
)

// Handler is a synchronous push-style delivery target. A non-nil
// result is wrapped in a response envelope and routed back to the
// original sender.
type Handler func(ctx context.Context, msg *protocol.Message) (any, error)

// AgentInfo describes a registered agent.
type AgentInfo struct {
	Name         string            `json:"name,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
}

type registration struct {
	info    AgentInfo
	mailbox *Mailbox
	handler Handler
}

// Stats is a snapshot of routing counters.
type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Broadcasts uint64 `json:"broadcasts"`
	Heartbeats uint64 `json:"heartbeats"`
}

// Router is the per-agent mailbox registry. Delivery is fire-and-
// forget: Route never blocks on a consumer and never panics on a bad
// address.
type Router struct {
	mu      sync.RWMutex
	agents  map[string]*registration
	metrics *telemetry.RouterMetrics
	log     *slog.Logger

	delivered  atomic.Uint64
	failed     atomic.Uint64
	broadcasts atomic.Uint64
	heartbeats atomic.Uint64
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics attaches the OTEL instruments routing outcomes are
// reported to. A nil sink disables reporting.
func WithMetrics(m *telemetry.RouterMetrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		agents: make(map[string]*registration),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a mailbox for the agent. Registering an already
// known id is a no-op that keeps the existing mailbox and queued
// messages.
func (r *Router) Register(id string, info AgentInfo) *Mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.agents[id]; ok {
		return reg.mailbox
	}
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now().UTC()
	}
	mb := newMailbox()
	r.agents[id] = &registration{info: info, mailbox: mb}
	r.log.Info("router.agent.registered", slog.String("agent_id", id))
	return mb
}

// RegisterHandler registers a push-style agent. Messages addressed to
// it are delivered by invoking the handler synchronously instead of
// queueing. Idempotent for an already registered id.
func (r *Router) RegisterHandler(id string, info AgentInfo, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; ok {
		return
	}
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now().UTC()
	}
	r.agents[id] = &registration{info: info, handler: handler}
	r.log.Info("router.agent.registered", slog.String("agent_id", id), slog.Bool("handler", true))
}

// Unregister drops the agent's mailbox. Copies already delivered to
// other mailboxes are not retracted. Unknown ids are a no-op.
func (r *Router) Unregister(id string) {
	r.mu.Lock()
	reg, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if reg.mailbox != nil {
		reg.mailbox.close()
	}
	r.log.Info("router.agent.unregistered", slog.String("agent_id", id))
}

// Mailbox returns the agent's mailbox for pull-style consumption.
func (r *Router) Mailbox(id string) (*Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[id]
	if !ok || reg.mailbox == nil {
		return nil, false
	}
	return reg.mailbox, true
}

// Agents returns the ids of all registered agents.
func (r *Router) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	return out
}

// Info returns the registration info for an agent.
func (r *Router) Info(id string) (AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[id]
	if !ok {
		return AgentInfo{}, false
	}
	return reg.info, true
}

// Route validates and delivers msg. The broadcast sentinel fans out to
// every registered agent except the sender. Route returns false when
// the message is malformed, expired, or any literal recipient is
// unknown; delivery to the resolvable recipients still happens, so a
// broadcast to many agents is never aborted by one bad address. The
// router does not retry: that policy belongs to the caller.
func (r *Router) Route(ctx context.Context, msg *protocol.Message) bool {
	if msg == nil {
		r.failed.Add(1)
		r.metrics.RecordFailed(ctx, "nil_message")
		return false
	}
	if problems := msg.Validate(); len(problems) > 0 {
		r.failed.Add(1)
		r.metrics.RecordFailed(ctx, "invalid_message")
		r.log.Warn("router.route.invalid",
			slog.String("message_id", msg.ID),
			slog.Any("problems", problems),
		)
		return false
	}
	if msg.Expired(time.Now().UTC()) {
		r.failed.Add(1)
		r.metrics.RecordFailed(ctx, "expired")
		r.log.Warn("router.route.expired", slog.String("message_id", msg.ID))
		return false
	}

	// Heartbeats are acknowledged locally and never enqueued.
	if msg.Type == protocol.TypeHeartbeat {
		r.heartbeats.Add(1)
		r.metrics.RecordHeartbeat(ctx)
		return true
	}

	recipients, ok := r.resolve(ctx, msg)
	if msg.IsBroadcast() {
		r.broadcasts.Add(1)
		r.metrics.RecordBroadcast(ctx, len(recipients))
	}

	for _, id := range recipients {
		r.deliver(ctx, id, msg)
	}
	return ok
}

// resolve expands the recipient list. The boolean is false when any
// literal recipient is unknown.
func (r *Router) resolve(ctx context.Context, msg *protocol.Message) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ok := true
	var out []string
	seen := make(map[string]bool)
	for _, recipient := range msg.Recipients {
		if recipient == protocol.Broadcast {
			for id := range r.agents {
				if id != msg.Sender && !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
			continue
		}
		if _, known := r.agents[recipient]; !known {
			ok = false
			r.failed.Add(1)
			r.metrics.RecordFailed(ctx, "unknown_recipient")
			r.log.Warn("router.route.unknown_recipient",
				slog.String("message_id", msg.ID),
				slog.String("recipient", recipient),
			)
			continue
		}
		if !seen[recipient] {
			seen[recipient] = true
			out = append(out, recipient)
		}
	}
	return out, ok
}

func (r *Router) deliver(ctx context.Context, id string, msg *protocol.Message) {
	r.mu.RLock()
	reg, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		// Unregistered between resolve and deliver.
		r.failed.Add(1)
		r.metrics.RecordFailed(ctx, "unknown_recipient")
		return
	}

	if reg.handler != nil {
		result, err := reg.handler(ctx, msg.Clone())
		if err != nil {
			r.failed.Add(1)
			r.metrics.RecordFailed(ctx, "handler_error")
			r.log.Warn("router.deliver.handler_error",
				slog.String("message_id", msg.ID),
				slog.String("agent_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
		r.delivered.Add(1)
		r.metrics.RecordDelivered(ctx, string(msg.Type))
		if result != nil {
			// Handler push and queue pull coexist: the handler's value
			// goes back to the original sender as a response.
			resp := protocol.NewResponse(msg, result)
			resp.Sender = id
			r.Route(ctx, resp)
		}
		return
	}

	if reg.mailbox.push(msg.Clone()) {
		r.delivered.Add(1)
		r.metrics.RecordDelivered(ctx, string(msg.Type))
	} else {
		r.failed.Add(1)
		r.metrics.RecordFailed(ctx, "mailbox_closed")
	}
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Stats {
	return Stats{
		Delivered:  r.delivered.Load(),
		Failed:     r.failed.Load(),
		Broadcasts: r.broadcasts.Load(),
		Heartbeats: r.heartbeats.Load(),
	}
}
