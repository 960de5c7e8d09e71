// SPDX-License-Identifier: Apache-2.0
// Package protocol defines the agent-to-agent message model: typed
// envelopes, multi-part content, addressing, expiry and validation.
package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the sentinel recipient meaning "every registered agent
// except the sender".
const Broadcast = "broadcast"

// MessageType identifies the semantic kind of a message envelope.
type MessageType string

const (
	TypeRequest         MessageType = "request"
	TypeResponse        MessageType = "response"
	TypeNotification    MessageType = "notification"
	TypeError           MessageType = "error"
	TypeHeartbeat       MessageType = "heartbeat"
	TypeDiscovery       MessageType = "discovery"
	TypeTaskAssignment  MessageType = "task_assignment"
	TypeTaskUpdate      MessageType = "task_update"
	TypeTaskCompletion  MessageType = "task_completion"
	TypeArtifactCreated MessageType = "artifact_created"
	TypeArtifactRequest MessageType = "artifact_requested"
)

var messageTypes = map[MessageType]bool{
	TypeRequest:         true,
	TypeResponse:        true,
	TypeNotification:    true,
	TypeError:           true,
	TypeHeartbeat:       true,
	TypeDiscovery:       true,
	TypeTaskAssignment:  true,
	TypeTaskUpdate:      true,
	TypeTaskCompletion:  true,
	TypeArtifactCreated: true,
	TypeArtifactRequest: true,
}

// ParseMessageType normalizes a raw scalar into a MessageType.
func ParseMessageType(v any) (MessageType, error) {
	switch t := v.(type) {
	case MessageType:
		if messageTypes[t] {
			return t, nil
		}
		return "", fmt.Errorf("unknown message type %q", string(t))
	case string:
		mt := MessageType(strings.ToLower(strings.TrimSpace(t)))
		if messageTypes[mt] {
			return mt, nil
		}
		return "", fmt.Errorf("unknown message type %q", t)
	default:
		return "", fmt.Errorf("message type must be a string, got %T", v)
	}
}

// Priority orders message handling from PriorityLow to PriorityCritical.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityUrgent   Priority = 4
	PriorityCritical Priority = 5
)

// Valid reports whether p lies inside the priority scale.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority normalizes a raw scalar into a Priority.
func ParsePriority(v any) (Priority, error) {
	var p Priority
	switch t := v.(type) {
	case Priority:
		p = t
	case int:
		p = Priority(t)
	case int64:
		p = Priority(t)
	case float64:
		p = Priority(int(t))
	default:
		return 0, fmt.Errorf("priority must be an integer, got %T", v)
	}
	if !p.Valid() {
		return 0, fmt.Errorf("priority %d outside [%d,%d]", int(p), int(PriorityLow), int(PriorityCritical))
	}
	return p, nil
}

// Message is an addressed, typed, prioritized envelope exchanged
// between agents. It carries either a scalar Content or an ordered
// list of Parts, never both semantics at once: when Parts is non-empty
// it is the payload and Content is ignored by consumers.
type Message struct {
	ID            string      `json:"id"`
	Sender        string      `json:"sender"`
	Recipients    []string    `json:"recipients"`
	Type          MessageType `json:"message_type"`
	Priority      Priority    `json:"priority"`
	Content       any         `json:"content,omitempty"`
	Parts         []Part      `json:"parts,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
}

// NewMessage builds an envelope with a generated id and timestamp.
func NewMessage(sender string, recipients []string, msgType MessageType, content any) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Sender:     sender,
		Recipients: recipients,
		Type:       msgType,
		Priority:   PriorityNormal,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
}

// NewRequest builds a request envelope addressed to a single agent.
func NewRequest(sender, recipient string, content any) *Message {
	return NewMessage(sender, []string{recipient}, TypeRequest, content)
}

// NewResponse builds the response to original: sender and recipient are
// swapped and the original message id is carried as the correlation id.
func NewResponse(original *Message, content any) *Message {
	msg := NewMessage(firstRecipient(original), []string{original.Sender}, TypeResponse, content)
	msg.CorrelationID = original.ID
	msg.Priority = original.Priority
	return msg
}

// NewErrorMessage builds an error envelope answering original. The
// content carries the status code, its canonical description and an
// optional detail string.
func NewErrorMessage(original *Message, code StatusCode, detail string) *Message {
	msg := NewMessage(firstRecipient(original), []string{original.Sender}, TypeError, map[string]any{
		"status_code": int(code),
		"status":      code.Description(),
		"detail":      detail,
	})
	msg.CorrelationID = original.ID
	msg.Priority = PriorityHigh
	return msg
}

// NewNotification builds a notification envelope.
func NewNotification(sender string, recipients []string, content any) *Message {
	return NewMessage(sender, recipients, TypeNotification, content)
}

// NewHeartbeat builds a heartbeat envelope. Heartbeats are acknowledged
// locally by the router and never enqueued.
func NewHeartbeat(sender string) *Message {
	msg := NewMessage(sender, []string{Broadcast}, TypeHeartbeat, nil)
	msg.Priority = PriorityLow
	return msg
}

// NewMultipart builds an envelope whose payload is an ordered part list.
func NewMultipart(sender string, recipients []string, msgType MessageType, parts []Part) *Message {
	msg := NewMessage(sender, recipients, msgType, nil)
	msg.Parts = parts
	return msg
}

// Validate returns human-readable problems with the envelope and each
// of its parts. An empty slice means the message is valid; Validate
// never panics on malformed input.
func (m *Message) Validate() []string {
	var problems []string
	if m.Sender == "" {
		problems = append(problems, "sender is empty")
	}
	if len(m.Recipients) == 0 {
		problems = append(problems, "at least one recipient is required")
	}
	if !messageTypes[m.Type] {
		problems = append(problems, fmt.Sprintf("unknown message type %q", string(m.Type)))
	}
	if !m.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("priority %d outside [%d,%d]", int(m.Priority), int(PriorityLow), int(PriorityCritical)))
	}
	if m.Parts != nil && len(m.Parts) == 0 {
		problems = append(problems, "part list declared but empty")
	}
	for i, part := range m.Parts {
		for _, problem := range part.Validate() {
			problems = append(problems, fmt.Sprintf("part %d: %s", i, problem))
		}
	}
	return problems
}

// Expired reports whether the envelope's expiry lies before now.
// Messages without an expiry never expire.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// IsBroadcast reports whether any recipient is the broadcast sentinel.
func (m *Message) IsBroadcast() bool {
	for _, r := range m.Recipients {
		if r == Broadcast {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy with its own recipients slice, suitable
// for fan-out delivery.
func (m *Message) Clone() *Message {
	cp := *m
	cp.Recipients = append([]string(nil), m.Recipients...)
	cp.Parts = append([]Part(nil), m.Parts...)
	return &cp
}

// MainContent resolves the primary payload of a multi-part message:
// the first data part wins, then the first text part. The boolean is
// false when no structured part is addressable.
func (m *Message) MainContent() (Part, bool) {
	for _, part := range m.Parts {
		if part.Type == PartData {
			return part, true
		}
	}
	for _, part := range m.Parts {
		if part.Type == PartText {
			return part, true
		}
	}
	return Part{}, false
}

// TextParts returns the text parts in their original order.
func (m *Message) TextParts() []Part {
	var out []Part
	for _, part := range m.Parts {
		if part.Type == PartText {
			out = append(out, part)
		}
	}
	return out
}

// JoinedText is the fallback payload when no structured part is
// addressable: all text part contents joined with newlines, in
// original order.
func (m *Message) JoinedText() string {
	var texts []string
	for _, part := range m.TextParts() {
		if s, ok := part.Text(); ok {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

func firstRecipient(m *Message) string {
	if len(m.Recipients) > 0 {
		return m.Recipients[0]
	}
	return ""
}
