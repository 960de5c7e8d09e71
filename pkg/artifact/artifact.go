// SPDX-License-Identifier: Apache-2.0
// Package artifact models versioned, checksummed, lifecycle-managed
// units of durable content exchanged between agents.
package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies the work-product an artifact carries.
type Type string

const (
	TypeReport         Type = "report"
	TypeRecommendation Type = "recommendation"
	TypeVisualization  Type = "visualization"
	TypeDataExport     Type = "data_export"
	TypeAnalysis       Type = "analysis"
	TypeValidation     Type = "validation"
	TypeNotification   Type = "notification"
	TypeAuditLog       Type = "audit_log"
)

var types = map[Type]bool{
	TypeReport:         true,
	TypeRecommendation: true,
	TypeVisualization:  true,
	TypeDataExport:     true,
	TypeAnalysis:       true,
	TypeValidation:     true,
	TypeNotification:   true,
	TypeAuditLog:       true,
}

// ParseType normalizes a raw scalar into a Type. Raw strings are
// accepted for interop with deserialized storage rows.
func ParseType(v any) (Type, error) {
	switch t := v.(type) {
	case Type:
		if types[t] {
			return t, nil
		}
		return "", fmt.Errorf("unknown artifact type %q", string(t))
	case string:
		at := Type(strings.ToLower(strings.TrimSpace(t)))
		if types[at] {
			return at, nil
		}
		return "", fmt.Errorf("unknown artifact type %q", t)
	default:
		return "", fmt.Errorf("artifact type must be a string, got %T", v)
	}
}

// Status is the lifecycle state of an artifact.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusExpired   Status = "expired"
	StatusDeleted   Status = "deleted"
)

var statuses = map[Status]bool{
	StatusDraft:     true,
	StatusReview:    true,
	StatusPublished: true,
	StatusArchived:  true,
	StatusExpired:   true,
	StatusDeleted:   true,
}

// transitions is the restricted lifecycle graph. Deletion is reachable
// from every state and terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusReview, StatusDeleted},
	StatusReview:    {StatusPublished, StatusDeleted},
	StatusPublished: {StatusArchived, StatusDeleted},
	StatusArchived:  {StatusExpired, StatusDeleted},
	StatusExpired:   {StatusDeleted},
	StatusDeleted:   {},
}

// ParseStatus normalizes a raw scalar into a Status.
func ParseStatus(v any) (Status, error) {
	switch t := v.(type) {
	case Status:
		if statuses[t] {
			return t, nil
		}
		return "", fmt.Errorf("unknown artifact status %q", string(t))
	case string:
		st := Status(strings.ToLower(strings.TrimSpace(t)))
		if statuses[st] {
			return st, nil
		}
		return "", fmt.Errorf("unknown artifact status %q", t)
	default:
		return "", fmt.Errorf("artifact status must be a string, got %T", v)
	}
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Permission names a per-user access grant. Grants are modeled and
// persisted but not enforced by the store.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
	PermissionAdmin  Permission = "admin"
)

// Metadata describes an artifact independent of its content bytes.
type Metadata struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Author      string         `json:"author"`
	CreatedAt   time.Time      `json:"created_at"`
	ModifiedAt  time.Time      `json:"modified_at"`
	AccessedAt  *time.Time     `json:"accessed_at,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Checksum    string         `json:"checksum"`
	Size        int64          `json:"size"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Artifact is a versioned, checksummed, permissioned unit of durable
// content. The ID is immutable after construction.
type Artifact struct {
	ID             string                  `json:"id"`
	Type           Type                    `json:"artifact_type"`
	Status         Status                  `json:"status"`
	Priority       int                     `json:"priority"`
	Content        any                     `json:"content"`
	Metadata       Metadata                `json:"metadata"`
	Versions       []Version               `json:"versions"`
	CurrentVersion string                  `json:"current_version"`
	AccessCount    int64                   `json:"access_count"`
	QualityScore   float64                 `json:"quality_score"`
	Permissions    map[string][]Permission `json:"permissions,omitempty"`
	ExpiresAt      *time.Time              `json:"expires_at,omitempty"`
}

// New constructs a draft artifact at version 1.0.0 with its checksum
// and size computed. artifactType accepts either a Type or a raw
// string (tagged-variant interop with deserialized storage).
func New(artifactType any, title, author string, content any) (*Artifact, error) {
	at, err := ParseType(artifactType)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &Artifact{
		ID:       uuid.NewString(),
		Type:     at,
		Status:   StatusDraft,
		Priority: 3,
		Content:  content,
		Metadata: Metadata{
			Title:      title,
			Author:     author,
			CreatedAt:  now,
			ModifiedAt: now,
		},
		CurrentVersion: initialVersion,
		Permissions:    make(map[string][]Permission),
	}
	if err := a.updateContentMetrics(); err != nil {
		return nil, err
	}
	a.Versions = []Version{{
		Version:     initialVersion,
		CreatedAt:   now,
		Author:      author,
		Changes:     []string{"initial version"},
		ContentHash: a.Metadata.Checksum,
		Size:        a.Metadata.Size,
	}}
	return a, nil
}

// SetPriority validates and assigns the artifact priority (1..5).
func (a *Artifact) SetPriority(v any) error {
	var p int
	switch t := v.(type) {
	case int:
		p = t
	case int64:
		p = int(t)
	case float64:
		p = int(t)
	default:
		return fmt.Errorf("priority must be an integer, got %T", v)
	}
	if p < 1 || p > 5 {
		return fmt.Errorf("priority %d outside [1,5]", p)
	}
	a.Priority = p
	return nil
}

// Access records a retrieval: access count and timestamp bump, pure
// telemetry. The counter is read-modify-write without a version check,
// so concurrent retrievals of the same artifact can under-count.
func (a *Artifact) Access() {
	now := time.Now().UTC()
	a.AccessCount++
	a.Metadata.AccessedAt = &now
}

// Clone returns a deep copy of the artifact's mutable structure.
// Content is copied by reference: callers treat content values as
// immutable (replacing, never editing in place).
func (a *Artifact) Clone() *Artifact {
	c := *a
	if a.Metadata.AccessedAt != nil {
		t := *a.Metadata.AccessedAt
		c.Metadata.AccessedAt = &t
	}
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Metadata.Tags = append([]string(nil), a.Metadata.Tags...)
	if a.Metadata.Custom != nil {
		c.Metadata.Custom = make(map[string]any, len(a.Metadata.Custom))
		for k, v := range a.Metadata.Custom {
			c.Metadata.Custom[k] = v
		}
	}
	c.Versions = append([]Version(nil), a.Versions...)
	for i := range c.Versions {
		c.Versions[i].Changes = append([]string(nil), a.Versions[i].Changes...)
	}
	if a.Permissions != nil {
		c.Permissions = make(map[string][]Permission, len(a.Permissions))
		for user, perms := range a.Permissions {
			c.Permissions[user] = append([]Permission(nil), perms...)
		}
	}
	return &c
}

// Grant adds a permission for user, once.
func (a *Artifact) Grant(user string, perm Permission) {
	if a.Permissions == nil {
		a.Permissions = make(map[string][]Permission)
	}
	for _, existing := range a.Permissions[user] {
		if existing == perm {
			return
		}
	}
	a.Permissions[user] = append(a.Permissions[user], perm)
}

// Revoke removes a permission for user.
func (a *Artifact) Revoke(user string, perm Permission) {
	grants := a.Permissions[user]
	for i, existing := range grants {
		if existing == perm {
			a.Permissions[user] = append(grants[:i], grants[i+1:]...)
			return
		}
	}
}

// HasPermission reports whether user holds perm (or admin). Advisory
// only: the store does not gate access on it.
func (a *Artifact) HasPermission(user string, perm Permission) bool {
	for _, existing := range a.Permissions[user] {
		if existing == perm || existing == PermissionAdmin {
			return true
		}
	}
	return false
}

// Expired reports whether the artifact's expiry lies before now.
func (a *Artifact) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Validate returns human-readable problems with the artifact. An
// empty slice means the artifact is valid.
func (a *Artifact) Validate() []string {
	var problems []string
	if a.ID == "" {
		problems = append(problems, "id is empty")
	}
	if a.Metadata.Title == "" {
		problems = append(problems, "title is empty")
	}
	if a.Content == nil {
		problems = append(problems, "content is empty")
	} else if s, ok := a.Content.(string); ok && s == "" {
		problems = append(problems, "content is empty")
	}
	if a.Expired(time.Now().UTC()) {
		problems = append(problems, "artifact is expired")
	}
	return problems
}
