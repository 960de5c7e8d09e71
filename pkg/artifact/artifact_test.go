package artifact

import (
	"strings"
	"testing"
	"time"
)

func TestNewArtifactDefaults(t *testing.T) {
	a, err := New(TypeReport, "Quarterly report", "alice", "the content")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected generated id")
	}
	if a.Status != StatusDraft {
		t.Fatalf("unexpected status: %s", a.Status)
	}
	if a.CurrentVersion != "1.0.0" {
		t.Fatalf("unexpected version: %s", a.CurrentVersion)
	}
	if len(a.Versions) != 1 {
		t.Fatalf("expected one version, got %d", len(a.Versions))
	}
	if a.Metadata.Checksum == "" {
		t.Fatalf("expected checksum")
	}
	if a.Metadata.Size != int64(len("the content")) {
		t.Fatalf("unexpected size: %d", a.Metadata.Size)
	}
	if a.Versions[0].ContentHash != a.Metadata.Checksum {
		t.Fatalf("initial version hash must match metadata checksum")
	}
}

func TestNewAcceptsRawScalars(t *testing.T) {
	a, err := New("analysis", "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Type != TypeAnalysis {
		t.Fatalf("unexpected type: %s", a.Type)
	}
	if _, err := New("daydream", "T", "alice", "c"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestVersionMonotonicity(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "v0")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	const updates = 5
	for i := 0; i < updates; i++ {
		if err := a.SetContent("content "+strings.Repeat("x", i+1), "alice", nil); err != nil {
			t.Fatalf("set content %d: %v", i, err)
		}
	}
	if len(a.Versions) != 1+updates {
		t.Fatalf("expected %d versions, got %d", 1+updates, len(a.Versions))
	}
	lastPatch := -1
	for _, v := range a.Versions {
		_, _, patch, err := parseSemver(v.Version)
		if err != nil {
			t.Fatalf("parse %q: %v", v.Version, err)
		}
		if patch <= lastPatch {
			t.Fatalf("patch not strictly increasing: %v", a.Versions)
		}
		lastPatch = patch
	}
	if a.CurrentVersion != a.Versions[len(a.Versions)-1].Version {
		t.Fatalf("current_version %q not newest", a.CurrentVersion)
	}
}

func TestChecksumRecomputedBeforeVersion(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "before")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	oldChecksum := a.Metadata.Checksum
	if err := a.SetContent("after", "alice", []string{"rewrite"}); err != nil {
		t.Fatalf("set content: %v", err)
	}
	if a.Metadata.Checksum == oldChecksum {
		t.Fatalf("checksum must change with content")
	}
	latest := a.Versions[len(a.Versions)-1]
	if latest.ContentHash != a.Metadata.Checksum {
		t.Fatalf("version snapshot must carry the fresh checksum")
	}
}

func TestCanonicalContentSortedKeys(t *testing.T) {
	a1, err := CanonicalContent(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	a2, err := CanonicalContent(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(a1) != string(a2) {
		t.Fatalf("canonical form must be key-order independent: %s vs %s", a1, a2)
	}
	raw, err := CanonicalContent([]byte{0x1, 0x2})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("binary content must pass through raw")
	}
}

func TestStatusTransitions(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.UpdateStatus(StatusPublished, "alice"); err == nil {
		t.Fatalf("draft -> published must be illegal")
	}
	steps := []Status{StatusReview, StatusPublished, StatusArchived, StatusExpired}
	for _, next := range steps {
		if err := a.UpdateStatus(next, "alice"); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := a.UpdateStatus(StatusDeleted, "alice"); err != nil {
		t.Fatalf("any -> deleted: %v", err)
	}
	if err := a.UpdateStatus(StatusDraft, "alice"); err == nil {
		t.Fatalf("deleted must be terminal")
	}
}

func TestStatusChangeAppendsChangeLogNotVersion(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := len(a.Versions)
	changesBefore := len(a.Versions[len(a.Versions)-1].Changes)
	if err := a.UpdateStatus("review", "bob"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if len(a.Versions) != before {
		t.Fatalf("status change must not create a version")
	}
	latest := a.Versions[len(a.Versions)-1]
	if len(latest.Changes) != changesBefore+1 {
		t.Fatalf("expected change-log entry, got %v", latest.Changes)
	}
}

func TestRollbackRestoresMetadataAndVersions(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "v1 content")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	firstChecksum := a.Metadata.Checksum
	firstSize := a.Metadata.Size
	if err := a.SetContent("v2 content that is longer", "alice", nil); err != nil {
		t.Fatalf("set content: %v", err)
	}

	if err := a.RollbackTo("1.0.0", "bob"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if a.Metadata.Checksum != firstChecksum || a.Metadata.Size != firstSize {
		t.Fatalf("rollback must restore the snapshot checksum and size")
	}
	// The rollback itself is a new version event with a patch above
	// every prior version.
	if len(a.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(a.Versions))
	}
	if a.CurrentVersion != "1.0.2" {
		t.Fatalf("unexpected current version: %s", a.CurrentVersion)
	}
	if err := a.RollbackTo("9.9.9", "bob"); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestAccessTelemetry(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Access()
	a.Access()
	if a.AccessCount != 2 {
		t.Fatalf("access count %d, want 2", a.AccessCount)
	}
	if a.Metadata.AccessedAt == nil {
		t.Fatalf("expected accessed_at")
	}
}

func TestValidate(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if problems := a.Validate(); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}

	a.Metadata.Title = ""
	a.Content = ""
	past := time.Now().UTC().Add(-time.Hour)
	a.ExpiresAt = &past
	problems := a.Validate()
	if len(problems) != 3 {
		t.Fatalf("expected 3 problems, got %v", problems)
	}
}

func TestPermissions(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", "c")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Grant("bob", PermissionRead)
	a.Grant("bob", PermissionRead) // no duplicate
	if len(a.Permissions["bob"]) != 1 {
		t.Fatalf("expected one grant, got %v", a.Permissions["bob"])
	}
	if !a.HasPermission("bob", PermissionRead) {
		t.Fatalf("expected read grant")
	}
	if a.HasPermission("bob", PermissionWrite) {
		t.Fatalf("unexpected write grant")
	}
	a.Grant("carol", PermissionAdmin)
	if !a.HasPermission("carol", PermissionDelete) {
		t.Fatalf("admin implies every permission")
	}
	a.Revoke("bob", PermissionRead)
	if a.HasPermission("bob", PermissionRead) {
		t.Fatalf("expected grant revoked")
	}
}
