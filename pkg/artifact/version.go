package artifact

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const initialVersion = "1.0.0"

// Version records per-version provenance. Raw historical content is
// not retained inline, only its hash and size.
type Version struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Author      string    `json:"author"`
	Changes     []string  `json:"changes"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
}

// parseSemver splits a MAJOR.MINOR.PATCH string.
func parseSemver(v string) (major, minor, patch int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed version %q", v)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("malformed version %q", v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

// CreateVersion appends a new version with the PATCH component bumped
// from the newest recorded version and makes it current. No policy
// here governs MAJOR/MINOR bumps; those are caller-driven. The bump
// base is the newest version rather than CurrentVersion so the PATCH
// sequence stays strictly increasing across rollbacks.
func (a *Artifact) CreateVersion(author string, changes []string) error {
	base := a.CurrentVersion
	if len(a.Versions) > 0 {
		base = a.Versions[len(a.Versions)-1].Version
	}
	major, minor, patch, err := parseSemver(base)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	next := fmt.Sprintf("%d.%d.%d", major, minor, patch+1)
	a.Versions = append(a.Versions, Version{
		Version:     next,
		CreatedAt:   now,
		Author:      author,
		Changes:     append([]string(nil), changes...),
		ContentHash: a.Metadata.Checksum,
		Size:        a.Metadata.Size,
	})
	a.CurrentVersion = next
	a.Metadata.ModifiedAt = now
	return nil
}

// UpdateStatus moves the artifact along the lifecycle graph. The
// change is appended to the newest version's change log; a status
// change alone never creates a version.
func (a *Artifact) UpdateStatus(status any, author string) error {
	next, err := ParseStatus(status)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, next) {
		return fmt.Errorf("illegal status transition %s -> %s", a.Status, next)
	}
	prev := a.Status
	a.Status = next
	a.Metadata.ModifiedAt = time.Now().UTC()
	if len(a.Versions) > 0 {
		latest := &a.Versions[len(a.Versions)-1]
		latest.Changes = append(latest.Changes, fmt.Sprintf("status %s -> %s by %s", prev, next, author))
	}
	return nil
}

// FindVersion returns the recorded version entry for v.
func (a *Artifact) FindVersion(v string) (Version, bool) {
	for _, ver := range a.Versions {
		if ver.Version == v {
			return ver, true
		}
	}
	return Version{}, false
}

// RollbackTo restores the checksum and size snapshot of the target
// version and records the rollback as a new version event. Raw
// historical content is not retained, so only metadata is restored;
// the content itself is unchanged. Known limitation inherited from
// the reference behavior.
func (a *Artifact) RollbackTo(version, author string) error {
	target, ok := a.FindVersion(version)
	if !ok {
		return fmt.Errorf("version %q not found", version)
	}
	a.Metadata.Checksum = target.ContentHash
	a.Metadata.Size = target.Size
	a.CurrentVersion = target.Version
	return a.CreateVersion(author, []string{fmt.Sprintf("rolled back to %s", version)})
}
