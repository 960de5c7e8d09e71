package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalContent reduces content to deterministic bytes for
// checksumming and blob storage: UTF-8 for strings, raw bytes for
// binary, and JSON for structured content. Marshaling goes through a
// map round-trip so object keys always serialize in sorted order.
func CanonicalContent(content any) ([]byte, error) {
	switch c := content.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(c), nil
	case []byte:
		return c, nil
	default:
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("canonicalize content: %w", err)
		}
		var norm any
		if err := json.Unmarshal(raw, &norm); err != nil {
			return nil, fmt.Errorf("canonicalize content: %w", err)
		}
		return json.Marshal(norm)
	}
}

// updateContentMetrics recomputes the metadata checksum and size from
// the current content. It must run before any version is recorded so
// version snapshots never reference a stale hash.
func (a *Artifact) updateContentMetrics() error {
	raw, err := CanonicalContent(a.Content)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	a.Metadata.Checksum = hex.EncodeToString(sum[:])
	a.Metadata.Size = int64(len(raw))
	return nil
}

// SetContent replaces the artifact content, recomputes checksum and
// size, and records the mutation as a new version.
func (a *Artifact) SetContent(content any, author string, changes []string) error {
	a.Content = content
	if err := a.updateContentMetrics(); err != nil {
		return err
	}
	if len(changes) == 0 {
		changes = []string{"content updated"}
	}
	return a.CreateVersion(author, changes)
}

// ContentFormat returns the blob file extension for the content kind:
// txt for plain text, bin for raw bytes, json for structured content.
func ContentFormat(content any) string {
	switch content.(type) {
	case string:
		return "txt"
	case []byte:
		return "bin"
	default:
		return "json"
	}
}

// DecodeContent reverses CanonicalContent for a stored blob in the
// given format.
func DecodeContent(raw []byte, format string) (any, error) {
	switch format {
	case "txt":
		return string(raw), nil
	case "bin":
		return raw, nil
	case "json":
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown content format %q", format)
	}
}
