package protocol

import (
	"fmt"
	"strings"
)

// PartType identifies the kind of content a Part carries.
type PartType string

const (
	PartText   PartType = "text"
	PartData   PartType = "data"
	PartFile   PartType = "file"
	PartImage  PartType = "image"
	PartAudio  PartType = "audio"
	PartVideo  PartType = "video"
	PartBinary PartType = "binary"
)

var partTypes = map[PartType]bool{
	PartText:   true,
	PartData:   true,
	PartFile:   true,
	PartImage:  true,
	PartAudio:  true,
	PartVideo:  true,
	PartBinary: true,
}

// ParsePartType normalizes a raw scalar into a PartType. Accepts a
// PartType or its string value, case-insensitive.
func ParsePartType(v any) (PartType, error) {
	switch t := v.(type) {
	case PartType:
		if partTypes[t] {
			return t, nil
		}
		return "", fmt.Errorf("unknown part type %q", string(t))
	case string:
		pt := PartType(strings.ToLower(strings.TrimSpace(t)))
		if partTypes[pt] {
			return pt, nil
		}
		return "", fmt.Errorf("unknown part type %q", t)
	default:
		return "", fmt.Errorf("part type must be a string, got %T", v)
	}
}

// Part is one typed chunk of content inside a multi-part message.
type Part struct {
	Type     PartType       `json:"type"`
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextPart builds a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartText, Content: text}
}

// NewDataPart builds a structured data part.
func NewDataPart(data any) Part {
	return Part{Type: PartData, Content: data}
}

// Validate returns human-readable problems with the part. An empty
// slice means the part is valid.
func (p Part) Validate() []string {
	var problems []string
	if !partTypes[p.Type] {
		problems = append(problems, fmt.Sprintf("unsupported part type %q", string(p.Type)))
	}
	switch c := p.Content.(type) {
	case nil:
		problems = append(problems, "part content is empty")
	case string:
		if c == "" {
			problems = append(problems, "part content is empty")
		}
	case []byte:
		if len(c) == 0 {
			problems = append(problems, "part content is empty")
		}
	}
	return problems
}

// Text returns the part content as a string when it is one.
func (p Part) Text() (string, bool) {
	s, ok := p.Content.(string)
	return s, ok
}
