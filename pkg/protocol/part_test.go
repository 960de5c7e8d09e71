package protocol

import "testing"

func TestMainContentPrefersData(t *testing.T) {
	msg := NewMultipart("alice", []string{"bob"}, TypeRequest, []Part{
		NewTextPart("intro"),
		NewDataPart(map[string]any{"risk": "high"}),
		NewTextPart("outro"),
	})
	main, ok := msg.MainContent()
	if !ok {
		t.Fatalf("expected main content")
	}
	if main.Type != PartData {
		t.Fatalf("main content type %s, want data", main.Type)
	}
}

func TestMainContentFallsBackToText(t *testing.T) {
	msg := NewMultipart("alice", []string{"bob"}, TypeRequest, []Part{
		{Type: PartImage, Content: []byte{0x1}},
		NewTextPart("caption"),
	})
	main, ok := msg.MainContent()
	if !ok {
		t.Fatalf("expected main content")
	}
	if main.Type != PartText {
		t.Fatalf("main content type %s, want text", main.Type)
	}
	if text, _ := main.Text(); text != "caption" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestMainContentNone(t *testing.T) {
	msg := NewMultipart("alice", []string{"bob"}, TypeRequest, []Part{
		{Type: PartBinary, Content: []byte{0x1}},
	})
	if _, ok := msg.MainContent(); ok {
		t.Fatalf("expected no main content")
	}
}

func TestTextPartsOrderPreserved(t *testing.T) {
	msg := NewMultipart("alice", []string{"bob"}, TypeRequest, []Part{
		NewTextPart("one"),
		NewDataPart(map[string]any{"k": "v"}),
		NewTextPart("two"),
		NewTextPart("three"),
	})
	parts := msg.TextParts()
	if len(parts) != 3 {
		t.Fatalf("expected 3 text parts, got %d", len(parts))
	}
	want := []string{"one", "two", "three"}
	for i, p := range parts {
		if text, _ := p.Text(); text != want[i] {
			t.Fatalf("part %d: %q, want %q", i, text, want[i])
		}
	}
}

func TestJoinedText(t *testing.T) {
	msg := NewMultipart("alice", []string{"bob"}, TypeRequest, []Part{
		NewTextPart("line one"),
		{Type: PartBinary, Content: []byte{0x1}},
		NewTextPart("line two"),
	})
	if got := msg.JoinedText(); got != "line one\nline two" {
		t.Fatalf("unexpected joined text: %q", got)
	}
}

func TestPartValidate(t *testing.T) {
	if problems := NewTextPart("hello").Validate(); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if problems := (Part{Type: "hologram", Content: "x"}).Validate(); len(problems) != 1 {
		t.Fatalf("expected unsupported-type problem, got %v", problems)
	}
	if problems := (Part{Type: PartText, Content: ""}).Validate(); len(problems) != 1 {
		t.Fatalf("expected empty-content problem, got %v", problems)
	}
	if problems := (Part{Type: PartBinary, Content: []byte{}}).Validate(); len(problems) != 1 {
		t.Fatalf("expected empty-content problem for zero-length bytes, got %v", problems)
	}
	if problems := (Part{Type: PartBinary, Content: []byte{0x01}}).Validate(); len(problems) != 0 {
		t.Fatalf("unexpected problems for non-empty bytes: %v", problems)
	}
}

func TestParsePartType(t *testing.T) {
	pt, err := ParsePartType("  DATA ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pt != PartData {
		t.Fatalf("unexpected type: %s", pt)
	}
	if _, err := ParsePartType("scroll"); err == nil {
		t.Fatalf("expected error for unknown part type")
	}
}
