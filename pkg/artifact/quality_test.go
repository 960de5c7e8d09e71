package artifact

import "testing"

func TestQualityScoreBounds(t *testing.T) {
	a, err := New(TypeReport, "T", "alice", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Metadata.Description = "full description"
	a.Metadata.Tags = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	a.Metadata.Custom = map[string]any{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6}
	a.AccessCount = 1000
	if err := a.SetContent(map[string]any{"k": "v2"}, "alice", nil); err != nil {
		t.Fatalf("set content: %v", err)
	}
	if err := a.UpdateStatus(StatusReview, "alice"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := a.UpdateStatus(StatusPublished, "alice"); err != nil {
		t.Fatalf("status: %v", err)
	}
	score := a.CalculateQualityScore()
	if score < 0 || score > 100 {
		t.Fatalf("score %f outside [0,100]", score)
	}
	if score != 100 {
		t.Fatalf("maxed-out artifact should cap at 100, got %f", score)
	}

	empty := &Artifact{}
	empty.CalculateQualityScore()
	if empty.QualityScore != 0 {
		t.Fatalf("empty artifact should score 0, got %f", empty.QualityScore)
	}
}

func TestQualityScoreScenario(t *testing.T) {
	// Content present, title set, no description: content bonus only.
	a, err := New(TypeAnalysis, "T", "a1", map[string]any{"risk": "high"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	score := a.CalculateQualityScore()
	if score < 20 {
		t.Fatalf("score %f, want >= 20 for present content", score)
	}
	if score >= 35 {
		t.Fatalf("score %f, want < 35 with incomplete metadata", score)
	}

	if err := a.UpdateStatus(StatusReview, "a1"); err != nil {
		t.Fatalf("status: %v", err)
	}
	reviewScore := a.CalculateQualityScore()
	if reviewScore != score+15 {
		t.Fatalf("review bonus: got %f, want %f", reviewScore, score+15)
	}
	if err := a.UpdateStatus(StatusPublished, "a1"); err != nil {
		t.Fatalf("status: %v", err)
	}
	publishedScore := a.CalculateQualityScore()
	if publishedScore != score+20 {
		t.Fatalf("published bonus: got %f, want exactly +20 over %f", publishedScore, score)
	}
}
