package artifact

// CalculateQualityScore computes the advisory 0..100 completeness
// heuristic and stores it on the artifact. It combines content
// presence, metadata completeness, version history depth, access
// popularity, publication state and tag/custom-field richness. The
// score is telemetry only, never an access gate.
func (a *Artifact) CalculateQualityScore() float64 {
	score := 0.0

	if a.Content != nil {
		if s, ok := a.Content.(string); !ok || s != "" {
			score += 20
		}
	}
	if a.Metadata.Title != "" && a.Metadata.Description != "" {
		score += 15
	}
	if len(a.Versions) > 1 {
		score += 10
	}
	if a.AccessCount > 0 {
		popularity := float64(a.AccessCount)
		if popularity > 10 {
			popularity = 10
		}
		score += popularity
	}
	switch a.Status {
	case StatusPublished:
		score += 20
	case StatusReview:
		score += 15
	}
	if len(a.Metadata.Tags) > 0 {
		richness := float64(len(a.Metadata.Tags)) * 2
		if richness > 10 {
			richness = 10
		}
		score += richness
	}
	if len(a.Metadata.Custom) > 0 {
		richness := float64(len(a.Metadata.Custom)) * 3
		if richness > 15 {
			richness = 15
		}
		score += richness
	}

	if score > 100 {
		score = 100
	}
	a.QualityScore = score
	return score
}
