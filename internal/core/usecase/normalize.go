package usecase

// normalizeScores divides every score by the maximum. A non-positive maximum
// (including the empty list) yields all zeros.
func normalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = s / maxScore
	}
	return out
}
