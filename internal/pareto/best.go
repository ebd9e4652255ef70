package pareto

// SelectBest returns the solution ID with the lowest error score among the
// selected candidates, or "" for an empty slice. Ties keep the
// lexicographically smallest ID so repeat runs agree.
func SelectBest(selected []Candidate) string {
	best := ""
	bestScore := 0.0
	for _, c := range selected {
		if best == "" || c.ErrorScore < bestScore || (c.ErrorScore == bestScore && c.SolID < best) {
			best = c.SolID
			bestScore = c.ErrorScore
		}
	}
	return best
}
