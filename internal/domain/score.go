package domain

import "math"

// NeutralScore is the published placeholder for a topic with no counted votes.
const NeutralScore = 50.00

// ComputeScore turns vote counters into the published badmeter score:
// 100*positive/(positive+negative), rounded to two decimals. With no votes it
// returns the neutral placeholder consumers display for "no data yet".
func ComputeScore(positive, negative int) float64 {
	total := positive + negative
	if total == 0 {
		return NeutralScore
	}
	return math.Round(10000*float64(positive)/float64(total)) / 100
}
