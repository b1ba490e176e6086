package domain

// MatchDecision is the transient outcome of one matcher pass. It is never persisted.
type MatchDecision struct {
	Matched    bool
	Identity   Identity
	Similarity float64
	Distance   float64
	Confidence float64
}

// NoMatch is the decision returned when no roster entry qualifies.
var NoMatch = MatchDecision{}

// Matched builds a positive decision.
func Matched(identity Identity, similarity, distance, confidence float64) MatchDecision {
	return MatchDecision{
		Matched:    true,
		Identity:   identity,
		Similarity: similarity,
		Distance:   distance,
		Confidence: confidence,
	}
}
